// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package main implements a session provider plugin that replays a scripted
// scenario. It lets the full out-of-process path be exercised without a game
// server.
//
// Build and run:
//
//	go build -o replay ./plugins/replay
//	TRAINERBOT_REPLAY_SCENARIO=scenario.yaml trainerbot login --provider-plugin ./replay
package main

import (
	"fmt"
	"os"

	"github.com/trainerbot/trainerbot/internal/logging"
	"github.com/trainerbot/trainerbot/internal/plugin/goplugin"
	"github.com/trainerbot/trainerbot/internal/session/scripted"
)

// ScenarioEnv names the scenario file to replay.
const ScenarioEnv = "TRAINERBOT_REPLAY_SCENARIO"

func main() {
	logger := logging.SetDefault(logging.Options{Service: "trainerbot-replay", Version: "dev"})

	sc := &scripted.Scenario{}
	if path := os.Getenv(ScenarioEnv); path != "" {
		loaded, err := scripted.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay: %v\n", err)
			os.Exit(1)
		}
		sc = loaded
	}

	goplugin.Serve(scripted.NewProvider(sc, scripted.WithLogger(logger)))
}
