// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trainerbot/trainerbot/internal/logging"
	"github.com/trainerbot/trainerbot/internal/settings"
	"github.com/trainerbot/trainerbot/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	logFormat  string
	logLevel   string
)

// NewRootCmd creates the root command for the TrainerBot CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(LoginDeps{})
}

func newRootCmd(loginDeps LoginDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trainerbot",
		Short: "TrainerBot - session manager for an automated game client",
		Long: `TrainerBot establishes and maintains authenticated game sessions for an
automated account: it resolves credentials, derives the device profile, reuses
cached access tokens and persists server pushes to disk.`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "settings file path (default $XDG_CONFIG_HOME/trainerbot/config.yaml)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatJSON, "log format (json or text)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewLoginCmd(loginDeps))
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewProfileCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	if !logging.ValidFormat(logFormat) {
		return oops.Code("CONFIG_INVALID").
			With("log_format", logFormat).
			Errorf("log format must be %q or %q", logging.FormatJSON, logging.FormatText)
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logging.New(logging.Options{
		Service: "trainerbot",
		Version: cmd.Root().Version,
		Format:  logFormat,
		Level:   level,
	}, cmd.ErrOrStderr()))
	return nil
}

// settingsPath returns --config, or the XDG default when it is unset.
func settingsPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.ConfigFile()
}

// loadSettings loads the account settings with the command's flags overlaid.
func loadSettings(cmd *cobra.Command) (settings.UserSettings, error) {
	path, err := settingsPath()
	if err != nil {
		return settings.UserSettings{}, err
	}
	return settings.Load(path, cmd.Flags())
}

// loadStorage loads only the storage section.
func loadStorage(cmd *cobra.Command) (settings.StorageSettings, error) {
	path, err := settingsPath()
	if err != nil {
		return settings.StorageSettings{}, err
	}
	return settings.LoadStorage(path, cmd.Flags())
}
