// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trainerbot/trainerbot/internal/device"
	"github.com/trainerbot/trainerbot/internal/settings"
)

type indexedFirmware struct {
	Index                  int `yaml:"index"`
	device.FirmwareProfile `yaml:",inline"`
}

type presetTables struct {
	FirmwareProfiles []indexedFirmware      `yaml:"firmware_profiles"`
	HardwarePresets  []device.HardwarePreset `yaml:"hardware_presets"`
}

// NewProfileCmd creates the profile subcommand.
func NewProfileCmd() *cobra.Command {
	var presets bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Print the device profile derived from the settings",
		Long: `Print the device and network profile a login would present, as YAML.
With --presets, print the firmware profile table (selected by
device.firmware_profile) and the known hardware presets instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var doc any
			if presets {
				doc = tables()
			} else {
				s, err := loadSettings(cmd)
				if err != nil {
					return err
				}
				p, err := device.Build(s)
				if err != nil {
					return err
				}
				doc = p
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return oops.Code("PROFILE_ENCODE_FAILED").Wrap(err)
			}
			return oops.Code("PROFILE_ENCODE_FAILED").Wrap(enc.Close())
		},
	}
	cmd.Flags().BoolVar(&presets, "presets", false, "print the firmware and hardware tables")
	settings.BindFlags(cmd.Flags())
	return cmd
}

func tables() presetTables {
	fw := device.FirmwareProfiles()
	out := presetTables{
		FirmwareProfiles: make([]indexedFirmware, len(fw)),
		HardwarePresets:  device.HardwarePresets(),
	}
	for i, p := range fw {
		out.FirmwareProfiles[i] = indexedFirmware{Index: i, FirmwareProfile: p}
	}
	return out
}
