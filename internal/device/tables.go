// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package device

// FirmwareProfile pairs an iOS version with the CFNetwork/Darwin user agent
// part the game client sends on that version.
type FirmwareProfile struct {
	OSVersion     string `yaml:"os_version"`
	UserAgentPart string `yaml:"user_agent_part"`
}

// HardwarePreset is a known device model.
type HardwarePreset struct {
	ModelIdentifier string `yaml:"model_identifier"`
	DeviceModel     string `yaml:"device_model"`
	HardwareModel   string `yaml:"hardware_model"`
}

var firmwareProfiles = []FirmwareProfile{
	{"9.0", "CFNetwork/758.0.2 Darwin/15.0.0"},
	{"9.0.1", "CFNetwork/758.0.2 Darwin/15.0.0"},
	{"9.0.2", "CFNetwork/758.0.2 Darwin/15.0.0"},
	{"9.1", "CFNetwork/758.1.6 Darwin/15.0.0"},
	{"9.2", "CFNetwork/758.2.8 Darwin/15.0.0"},
	{"9.2.1", "CFNetwork/758.2.8 Darwin/15.0.0"},
	{"9.3", "CFNetwork/758.3.15 Darwin/15.4.0"},
	{"9.3.2", "CFNetwork/758.4.3 Darwin/15.5.0"},
	{"10.3.3", "CFNetwork/807.2.14 Darwin/16.3.0"},
	{"11.1.0", "CFNetwork/889.3 Darwin/17.2.0"},
	{"11.2.0", "CFNetwork/893.10 Darwin/17.3.0"},
}

var hardwarePresets = []HardwarePreset{
	{"iPad5,1", "iPad", "J96AP"},
	{"iPad5,2", "iPad", "J97AP"},
	{"iPad5,3", "iPad", "J81AP"},
	{"iPad5,4", "iPad", "J82AP"},
	{"iPad6,7", "iPad", "J98aAP"},
	{"iPad6,8", "iPad", "J99aAP"},
	{"iPhone5,1", "iPhone", "N41AP"},
	{"iPhone5,2", "iPhone", "N42AP"},
	{"iPhone5,3", "iPhone", "N48AP"},
	{"iPhone5,4", "iPhone", "N49AP"},
	{"iPhone6,1", "iPhone", "N51AP"},
	{"iPhone6,2", "iPhone", "N53AP"},
	{"iPhone7,1", "iPhone", "N56AP"},
	{"iPhone7,2", "iPhone", "N61AP"},
	{"iPhone8,1", "iPhone", "N71AP"},
	{"iPhone8,2", "iPhone", "MKTM2"},
	{"iPhone9,3", "iPhone", "MN9T2"},
}

// FirmwareProfiles returns a copy of the firmware table in selector order.
func FirmwareProfiles() []FirmwareProfile {
	out := make([]FirmwareProfile, len(firmwareProfiles))
	copy(out, firmwareProfiles)
	return out
}

// HardwarePresets returns a copy of the known device models.
func HardwarePresets() []HardwarePreset {
	out := make([]HardwarePreset, len(hardwarePresets))
	copy(out, hardwarePresets)
	return out
}
