// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package device derives the emulated device fingerprint and network proxy
// for a login attempt. Everything here is a pure function of the settings.
package device

import (
	"net"
	"strconv"

	"github.com/samber/oops"

	"github.com/trainerbot/trainerbot/internal/settings"
)

// UserAgentPrefix is prepended to the firmware user agent part.
const UserAgentPrefix = "pokemongo/1 "

// Info is the device identity record reported to the server.
type Info struct {
	DeviceID              string `json:"device_id" yaml:"device_id"`
	DeviceBrand           string `json:"device_brand" yaml:"device_brand"`
	DeviceModel           string `json:"device_model" yaml:"device_model"`
	DeviceModelBoot       string `json:"device_model_boot" yaml:"device_model_boot"`
	DeviceModelIdentifier string `json:"device_model_identifier" yaml:"device_model_identifier"`
	HardwareManufacturer  string `json:"hardware_manufacturer" yaml:"hardware_manufacturer"`
	HardwareModel         string `json:"hardware_model" yaml:"hardware_model"`
	FirmwareBrand         string `json:"firmware_brand" yaml:"firmware_brand"`
	FirmwareType          string `json:"firmware_type" yaml:"firmware_type"`
	FirmwareTags          string `json:"firmware_tags" yaml:"firmware_tags"`
	FirmwareFingerprint   string `json:"firmware_fingerprint" yaml:"firmware_fingerprint"`
	AndroidBoardName      string `json:"android_board_name" yaml:"android_board_name"`
	AndroidBootloader     string `json:"android_bootloader" yaml:"android_bootloader"`
}

// Proxy describes the network proxy used for the session.
type Proxy struct {
	Address  string `json:"address" yaml:"address"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"-" yaml:"-"`
}

// HostPort returns the proxy address in host:port form.
func (p *Proxy) HostPort() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// Locale is the player locale reported to the server.
type Locale struct {
	Country  string `json:"country" yaml:"country"`
	Language string `json:"language" yaml:"language"`
	TimeZone string `json:"timezone" yaml:"timezone"`
}

// Profile is the device and network identity of one login attempt. A nil
// Proxy means the session connects directly.
type Profile struct {
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	OSVersion string `json:"os_version" yaml:"os_version"`
	Device    Info   `json:"device" yaml:"device"`
	Proxy     *Proxy `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	Locale    Locale `json:"locale" yaml:"locale"`
}

// Build derives the profile for s. The firmware profile is selected by the
// explicit FirmwareProfile index.
func Build(s settings.UserSettings) (Profile, error) {
	fw, err := Firmware(s.Device.FirmwareProfile)
	if err != nil {
		return Profile{}, err
	}

	d := s.Device
	info := Info{
		DeviceID:              d.DeviceID,
		DeviceBrand:           d.DeviceBrand,
		DeviceModel:           d.DeviceModel,
		DeviceModelBoot:       d.DeviceModelBoot,
		DeviceModelIdentifier: d.DeviceModelIdentifier,
		HardwareManufacturer:  d.HardwareManufacturer,
		HardwareModel:         d.HardwareModel,
		FirmwareBrand:         d.FirmwareBrand,
		FirmwareType:          d.FirmwareType,
		FirmwareTags:          d.FirmwareTags,
		FirmwareFingerprint:   d.FirmwareFingerprint,
		AndroidBoardName:      d.AndroidBoardName,
		AndroidBootloader:     d.AndroidBootloader,
	}
	if info.FirmwareType == "" {
		info.FirmwareType = fw.OSVersion
	}

	p := Profile{
		UserAgent: UserAgentPrefix + fw.UserAgentPart,
		OSVersion: fw.OSVersion,
		Device:    info,
		Locale: Locale{
			Country:  s.Locale.Country,
			Language: s.Locale.Language,
			TimeZone: s.Locale.TimeZone,
		},
	}
	if s.HasProxy() {
		p.Proxy = &Proxy{
			Address:  s.Proxy.Address,
			Port:     s.Proxy.Port,
			Username: s.Proxy.Username,
			Password: s.Proxy.Password,
		}
	}
	return p, nil
}

// Firmware returns the firmware profile at index.
func Firmware(index int) (FirmwareProfile, error) {
	if index < 0 || index >= len(firmwareProfiles) {
		return FirmwareProfile{}, oops.Code("INVALID_FIRMWARE_PROFILE").
			With("firmware_profile", index).
			With("max", len(firmwareProfiles)-1).
			Public("firmware profile out of range").
			Errorf("firmware profile %d out of range [0, %d]", index, len(firmwareProfiles)-1)
	}
	return firmwareProfiles[index], nil
}
