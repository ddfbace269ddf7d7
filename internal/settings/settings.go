// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

// Package settings holds the per-account configuration consumed by the
// session core, and loads it from YAML files and command-line flags.
package settings

import (
	"strings"

	"github.com/samber/oops"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// UserSettings is the configuration of one automated account. The session
// core treats it as read-only.
type UserSettings struct {
	AuthType string `koanf:"auth_type" jsonschema:"description=Login provider: google or ptc"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	DefaultLatitude  float64 `koanf:"default_latitude" jsonschema:"minimum=-90,maximum=90"`
	DefaultLongitude float64 `koanf:"default_longitude" jsonschema:"minimum=-180,maximum=180"`

	Device  DeviceSettings  `koanf:"device"`
	Proxy   ProxySettings   `koanf:"proxy"`
	Locale  LocaleSettings  `koanf:"locale"`
	Hashing HashSettings    `koanf:"hashing"`
	Storage StorageSettings `koanf:"storage"`

	// StopOnIPBan halts automation when the server reports an IP ban.
	StopOnIPBan bool `koanf:"stop_on_ip_ban"`
}

// DeviceSettings describes the emulated device.
type DeviceSettings struct {
	DeviceID              string `koanf:"device_id"`
	DeviceBrand           string `koanf:"device_brand"`
	DeviceModel           string `koanf:"device_model"`
	DeviceModelBoot       string `koanf:"device_model_boot"`
	DeviceModelIdentifier string `koanf:"device_model_identifier"`
	HardwareManufacturer  string `koanf:"hardware_manufacturer"`
	HardwareModel         string `koanf:"hardware_model"`
	FirmwareBrand         string `koanf:"firmware_brand"`
	FirmwareType          string `koanf:"firmware_type"`
	FirmwareTags          string `koanf:"firmware_tags"`
	FirmwareFingerprint   string `koanf:"firmware_fingerprint"`
	AndroidBoardName      string `koanf:"android_board_name"`
	AndroidBootloader     string `koanf:"android_bootloader"`

	// FirmwareProfile selects the OS version and user agent from the
	// static firmware table.
	FirmwareProfile int `koanf:"firmware_profile" jsonschema:"minimum=0"`
}

// ProxySettings describes the network proxy. An empty address means no proxy.
type ProxySettings struct {
	Address  string `koanf:"address"`
	Port     int    `koanf:"port" jsonschema:"minimum=0,maximum=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// LocaleSettings is the player locale reported to the server.
type LocaleSettings struct {
	Country  string `koanf:"country"`
	Language string `koanf:"language"`
	TimeZone string `koanf:"timezone"`
}

// HashSettings configures the process-wide hashing service.
type HashSettings struct {
	// UseOnlyOneKey selects single-key mode with AuthAPIKey; otherwise the
	// HashKeys pool is used.
	UseOnlyOneKey bool     `koanf:"use_only_one_key"`
	AuthAPIKey    string   `koanf:"auth_api_key"`
	HashKeys      []string `koanf:"hash_keys"`
	HashHost      string   `koanf:"hash_host"`
	HashEndpoint  string   `koanf:"hash_endpoint"`
	ClientVersion string   `koanf:"client_version"`
}

// StorageSettings selects where tokens and artifacts are persisted.
type StorageSettings struct {
	Backend     string `koanf:"backend" jsonschema:"enum=file,enum=postgres"`
	Root        string `koanf:"root"`
	DatabaseURL string `koanf:"database_url"`
}

// Default values.
const (
	DefaultClientVersion = "0.87.5"
	DefaultCountry       = "US"
	DefaultLanguage      = "en"
	DefaultTimeZone      = "America/New_York"
	DefaultStorageRoot   = "."
)

// Defaults returns settings with every optional field at its default.
func Defaults() UserSettings {
	return UserSettings{
		AuthType: "ptc",
		Locale: LocaleSettings{
			Country:  DefaultCountry,
			Language: DefaultLanguage,
			TimeZone: DefaultTimeZone,
		},
		Hashing: HashSettings{
			ClientVersion: DefaultClientVersion,
		},
		Storage: StorageSettings{
			Backend: BackendFile,
			Root:    DefaultStorageRoot,
		},
		StopOnIPBan: true,
	}
}

// HasProxy reports whether a proxy is configured.
func (s *UserSettings) HasProxy() bool {
	return s.Proxy.Address != ""
}

// Validate checks structural constraints. The auth type is checked by the
// credential resolver.
func (s *UserSettings) Validate() error {
	if s.Username == "" {
		return oops.Code("SETTINGS_INVALID").With("field", "username").Errorf("username is required")
	}
	if strings.ContainsAny(s.Username, `/\`) {
		return oops.Code("SETTINGS_INVALID").With("field", "username").Errorf("username must not contain path separators")
	}
	if s.Device.DeviceID == "" {
		return oops.Code("SETTINGS_INVALID").With("field", "device.device_id").Errorf("device id is required")
	}
	if strings.ContainsAny(s.Device.DeviceID, `/\`) {
		return oops.Code("SETTINGS_INVALID").With("field", "device.device_id").Errorf("device id must not contain path separators")
	}
	if s.DefaultLatitude < -90 || s.DefaultLatitude > 90 {
		return oops.Code("SETTINGS_INVALID").
			With("field", "default_latitude").
			With("value", s.DefaultLatitude).
			Errorf("latitude must be within [-90, 90]")
	}
	if s.DefaultLongitude < -180 || s.DefaultLongitude > 180 {
		return oops.Code("SETTINGS_INVALID").
			With("field", "default_longitude").
			With("value", s.DefaultLongitude).
			Errorf("longitude must be within [-180, 180]")
	}
	if s.HasProxy() && (s.Proxy.Port <= 0 || s.Proxy.Port > 65535) {
		return oops.Code("SETTINGS_INVALID").
			With("field", "proxy.port").
			With("value", s.Proxy.Port).
			Errorf("proxy port must be within [1, 65535] when a proxy address is set")
	}
	return s.Storage.Validate()
}

// Validate checks the backend selection.
func (st StorageSettings) Validate() error {
	switch st.Backend {
	case BackendFile, "":
	case BackendPostgres:
		if st.DatabaseURL == "" {
			return oops.Code("SETTINGS_INVALID").
				With("field", "storage.database_url").
				Errorf("database url is required for the postgres backend")
		}
	default:
		return oops.Code("SETTINGS_INVALID").
			With("field", "storage.backend").
			With("value", st.Backend).
			Errorf("storage backend must be %q or %q", BackendFile, BackendPostgres)
	}
	return nil
}
