// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package settings

import (
	"bytes"
	"errors"
	"io/fs"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"auth-type":        "auth_type",
	"username":         "username",
	"password":         "password",
	"latitude":         "default_latitude",
	"longitude":        "default_longitude",
	"device-id":        "device.device_id",
	"firmware-profile": "device.firmware_profile",
	"proxy-address":    "proxy.address",
	"proxy-port":       "proxy.port",
	"proxy-username":   "proxy.username",
	"proxy-password":   "proxy.password",
	"stop-on-ip-ban":   "stop_on_ip_ban",
	"hash-key":         "hashing.hash_keys",
	"storage-backend":  "storage.backend",
	"storage-root":     "storage.root",
	"database-url":     "storage.database_url",
	"single-hash-key":  "hashing.use_only_one_key",
	"auth-api-key":     "hashing.auth_api_key",
	"client-version":   "hashing.client_version",
	"locale-country":   "locale.country",
	"locale-language":  "locale.language",
	"locale-timezone":  "locale.timezone",
}

// BindFlags registers the settings override flags. Only flags the
// user actually sets override values from the settings file.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("auth-type", "", "login provider (google or ptc)")
	flags.String("username", "", "account username")
	flags.String("password", "", "account password")
	flags.Float64("latitude", 0, "initial latitude")
	flags.Float64("longitude", 0, "initial longitude")
	flags.String("device-id", "", "device id (also names the artifact cache files)")
	flags.Int("firmware-profile", 0, "index into the firmware profile table")
	flags.String("proxy-address", "", "proxy host (empty = no proxy)")
	flags.Int("proxy-port", 0, "proxy port")
	flags.String("proxy-username", "", "proxy username")
	flags.String("proxy-password", "", "proxy password")
	flags.Bool("stop-on-ip-ban", true, "halt automation when the IP is banned")
	flags.StringSlice("hash-key", nil, "hashing key (repeatable)")
	flags.Bool("single-hash-key", false, "use a single hashing key (auth-api-key)")
	flags.String("auth-api-key", "", "hashing key used in single-key mode")
	flags.String("client-version", "", "game client version reported to the hashing service")
	flags.String("locale-country", "", "player locale country")
	flags.String("locale-language", "", "player locale language")
	flags.String("locale-timezone", "", "player locale timezone")
	flags.String("storage-backend", "", "token and artifact storage (file or postgres)")
	flags.String("storage-root", "", "directory holding data/ and Cache/")
	flags.String("database-url", "", "postgres connection string for the postgres backend")
}

// Load reads settings from the YAML file at path (if it exists), overlays
// flags the user changed, and validates the result. Either argument may be
// empty/nil.
func Load(path string, flags *pflag.FlagSet) (UserSettings, error) {
	s, err := read(path, flags)
	if err != nil {
		return UserSettings{}, err
	}
	if err := s.Validate(); err != nil {
		return UserSettings{}, err
	}
	return s, nil
}

// LoadStorage is Load for commands that only touch persisted data: account
// fields are not required.
func LoadStorage(path string, flags *pflag.FlagSet) (StorageSettings, error) {
	s, err := read(path, flags)
	if err != nil {
		return StorageSettings{}, err
	}
	if err := s.Storage.Validate(); err != nil {
		return StorageSettings{}, err
	}
	return s.Storage, nil
}

func read(path string, flags *pflag.FlagSet) (UserSettings, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
		switch {
		case errors.Is(err, fs.ErrNotExist), err == nil && len(bytes.TrimSpace(data)) == 0:
			// No settings file content: defaults and flags only.
		case err != nil:
			return UserSettings{}, oops.Code("SETTINGS_READ_FAILED").With("path", path).Wrap(err)
		default:
			if err := ValidateSchema(data); err != nil {
				return UserSettings{}, oops.With("path", path).Wrap(err)
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return UserSettings{}, oops.Code("SETTINGS_PARSE_FAILED").With("path", path).Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return UserSettings{}, oops.Code("SETTINGS_FLAGS_FAILED").Wrap(err)
		}
	}

	s := Defaults()
	if err := k.Unmarshal("", &s); err != nil {
		return UserSettings{}, oops.Code("SETTINGS_DECODE_FAILED").Wrap(err)
	}
	return s, nil
}
