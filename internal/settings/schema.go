// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TrainerBot Contributors

package settings

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the settings JSON Schema.
const SchemaID = "https://trainerbot.dev/schemas/settings.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jschema.Schema
	errSchema      error
)

// GenerateSchema returns the JSON Schema describing settings files.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := r.Reflect(&UserSettings{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "TrainerBot account settings"
	schema.Description = "Schema for per-account settings files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateSchema validates YAML settings data against the settings schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return oops.Code("SETTINGS_EMPTY").Errorf("settings data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("SETTINGS_INVALID_YAML").Wrap(err)
	}
	if doc == nil {
		// Comment-only files carry no settings.
		return nil
	}

	sch, err := loadSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("SETTINGS_SCHEMA_MISMATCH").Wrap(err)
	}
	return nil
}

func loadSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			errSchema = err
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			errSchema = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("settings.schema.json", doc); err != nil {
			errSchema = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		compiledSchema, errSchema = c.Compile("settings.schema.json")
		if errSchema != nil {
			errSchema = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(errSchema)
		}
	})
	return compiledSchema, errSchema
}

// toJSONTypes normalises YAML-decoded values so the validator sees the same
// shapes encoding/json would produce.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONTypes(item)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
