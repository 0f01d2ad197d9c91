package configuration

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaText = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "osc": {
      "type": "object",
      "properties": {
        "txHost": {"type": "string"},
        "txPort": {"type": "integer", "minimum": 1, "maximum": 65535},
        "rxHost": {"type": "string"},
        "rxPort": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    },
    "httpApi": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "timeoutSeconds": {"type": "number", "minimum": 0},
        "refreshSeconds": {"type": "number"}
      }
    },
    "reflect": {
      "type": "object",
      "properties": {
        "hz": {"type": "number", "exclusiveMinimum": 0},
        "blinkHz": {"type": "number", "exclusiveMinimum": 0},
        "phaseOffsetSeconds": {"type": "number"},
        "duty": {"type": "number", "minimum": 0, "maximum": 1},
        "segments": {"type": "integer", "minimum": 1}
      }
    },
    "webui": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "addr": {"type": "string"}
      }
    },
    "joystick": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "device": {"type": "string"},
        "deadzone": {"type": "number", "minimum": 0},
        "axisStep": {"type": "number", "minimum": 0}
      }
    },
    "fills": {
      "type": "object",
      "properties": {
        "fallbackClipMin": {"type": "integer", "minimum": 1},
        "fallbackClipMax": {"type": "integer", "minimum": 1},
        "stopFallbackClip": {"type": "integer", "minimum": 1}
      }
    },
    "groupToDeck": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "devices": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "kind": {"type": "string", "enum": ["midi", "joystick"]},
          "inMatch": {"type": "string"},
          "outMatch": {"type": "string"},
          "resetNotesOnStart": {"type": "boolean"},
          "reflect": {"type": "boolean"},
          "channelToDeck": {
            "type": "object",
            "additionalProperties": {"type": "string"}
          }
        },
        "required": ["kind"]
      }
    },
    "templates": {
      "type": "object",
      "properties": {
        "perDeck": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "device": {"type": "string"},
              "rules": {"type": "array", "items": {"$ref": "#/$defs/rule"}}
            },
            "required": ["device", "rules"]
          }
        },
        "global": {"type": "array", "items": {"$ref": "#/$defs/rule"}}
      }
    },
    "bindings": {"type": "array", "items": {"$ref": "#/$defs/rule"}}
  },
  "$defs": {
    "rule": {
      "type": "object",
      "properties": {
        "device": {"type": "string"},
        "control": {
          "oneOf": [
            {"type": "string"},
            {
              "type": "array",
              "minItems": 2,
              "maxItems": 3,
              "prefixItems": [
                {"type": "string", "enum": ["note", "cc"]},
                {"type": "integer", "minimum": 0, "maximum": 127},
                {
                  "oneOf": [
                    {"type": "integer", "minimum": 0, "maximum": 15},
                    {"type": "string"}
                  ]
                }
              ]
            }
          ]
        },
        "action": {"type": "string"},
        "deck": {"type": "string"},
        "edge": {"type": "string", "enum": ["press", "release", "both"]},
        "fixedValue": {"type": "number"},
        "valueScale": {
          "type": "array",
          "minItems": 2,
          "maxItems": 2,
          "items": {"type": "number"}
        },
        "passValue": {"type": "boolean"}
      },
      "required": ["control", "action"]
    }
  }
}`

var configSchema = jsonschema.MustCompileString("config.schema.json", schemaText)

// Validate checks a raw YAML document against the config schema before it is
// unmarshalled into typed structs.
func Validate(content []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return configSchema.Validate(jsonify(doc))
}

// jsonify normalizes YAML-decoded values into the shapes the schema validator
// expects: map keys become strings and nested containers are rewritten.
func jsonify(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = jsonify(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = jsonify(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = jsonify(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
