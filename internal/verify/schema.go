package verify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// scenarioSchema describes the scenario document. Checks it cannot express
// live in Step.checkPath.
const scenarioSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Verification Scenario",
  "type": "object",
  "required": ["steps"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/definitions/step"}
    }
  },
  "definitions": {
    "role": {"enum": ["link", "tab", "button", "checkbox"]},
    "target": {
      "type": "object",
      "oneOf": [
        {
          "required": ["role"],
          "additionalProperties": false,
          "properties": {
            "role": {"$ref": "#/definitions/role"},
            "name": {"type": "string"}
          }
        },
        {
          "required": ["label"],
          "additionalProperties": false,
          "properties": {"label": {"type": "string", "minLength": 1}}
        },
        {
          "required": ["placeholder"],
          "additionalProperties": false,
          "properties": {"placeholder": {"type": "string", "minLength": 1}}
        },
        {
          "required": ["id"],
          "additionalProperties": false,
          "properties": {"id": {"type": "string", "minLength": 1}}
        }
      ]
    },
    "step": {
      "type": "object",
      "required": ["action"],
      "additionalProperties": false,
      "properties": {
        "action": {
          "enum": ["say", "goto", "expect_visible", "click", "check",
                   "expect_url", "fill", "reload", "expect_value", "screenshot"]
        },
        "message": {"type": "string"},
        "path": {"type": "string"},
        "target": {"$ref": "#/definitions/target"},
        "value": {"type": "string"}
      },
      "allOf": [
        {
          "if": {"properties": {"action": {"const": "say"}}},
          "then": {"required": ["message"], "properties": {"message": {"minLength": 1}}}
        },
        {
          "if": {"properties": {"action": {"enum": ["expect_visible", "click", "check", "fill", "expect_value"]}}},
          "then": {"required": ["target"]},
          "else": {"not": {"required": ["target"]}}
        },
        {
          "if": {"properties": {"action": {"enum": ["goto", "expect_url"]}}},
          "else": {"not": {"required": ["path"]}}
        }
      ]
    }
  }
}`

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(scenarioSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario schema: %w", err)
	}
	return schema, nil
})

// validateSchema checks sc against the scenario schema and returns one
// error per violation.
func validateSchema(sc Scenario) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(sc))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []error
	for _, e := range result.Errors() {
		errs = append(errs, fmt.Errorf("%s: %s", fieldPath(e.Field()), e.Description()))
	}
	return errors.Join(errs...)
}

// fieldPath renders a schema field such as "steps.1.target" as
// "step 2: target", matching the numbering used in run errors.
func fieldPath(field string) string {
	parts := strings.SplitN(field, ".", 3)
	if len(parts) >= 2 && parts[0] == "steps" {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			if len(parts) == 3 {
				return fmt.Sprintf("step %d: %s", n+1, parts[2])
			}
			return fmt.Sprintf("step %d", n+1)
		}
	}
	if field == "(root)" {
		return "scenario"
	}
	return field
}
