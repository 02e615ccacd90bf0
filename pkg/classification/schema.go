package classification

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidPayload marks a classification payload that failed schema
// validation. It is rejected before any plan is built.
var ErrInvalidPayload = errors.New("invalid classification payload")

// resultSchema constrains inbound classification payloads. The
// classifier is an external collaborator; its output is validated at
// the boundary instead of trusted.
const resultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["notification_id", "court", "procedure_number", "act_type", "received_at"],
  "properties": {
    "notification_id": {"type": "string", "minLength": 1},
    "court": {"type": "string", "minLength": 1},
    "procedure_number": {"type": "string", "minLength": 1},
    "procedure_type": {"type": "string"},
    "act_type": {"type": "string", "minLength": 1},
    "urgent": {"type": "boolean"},
    "scope": {"type": "string"},
    "received_at": {"type": "string", "format": "date-time"},
    "hearing": {"type": "string", "format": "date-time"},
    "hearing_location": {"type": "string"},
    "parties": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "role": {"type": "string"}
        }
      }
    },
    "deadlines": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["day_count", "day_kind", "description"],
        "properties": {
          "day_count": {"type": "integer", "minimum": 1},
          "day_kind": {"type": "string", "enum": ["BUSINESS", "NATURAL"]},
          "description": {"type": "string", "minLength": 1}
        }
      }
    },
    "contact": {
      "type": "object",
      "required": ["email"],
      "properties": {
        "name": {"type": "string"},
        "email": {"type": "string", "minLength": 3}
      }
    },
    "suggested_case_id": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("classification.json", resultSchema)

// Decode validates a raw classification payload against the schema and
// unmarshals it.
func Decode(raw []byte) (*Result, error) {
	var loose any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := compiledSchema.Validate(loose); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &res, nil
}
