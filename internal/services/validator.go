package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload kinds with a compiled schema.
const (
	PayloadMissionCreate    = "mission_create"
	PayloadRewardItemCreate = "reward_item_create"
	PayloadPunishmentCreate = "punishment_definition_create"
)

// ErrValidation can be used with errors.Is to detect schema failures.
var ErrValidation = errors.New("validation failed")

var payloadSchemas = map[string]string{
	PayloadMissionCreate: `{
		"type": "object",
		"required": ["title", "points_reward", "recurrence"],
		"properties": {
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "maxLength": 2000},
			"points_reward": {"type": "integer", "minimum": 1},
			"recurrence": {"enum": ["none", "daily", "weekly", "monthly"]},
			"due_date": {"type": "string", "format": "date-time"},
			"photo_proof_required": {"type": "boolean"},
			"child_ids": {
				"type": "array",
				"items": {"type": "string", "format": "uuid"}
			}
		}
	}`,
	PayloadRewardItemCreate: `{
		"type": "object",
		"required": ["title", "points_cost"],
		"properties": {
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"points_cost": {"type": "integer", "minimum": 1},
			"quantity_remaining": {"type": "integer", "minimum": 0},
			"age_restriction": {"enum": ["toddler", "kid", "teen"]}
		}
	}`,
	PayloadPunishmentCreate: `{
		"type": "object",
		"required": ["title", "escalation_levels"],
		"properties": {
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "maxLength": 2000},
			"escalation_levels": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["points_deduction"],
					"properties": {
						"points_deduction": {"type": "integer", "minimum": 0},
						"duration_minutes": {"type": "integer", "minimum": 0}
					}
				}
			}
		}
	}`,
}

// Validator checks request payloads against compiled JSON schemas before
// they reach the workflow services.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	schemas := make(map[string]*jsonschema.Schema, len(payloadSchemas))
	for kind, src := range payloadSchemas {
		id := "https://famquest.dev/schemas/" + kind
		s, err := jsonschema.CompileString(id, src)
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
		schemas[kind] = s
	}
	return &Validator{schemas: schemas}, nil
}

// ValidatePayload hard rejects payloads that do not match the kind's schema.
func (v *Validator) ValidatePayload(kind string, payload json.RawMessage) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown payload kind %q", kind)
	}
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
