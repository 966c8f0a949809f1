package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaDraft is the JSON Schema dialect the descriptor documents declare.
const schemaDraft = "http://json-schema.org/draft-07/schema#"

// Document returns the machine-readable descriptor of the resource type as a
// JSON-Schema-shaped document: draft keyword, required list, per-property
// constraints, additionalProperties:false, and the injected control
// properties. It is a pure function of the schema declarations; callers own
// the returned map.
func (s *Schema) Document() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.props)+4)
	required := []string{}

	for i := range s.props {
		p := &s.props[i]
		properties[p.Name] = propertyDocument(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}

	properties[PropExist] = map[string]interface{}{
		"type":        "boolean",
		"description": "Whether the unit should exist. Absent means true.",
		"default":     true,
	}
	properties[PropPurge] = map[string]interface{}{
		"type":        "boolean",
		"description": "Replace set-valued properties exactly instead of merging additively.",
		"default":     false,
	}
	properties[PropInDesiredState] = map[string]interface{}{
		"type":        "boolean",
		"description": "Whether the unit matched the desired state. Emitted by test.",
		"readOnly":    true,
	}
	properties[PropRestartRequired] = map[string]interface{}{
		"type":        "array",
		"description": "Systems that must restart before the applied change is fully live. Emitted by set.",
		"readOnly":    true,
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"system": map[string]interface{}{"type": "string"},
			},
			"required":             []string{"system"},
			"additionalProperties": false,
		},
	}

	doc := map[string]interface{}{
		"$schema":              schemaDraft,
		"title":                s.typeName,
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func propertyDocument(p *PropertySpec) map[string]interface{} {
	doc := make(map[string]interface{})

	switch p.Kind {
	case KindString:
		doc["type"] = "string"
		if len(p.Enum) > 0 {
			doc["enum"] = p.Enum
		}
		if p.Pattern != "" {
			doc["pattern"] = p.Pattern
		}
	case KindBool:
		doc["type"] = "boolean"
	case KindInt:
		doc["type"] = "integer"
	case KindNumber:
		doc["type"] = "number"
	case KindStringSet, KindStringList:
		doc["type"] = "array"
		items := map[string]interface{}{"type": "string"}
		if len(p.Enum) > 0 {
			items["enum"] = p.Enum
		}
		if p.Pattern != "" {
			items["pattern"] = p.Pattern
		}
		doc["items"] = items
		if p.Kind == KindStringSet {
			doc["uniqueItems"] = true
		}
	}

	if p.Description != "" {
		doc["description"] = p.Description
	}
	if p.Default != nil {
		doc["default"] = p.Default
	}
	if p.WriteOnly {
		doc["writeOnly"] = true
	}
	if p.ReadOnly {
		doc["readOnly"] = true
	}
	return doc
}

// payloadValidator validates raw invocation payloads against the compiled
// schema document. Compiled once per schema, shared by every decode of the
// process.
type payloadValidator struct {
	schema *jsonschema.Schema
}

func compilePayloadValidator(s *Schema) (*payloadValidator, error) {
	doc := s.Document()
	// Requiredness depends on the operation (set and test demand a full
	// desired document, get and delete only an address), so it is enforced
	// during decode rather than by the compiled schema.
	delete(doc, "required")

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema document: %w", err)
	}
	unmarshaled, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("reading schema document: %w", err)
	}

	id := s.typeName + ".schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, unmarshaled); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	compiled, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return &payloadValidator{schema: compiled}, nil
}

func (v *payloadValidator) validate(raw []byte) error {
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return NewMalformedInputError("payload is not valid JSON", err)
	}
	if err := v.schema.Validate(value); err != nil {
		return NewMalformedInputError("payload violates the resource schema", err)
	}
	return nil
}
