package engine

import (
	"encoding/json"
	"testing"
)

func TestSchemaDocumentShape(t *testing.T) {
	s := widgetSchema(t)
	doc := s.Document()

	if doc["$schema"] != schemaDraft {
		t.Errorf("$schema = %v, want %v", doc["$schema"], schemaDraft)
	}
	if doc["title"] != "test.widget" {
		t.Errorf("title = %v, want test.widget", doc["title"])
	}
	if doc["type"] != "object" {
		t.Errorf("type = %v, want object", doc["type"])
	}
	if doc["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v, want false", doc["additionalProperties"])
	}

	required, ok := doc["required"].([]string)
	if !ok {
		t.Fatalf("required = %T, want []string", doc["required"])
	}
	if len(required) != 1 || required[0] != "name" {
		t.Errorf("required = %v, want [name]", required)
	}

	properties, ok := doc["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties = %T, want map", doc["properties"])
	}

	// Every declared property plus the four control properties.
	if got := len(properties); got != 13 {
		t.Errorf("len(properties) = %d, want 13", got)
	}
	for _, name := range []string{PropExist, PropPurge, PropInDesiredState, PropRestartRequired} {
		if _, ok := properties[name]; !ok {
			t.Errorf("control property %s missing from document", name)
		}
	}

	// The document must survive a JSON round trip.
	if _, err := json.Marshal(doc); err != nil {
		t.Fatalf("document is not marshalable: %v", err)
	}
}

func TestSchemaDocumentPropertyMapping(t *testing.T) {
	s := widgetSchema(t)
	properties := s.Document()["properties"].(map[string]interface{})

	prop := func(name string) map[string]interface{} {
		t.Helper()
		p, ok := properties[name].(map[string]interface{})
		if !ok {
			t.Fatalf("property %s missing or wrong shape", name)
		}
		return p
	}

	if got := prop("name")["type"]; got != "string" {
		t.Errorf("name.type = %v, want string", got)
	}
	if got := prop("enabled")["type"]; got != "boolean" {
		t.Errorf("enabled.type = %v, want boolean", got)
	}
	if got := prop("size")["type"]; got != "integer" {
		t.Errorf("size.type = %v, want integer", got)
	}
	if got := prop("ratio")["type"]; got != "number" {
		t.Errorf("ratio.type = %v, want number", got)
	}

	tags := prop("tags")
	if tags["type"] != "array" {
		t.Errorf("tags.type = %v, want array", tags["type"])
	}
	if tags["uniqueItems"] != true {
		t.Error("tags.uniqueItems missing: sets must declare unique members")
	}

	steps := prop("steps")
	if steps["type"] != "array" {
		t.Errorf("steps.type = %v, want array", steps["type"])
	}
	if _, ok := steps["uniqueItems"]; ok {
		t.Error("steps.uniqueItems present: lists are ordered, not unique")
	}

	tier := prop("tier")
	enum, ok := tier["enum"].([]string)
	if !ok || len(enum) != 2 {
		t.Errorf("tier.enum = %v, want the two declared values", tier["enum"])
	}

	if prop("secret")["writeOnly"] != true {
		t.Error("secret.writeOnly missing")
	}
	if prop("serial")["readOnly"] != true {
		t.Error("serial.readOnly missing")
	}

	exist := prop(PropExist)
	if exist["type"] != "boolean" || exist["default"] != true {
		t.Errorf("%s document = %v, want boolean defaulting true", PropExist, exist)
	}
	purge := prop(PropPurge)
	if purge["type"] != "boolean" || purge["default"] != false {
		t.Errorf("%s document = %v, want boolean defaulting false", PropPurge, purge)
	}
	if prop(PropInDesiredState)["readOnly"] != true {
		t.Errorf("%s must be read-only", PropInDesiredState)
	}
	if prop(PropRestartRequired)["readOnly"] != true {
		t.Errorf("%s must be read-only", PropRestartRequired)
	}
}

func TestPayloadValidation(t *testing.T) {
	s := widgetSchema(t)

	tests := []struct {
		name    string
		payload string
		mode    DecodeMode
		wantErr bool
	}{
		{
			name:    "valid full document",
			payload: `{"name":"alpha","enabled":true,"size":3,"tags":["a","b"]}`,
			mode:    DecodeDesired,
			wantErr: false,
		},
		{
			name:    "valid address",
			payload: `{"name":"alpha"}`,
			mode:    DecodeAddress,
			wantErr: false,
		},
		{
			name:    "not json",
			payload: `{"name":`,
			mode:    DecodeAddress,
			wantErr: true,
		},
		{
			name:    "unknown property",
			payload: `{"name":"alpha","color":"red"}`,
			mode:    DecodeAddress,
			wantErr: true,
		},
		{
			name:    "unknown control property",
			payload: `{"name":"alpha","_force":true}`,
			mode:    DecodeAddress,
			wantErr: true,
		},
		{
			name:    "wrong type for bool",
			payload: `{"name":"alpha","enabled":"yes"}`,
			mode:    DecodeDesired,
			wantErr: true,
		},
		{
			name:    "wrong type for exist flag",
			payload: `{"name":"alpha","_exist":"false"}`,
			mode:    DecodeDesired,
			wantErr: true,
		},
		{
			name:    "enum violation",
			payload: `{"name":"alpha","tier":"gold"}`,
			mode:    DecodeDesired,
			wantErr: true,
		},
		{
			name:    "duplicate set member",
			payload: `{"name":"alpha","tags":["a","a"]}`,
			mode:    DecodeDesired,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInstance(s, []byte(tt.payload), tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInstance() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !IsMalformedInput(err) {
				t.Errorf("DecodeInstance() category = %v, want malformed-input", CategoryOf(err))
			}
		})
	}
}
