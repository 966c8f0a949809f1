package protocol

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openconverge/converge/pkg/engine"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestResolveInput(t *testing.T) {
	tests := []struct {
		name     string
		inline   string
		file     func(t *testing.T) string
		stdin    string
		want     map[string]interface{}
		category engine.FailureCategory
	}{
		{
			name:   "inline payload",
			inline: `{"name":"alpha"}`,
			want:   map[string]interface{}{"name": "alpha"},
		},
		{
			name:  "stdin payload",
			stdin: `{"name":"beta"}`,
			want:  map[string]interface{}{"name": "beta"},
		},
		{
			name: "json file",
			file: func(t *testing.T) string {
				return writeTempFile(t, "desired.json", `{"name":"gamma","size":3}`)
			},
			want: map[string]interface{}{"name": "gamma", "size": float64(3)},
		},
		{
			name: "yaml file normalized",
			file: func(t *testing.T) string {
				return writeTempFile(t, "desired.yaml", "name: delta\nenabled: true\ntags:\n  - a\n  - b\n")
			},
			want: map[string]interface{}{
				"name":    "delta",
				"enabled": true,
				"tags":    []interface{}{"a", "b"},
			},
		},
		{
			name: "yml extension normalized",
			file: func(t *testing.T) string {
				return writeTempFile(t, "desired.yml", "name: epsilon\n")
			},
			want: map[string]interface{}{"name": "epsilon"},
		},
		{
			name:   "inline and file are exclusive",
			inline: `{"name":"alpha"}`,
			file: func(t *testing.T) string {
				return writeTempFile(t, "desired.json", `{"name":"alpha"}`)
			},
			category: engine.FailureInvalidArgument,
		},
		{
			name: "missing file",
			file: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "nope.json")
			},
			category: engine.FailureInvalidArgument,
		},
		{
			name: "broken yaml",
			file: func(t *testing.T) string {
				return writeTempFile(t, "desired.yaml", "name: [unclosed\n")
			},
			category: engine.FailureMalformedInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := ""
			if tt.file != nil {
				file = tt.file(t)
			}

			got, err := ResolveInput(tt.inline, file, strings.NewReader(tt.stdin))
			if tt.category != "" {
				if engine.CategoryOf(err) != tt.category {
					t.Fatalf("ResolveInput() category = %v, want %v", engine.CategoryOf(err), tt.category)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveInput() error: %v", err)
			}

			var parsed map[string]interface{}
			if err := json.Unmarshal(got, &parsed); err != nil {
				t.Fatalf("ResolveInput() returned non-JSON %q: %v", got, err)
			}
			for key, want := range tt.want {
				if got := parsed[key]; !equalJSONValue(got, want) {
					t.Errorf("parsed[%s] = %v, want %v", key, got, want)
				}
			}
		})
	}
}

func equalJSONValue(got, want interface{}) bool {
	gotRaw, err := json.Marshal(got)
	if err != nil {
		return false
	}
	wantRaw, err := json.Marshal(want)
	if err != nil {
		return false
	}
	return string(gotRaw) == string(wantRaw)
}

func TestReadDocumentSizeCap(t *testing.T) {
	within := strings.Repeat("a", 64)
	got, err := ReadDocument(strings.NewReader(within))
	if err != nil {
		t.Fatalf("ReadDocument() error: %v", err)
	}
	if string(got) != within {
		t.Error("ReadDocument() mangled the payload")
	}

	oversize := strings.Repeat("a", MaxDocumentSize+1)
	_, err = ReadDocument(strings.NewReader(oversize))
	if !engine.IsMalformedInput(err) {
		t.Fatalf("ReadDocument() category = %v, want malformed-input", engine.CategoryOf(err))
	}
}

func TestResolveInputOversizeInline(t *testing.T) {
	_, err := ResolveInput(strings.Repeat("a", MaxDocumentSize+1), "", nil)
	if !engine.IsMalformedInput(err) {
		t.Fatalf("ResolveInput() category = %v, want malformed-input", engine.CategoryOf(err))
	}
}

func TestResolveInputEmptyStdin(t *testing.T) {
	got, err := ResolveInput("", "", strings.NewReader(""))
	if err != nil {
		t.Fatalf("ResolveInput() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ResolveInput() = %q, want empty", got)
	}
}
