// Package sentinel implements the test.sentinel resource type. A sentinel is
// an inert unit persisted as one JSON file per name under a state directory.
// It carries every property shape the engine knows about, which makes it the
// reference backend for exercising the full operation contract without
// touching a real system.
package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openconverge/converge/pkg/engine"
)

// TypeName is the resource type implemented by this package.
const TypeName = "test.sentinel"

// Version is the resource type version.
const Version = "1.0.0"

var schema = engine.MustSchema(TypeName, Version,
	engine.PropertySpec{
		Name:        "name",
		Kind:        engine.KindString,
		Description: "Name of the sentinel unit.",
		Required:    true,
		Identifying: true,
	},
	engine.PropertySpec{
		Name:        "value",
		Kind:        engine.KindString,
		Description: "Opaque payload value. Changing it flags a sentinel restart.",
	},
	engine.PropertySpec{
		Name:        "tags",
		Kind:        engine.KindStringSet,
		Description: "Unordered tag set. Additive unless _purge is set.",
	},
	engine.PropertySpec{
		Name:        "priority",
		Kind:        engine.KindInt,
		Description: "Scheduling priority.",
		Default:     0,
	},
	engine.PropertySpec{
		Name:        "secret",
		Kind:        engine.KindString,
		Description: "Write-only credential. Stored but never reported.",
		WriteOnly:   true,
	},
	engine.PropertySpec{
		Name:        "revision",
		Kind:        engine.KindInt,
		Description: "Backend revision counter, incremented by every effective set.",
		ReadOnly:    true,
	},
)

// state is the on-disk representation of one sentinel unit.
type state struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Tags     []string `json:"tags"`
	Priority int64    `json:"priority"`
	Secret   string   `json:"secret,omitempty"`
	Revision int64    `json:"revision"`
}

// Resource manages sentinel units in a state directory.
type Resource struct {
	dir string
}

// New creates a sentinel resource storing its units under dir. The directory
// is created on the first write.
func New(dir string) *Resource {
	return &Resource{dir: dir}
}

// TypeInfo reports the resource type metadata.
func (r *Resource) TypeInfo() engine.TypeInfo {
	return engine.TypeInfo{
		Name:        TypeName,
		Version:     Version,
		Description: "Inert reference unit persisted as a JSON file, one per name.",
	}
}

// Schema reports the property contract.
func (r *Resource) Schema() *engine.Schema {
	return schema
}

// Get reads the sentinel addressed by name. A missing state file reports
// engine.ErrNotFound.
func (r *Resource) Get(ctx context.Context, req *engine.GetRequest) (*engine.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, _ := req.Desired.StringProp("name")
	st, err := r.load(name)
	if err != nil {
		return nil, err
	}
	return r.instance(st), nil
}

// Set writes the desired state over the current one. Properties absent from
// the desired state keep their stored values; the tag set merges additively
// unless the desired state requests a purge. Every effective set increments
// the revision counter, and a value change flags a sentinel restart.
func (r *Resource) Set(ctx context.Context, req *engine.SetRequest) (*engine.SetResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name, _ := req.Desired.StringProp("name")
	if _, err := r.pathFor(name); err != nil {
		return nil, err
	}

	prior := state{Name: name}
	if req.Actual != nil && req.Actual.Exists() {
		prior.Value, _ = req.Actual.StringProp("value")
		prior.Tags, _ = req.Actual.StringsProp("tags")
		prior.Priority, _ = req.Actual.IntProp("priority")
		prior.Secret, _ = req.Actual.StringProp("secret")
		prior.Revision, _ = req.Actual.IntProp("revision")
	}

	next := prior
	if v, ok := req.Desired.StringProp("value"); ok {
		next.Value = v
	}
	if tags, ok := req.Desired.StringsProp("tags"); ok {
		if req.Desired.PurgeMode() {
			next.Tags = sortedTags(tags)
		} else {
			next.Tags = mergeTags(prior.Tags, tags)
		}
	}
	if p, ok := req.Desired.IntProp("priority"); ok {
		next.Priority = p
	}
	if s, ok := req.Desired.StringProp("secret"); ok {
		next.Secret = s
	}
	next.Revision = prior.Revision + 1

	if err := r.save(&next); err != nil {
		return nil, err
	}

	resp := &engine.SetResponse{After: r.instance(&next)}
	if next.Value != prior.Value {
		resp.RestartRequired = []engine.RestartHint{{System: "sentinel"}}
	}
	return resp, nil
}

// Delete removes the sentinel's state file. A missing file reports
// engine.ErrNotFound, which the caller treats as success.
func (r *Resource) Delete(ctx context.Context, req *engine.DeleteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, _ := req.Desired.StringProp("name")
	path, err := r.pathFor(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return r.classify(err, fmt.Sprintf("failed to delete sentinel %s", name))
	}
	return nil
}

// Export enumerates every sentinel in the state directory in name order. A
// missing directory exports nothing.
func (r *Resource) Export(ctx context.Context, emit func(*engine.Instance) error) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return r.classify(err, fmt.Sprintf("failed to read state directory %s", r.dir))
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), stateSuffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), stateSuffix)
		st, err := r.load(name)
		if err != nil {
			return err
		}
		if err := emit(r.instance(st)); err != nil {
			return err
		}
	}
	return nil
}

const stateSuffix = ".json"

// pathFor resolves a sentinel name to its state file path. Names must be
// plain file names so a crafted name cannot escape the state directory.
func (r *Resource) pathFor(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", engine.NewInvalidArgumentError(fmt.Sprintf("sentinel name %q must be a plain file name", name), nil)
	}
	return filepath.Join(r.dir, name+stateSuffix), nil
}

func (r *Resource) load(name string) (*state, error) {
	path, err := r.pathFor(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, r.classify(err, fmt.Sprintf("failed to read sentinel %s", name))
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, engine.NewGenericError(fmt.Sprintf("state file for sentinel %s is corrupt", name), err)
	}
	return &st, nil
}

func (r *Resource) save(st *state) error {
	path, err := r.pathFor(st.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return r.classify(err, fmt.Sprintf("failed to create state directory %s", r.dir))
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return engine.NewGenericError(fmt.Sprintf("failed to encode sentinel %s", st.Name), err)
	}
	data = append(data, '\n')

	// Write to a sibling temp file and rename so readers never observe a
	// partially written state file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return r.classify(err, fmt.Sprintf("failed to write sentinel %s", st.Name))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return r.classify(err, fmt.Sprintf("failed to write sentinel %s", st.Name))
	}
	return nil
}

// instance converts stored state into a wire instance. The secret rides along
// so the write-only stripping on the result path has something to strip.
func (r *Resource) instance(st *state) *engine.Instance {
	tags := st.Tags
	if tags == nil {
		tags = []string{}
	}
	in := engine.NewInstance().
		SetProp("name", st.Name).
		SetProp("value", st.Value).
		SetProp("tags", tags).
		SetProp("priority", st.Priority).
		SetProp("revision", st.Revision)
	if st.Secret != "" {
		in.SetProp("secret", st.Secret)
	}
	return in
}

// classify maps file system failures onto the failure taxonomy. Missing files
// become the internal not-found sentinel, permission failures keep their
// category, and anything else is generic.
func (r *Resource) classify(err error, msg string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return engine.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return engine.NewPermissionDeniedError(msg, err)
	default:
		return engine.NewGenericError(msg, err)
	}
}

func sortedTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	sort.Strings(out)
	return out
}

func mergeTags(actual, desired []string) []string {
	seen := make(map[string]bool, len(actual)+len(desired))
	merged := make([]string, 0, len(actual)+len(desired))
	for _, t := range actual {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	for _, t := range desired {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	sort.Strings(merged)
	return merged
}
