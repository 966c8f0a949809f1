package engine

import (
	"fmt"
	"regexp"
)

// PropertyKind identifies the value shape of a schema property.
type PropertyKind string

const (
	// KindString is a scalar UTF-8 string.
	KindString PropertyKind = "string"

	// KindBool is a scalar boolean.
	KindBool PropertyKind = "bool"

	// KindInt is a scalar integer.
	KindInt PropertyKind = "int"

	// KindNumber is a scalar floating point number.
	KindNumber PropertyKind = "number"

	// KindStringSet is an unordered collection of unique strings. Comparison
	// is by membership and honors the purge flag.
	KindStringSet PropertyKind = "stringSet"

	// KindStringList is an ordered sequence of strings. Comparison is
	// positional.
	KindStringList PropertyKind = "stringList"
)

// Validate checks if the property kind is valid.
func (k PropertyKind) Validate() error {
	switch k {
	case KindString, KindBool, KindInt, KindNumber, KindStringSet, KindStringList:
		return nil
	default:
		return fmt.Errorf("invalid property kind: %s", k)
	}
}

// isStringKind reports whether values of this kind are strings or string
// collections, making Enum, Pattern and FoldCase applicable.
func (k PropertyKind) isStringKind() bool {
	return k == KindString || k == KindStringSet || k == KindStringList
}

// PropertySpec describes a single property of a resource schema.
type PropertySpec struct {
	// Name is the property name as it appears in instance documents.
	// Names starting with an underscore are reserved for the runtime.
	Name string `json:"name"`

	// Kind is the value shape of the property.
	Kind PropertyKind `json:"kind"`

	// Description is the human-readable property documentation, surfaced in
	// the schema document.
	Description string `json:"description,omitempty"`

	// Required marks the property as mandatory in desired state documents.
	Required bool `json:"required,omitempty"`

	// Identifying marks the property as part of the key that addresses a
	// unit. Get, delete and export resolve units by identifying properties.
	Identifying bool `json:"identifying,omitempty"`

	// WriteOnly marks a property that is accepted on input but never echoed
	// back in results. Examples: passwords, tokens.
	WriteOnly bool `json:"writeOnly,omitempty"`

	// ReadOnly marks a property the backend reports but callers must not
	// send. Examples: generated ids, revision counters.
	ReadOnly bool `json:"readOnly,omitempty"`

	// Default is the value the resource applies when the property is absent
	// at creation. It is advertised in the schema document and never injected
	// into desired state.
	Default interface{} `json:"default,omitempty"`

	// Enum restricts string values to a fixed vocabulary. For collection
	// kinds it constrains the elements.
	Enum []string `json:"enum,omitempty"`

	// Pattern restricts string values to a regular expression. For
	// collection kinds it constrains the elements.
	Pattern string `json:"pattern,omitempty"`

	// FoldCase selects case-insensitive comparison for the property value or
	// its elements.
	FoldCase bool `json:"foldCase,omitempty"`
}

// typeNamePattern constrains resource type names to namespace.kind form.
var typeNamePattern = regexp.MustCompile(`^[a-z0-9]+\.[a-z0-9_]+$`)

// propNamePattern constrains property names to camelCase identifiers. The
// leading-letter requirement keeps the underscore prefix reserved for
// runtime control properties.
var propNamePattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*$`)

// Schema is the immutable property contract of a resource type. Build it with
// NewSchema once per process; all operations of an invocation share it.
type Schema struct {
	typeName string
	version  string
	props    []PropertySpec
	byName   map[string]int

	validator *payloadValidator
}

// NewSchema builds and validates a schema for the given resource type.
// Property order is preserved and surfaced in the schema document.
func NewSchema(typeName, version string, props ...PropertySpec) (*Schema, error) {
	s := &Schema{
		typeName: typeName,
		version:  version,
		props:    make([]PropertySpec, len(props)),
		byName:   make(map[string]int, len(props)),
	}
	copy(s.props, props)

	if err := s.validate(); err != nil {
		return nil, err
	}

	v, err := compilePayloadValidator(s)
	if err != nil {
		return nil, fmt.Errorf("compiling schema document for %s: %w", typeName, err)
	}
	s.validator = v
	return s, nil
}

// MustSchema builds a schema and panics on error. Intended for static schema
// declarations in resource packages.
func MustSchema(typeName, version string, props ...PropertySpec) *Schema {
	s, err := NewSchema(typeName, version, props...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) validate() error {
	if !typeNamePattern.MatchString(s.typeName) {
		return fmt.Errorf("invalid resource type name %q: must match %s", s.typeName, typeNamePattern)
	}
	if s.version == "" {
		return fmt.Errorf("resource type %s: version is required", s.typeName)
	}
	if len(s.props) == 0 {
		return fmt.Errorf("resource type %s: schema has no properties", s.typeName)
	}

	identifying := 0
	for i := range s.props {
		p := &s.props[i]
		if err := s.validateProperty(p); err != nil {
			return fmt.Errorf("resource type %s: %w", s.typeName, err)
		}
		if _, dup := s.byName[p.Name]; dup {
			return fmt.Errorf("resource type %s: duplicate property %q", s.typeName, p.Name)
		}
		s.byName[p.Name] = i
		if p.Identifying {
			identifying++
		}
	}
	if identifying == 0 {
		return fmt.Errorf("resource type %s: schema needs at least one identifying property", s.typeName)
	}
	return nil
}

func (s *Schema) validateProperty(p *PropertySpec) error {
	if !propNamePattern.MatchString(p.Name) {
		return fmt.Errorf("invalid property name %q: must match %s", p.Name, propNamePattern)
	}
	if err := p.Kind.Validate(); err != nil {
		return fmt.Errorf("property %q: %w", p.Name, err)
	}

	if p.ReadOnly && p.WriteOnly {
		return fmt.Errorf("property %q: cannot be both read-only and write-only", p.Name)
	}
	if p.ReadOnly && p.Required {
		return fmt.Errorf("property %q: read-only property cannot be required", p.Name)
	}
	if p.ReadOnly && p.Identifying {
		return fmt.Errorf("property %q: read-only property cannot be identifying", p.Name)
	}
	if p.WriteOnly && p.Identifying {
		return fmt.Errorf("property %q: write-only property cannot be identifying", p.Name)
	}
	if p.Identifying && !p.Required {
		return fmt.Errorf("property %q: identifying property must be required", p.Name)
	}

	if !p.Kind.isStringKind() {
		if len(p.Enum) > 0 {
			return fmt.Errorf("property %q: enum requires a string kind", p.Name)
		}
		if p.Pattern != "" {
			return fmt.Errorf("property %q: pattern requires a string kind", p.Name)
		}
		if p.FoldCase {
			return fmt.Errorf("property %q: foldCase requires a string kind", p.Name)
		}
	}

	if p.Pattern != "" {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("property %q: invalid pattern: %w", p.Name, err)
		}
	}

	seen := make(map[string]bool, len(p.Enum))
	for _, v := range p.Enum {
		if seen[v] {
			return fmt.Errorf("property %q: duplicate enum value %q", p.Name, v)
		}
		seen[v] = true
	}

	if p.Default != nil {
		if p.Required {
			return fmt.Errorf("property %q: required property cannot carry a default", p.Name)
		}
		if p.ReadOnly {
			return fmt.Errorf("property %q: read-only property cannot carry a default", p.Name)
		}
		if _, err := coerceValue(p, p.Default); err != nil {
			return fmt.Errorf("property %q: invalid default: %w", p.Name, err)
		}
	}
	return nil
}

// Type returns the resource type name the schema belongs to.
func (s *Schema) Type() string {
	return s.typeName
}

// Version returns the schema version.
func (s *Schema) Version() string {
	return s.version
}

// Props returns the properties in declaration order.
func (s *Schema) Props() []PropertySpec {
	out := make([]PropertySpec, len(s.props))
	copy(out, s.props)
	return out
}

// Prop looks up a property by name.
func (s *Schema) Prop(name string) (*PropertySpec, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.props[i], true
}

// Identifying returns the identifying properties in declaration order.
func (s *Schema) Identifying() []PropertySpec {
	var out []PropertySpec
	for _, p := range s.props {
		if p.Identifying {
			out = append(out, p)
		}
	}
	return out
}

// RequiredNames returns the names of all required properties.
func (s *Schema) RequiredNames() []string {
	var out []string
	for _, p := range s.props {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}
