package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Control property names as they appear in wire documents. The underscore
// prefix separates engine-level control metadata from domain properties.
const (
	// PropExist carries the existence flag. Absent means true.
	PropExist = "_exist"

	// PropPurge carries the purge flag for set-valued properties. Absent
	// means false (additive).
	PropPurge = "_purge"

	// PropInDesiredState is the verdict flag emitted by test.
	PropInDesiredState = "_inDesiredState"

	// PropRestartRequired is the restart metadata emitted by set.
	PropRestartRequired = "_restartRequired"
)

// controlPrefix marks control properties in the wire format.
const controlPrefix = "_"

// RestartHint names a system that must restart before an applied change is
// fully live.
type RestartHint struct {
	// System identifies what needs the restart, e.g. a service name.
	System string `json:"system"`
}

// Instance is a document conforming to a Schema: partial when it describes
// desired state, full when it reports actual state. Control metadata lives in
// explicit fields; the underscore convention exists only in the wire format.
type Instance struct {
	// Exist is the desired or observed existence of the unit. Nil means true.
	Exist *bool

	// Purge selects exact membership for set-valued properties. Nil means
	// false.
	Purge *bool

	// InDesiredState is the test verdict. Emitted only by test, never
	// accepted on input.
	InDesiredState *bool

	// RestartRequired lists systems needing a restart. Emitted only by set,
	// never accepted on input.
	RestartRequired []RestartHint

	// Props holds the domain properties by name.
	Props map[string]interface{}
}

// NewInstance returns an empty instance with an initialized property map.
func NewInstance() *Instance {
	return &Instance{Props: make(map[string]interface{})}
}

// Exists reports the effective existence flag, defaulting to true.
func (in *Instance) Exists() bool {
	return in.Exist == nil || *in.Exist
}

// PurgeMode reports the effective purge flag, defaulting to false.
func (in *Instance) PurgeMode() bool {
	return in.Purge != nil && *in.Purge
}

// SetExist sets the existence flag and returns the instance for chaining.
func (in *Instance) SetExist(exist bool) *Instance {
	in.Exist = &exist
	return in
}

// SetProp sets a domain property and returns the instance for chaining.
func (in *Instance) SetProp(name string, value interface{}) *Instance {
	if in.Props == nil {
		in.Props = make(map[string]interface{})
	}
	in.Props[name] = value
	return in
}

// StringProp returns a string property value.
func (in *Instance) StringProp(name string) (string, bool) {
	v, ok := in.Props[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// BoolProp returns a boolean property value.
func (in *Instance) BoolProp(name string) (bool, bool) {
	v, ok := in.Props[name]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// IntProp returns an integer property value.
func (in *Instance) IntProp(name string) (int64, bool) {
	v, ok := in.Props[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

// StringsProp returns a string collection property value.
func (in *Instance) StringsProp(name string) ([]string, bool) {
	v, ok := in.Props[name]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...), true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Clone returns a deep copy of the instance.
func (in *Instance) Clone() *Instance {
	if in == nil {
		return nil
	}
	out := &Instance{}
	if in.Exist != nil {
		b := *in.Exist
		out.Exist = &b
	}
	if in.Purge != nil {
		b := *in.Purge
		out.Purge = &b
	}
	if in.InDesiredState != nil {
		b := *in.InDesiredState
		out.InDesiredState = &b
	}
	if len(in.RestartRequired) > 0 {
		out.RestartRequired = append([]RestartHint(nil), in.RestartRequired...)
	}
	if in.Props != nil {
		out.Props = make(map[string]interface{}, len(in.Props))
		for k, v := range in.Props {
			out.Props[k] = cloneValue(v)
		}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case []string:
		return append([]string(nil), vv...)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, item := range vv {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, item := range vv {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return vv
	}
}

// WithoutWriteOnly returns a copy of the instance with every write-only
// property removed. Emitted instances never carry write-only values.
func (in *Instance) WithoutWriteOnly(s *Schema) *Instance {
	out := in.Clone()
	for name := range out.Props {
		if p, ok := s.Prop(name); ok && p.WriteOnly {
			delete(out.Props, name)
		}
	}
	return out
}

// AbsentInstance builds the actual state reported for a unit that does not
// exist: the identifying properties of the desired instance plus existence
// false.
func AbsentInstance(s *Schema, desired *Instance) *Instance {
	out := NewInstance().SetExist(false)
	if desired == nil {
		return out
	}
	for _, p := range s.Identifying() {
		if v, ok := desired.Props[p.Name]; ok {
			out.Props[p.Name] = cloneValue(v)
		}
	}
	return out
}

// MarshalJSON renders the instance in the wire format: domain properties by
// name, control metadata under its underscore-prefixed keys. Nil control
// fields are omitted.
func (in *Instance) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(in.Props)+4)
	for k, v := range in.Props {
		doc[k] = v
	}
	if in.Exist != nil {
		doc[PropExist] = *in.Exist
	}
	if in.Purge != nil {
		doc[PropPurge] = *in.Purge
	}
	if in.InDesiredState != nil {
		doc[PropInDesiredState] = *in.InDesiredState
	}
	if len(in.RestartRequired) > 0 {
		doc[PropRestartRequired] = in.RestartRequired
	}
	return json.Marshal(doc)
}

// UnmarshalJSON splits a wire document into control fields and domain
// properties. Unknown underscore-prefixed keys are rejected; domain
// properties are kept as decoded and validated later against a schema.
func (in *Instance) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return NewMalformedInputError("instance document is not a JSON object", err)
	}

	out := Instance{Props: make(map[string]interface{})}
	for k, v := range doc {
		if !strings.HasPrefix(k, controlPrefix) {
			out.Props[k] = v
			continue
		}
		switch k {
		case PropExist:
			b, ok := v.(bool)
			if !ok {
				return NewMalformedInputError(PropExist+" must be a boolean", nil)
			}
			out.Exist = &b
		case PropPurge:
			b, ok := v.(bool)
			if !ok {
				return NewMalformedInputError(PropPurge+" must be a boolean", nil)
			}
			out.Purge = &b
		case PropInDesiredState:
			b, ok := v.(bool)
			if !ok {
				return NewMalformedInputError(PropInDesiredState+" must be a boolean", nil)
			}
			out.InDesiredState = &b
		case PropRestartRequired:
			hints, err := decodeRestartHints(v)
			if err != nil {
				return err
			}
			out.RestartRequired = hints
		default:
			return NewMalformedInputError(fmt.Sprintf("unknown control property %q", k), nil)
		}
	}
	*in = out
	return nil
}

func decodeRestartHints(v interface{}) ([]RestartHint, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, NewMalformedInputError(PropRestartRequired+" must be an array", nil)
	}
	hints := make([]RestartHint, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, NewMalformedInputError(PropRestartRequired+" entries must be objects", nil)
		}
		system, ok := obj["system"].(string)
		if !ok || system == "" {
			return nil, NewMalformedInputError(PropRestartRequired+" entries need a system identifier", nil)
		}
		if len(obj) != 1 {
			return nil, NewMalformedInputError(PropRestartRequired+" entries accept only a system identifier", nil)
		}
		hints = append(hints, RestartHint{System: system})
	}
	return hints, nil
}

// DecodeMode selects which schema obligations an input payload must meet.
type DecodeMode int

const (
	// DecodeDesired expects a full desired state document: required
	// properties must be present. Set and test decode with it. A document
	// declaring _exist=false relaxes to the address obligations, since it
	// names a unit for removal rather than describing one.
	DecodeDesired DecodeMode = iota

	// DecodeAddress expects a unit address: only identifying properties must
	// be present. Get and delete decode with it.
	DecodeAddress
)

// DecodeInstance validates a raw payload against the schema and decodes it
// into a canonical Instance. All validation failures classify as malformed
// input.
func DecodeInstance(s *Schema, raw []byte, mode DecodeMode) (*Instance, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, NewMalformedInputError("empty payload", nil)
	}
	if err := s.validator.validate(raw); err != nil {
		return nil, err
	}

	in := new(Instance)
	if err := json.Unmarshal(raw, in); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, NewMalformedInputError("invalid payload", err)
	}

	if in.InDesiredState != nil {
		return nil, NewMalformedInputError(PropInDesiredState+" is emitted by test and not accepted on input", nil)
	}
	if len(in.RestartRequired) > 0 {
		return nil, NewMalformedInputError(PropRestartRequired+" is emitted by set and not accepted on input", nil)
	}

	for name, v := range in.Props {
		p, ok := s.Prop(name)
		if !ok {
			return nil, NewMalformedInputError(fmt.Sprintf("unknown property %q", name), nil)
		}
		if p.ReadOnly {
			return nil, NewMalformedInputError(fmt.Sprintf("property %q is read-only and not accepted on input", name), nil)
		}
		cv, err := coerceValue(p, v)
		if err != nil {
			return nil, NewMalformedInputError(fmt.Sprintf("property %q", name), err)
		}
		in.Props[name] = cv
	}

	full := mode == DecodeDesired && in.Exists()
	for _, p := range s.props {
		if p.Identifying || (full && p.Required) {
			if _, ok := in.Props[p.Name]; !ok {
				return nil, NewMalformedInputError(fmt.Sprintf("missing required property %q", p.Name), nil)
			}
		}
	}
	return in, nil
}

// coerceValue converts a decoded JSON value into the canonical Go
// representation of the property kind, enforcing enum and pattern
// constraints: string, bool, int64, float64 or []string.
func coerceValue(p *PropertySpec, v interface{}) (interface{}, error) {
	switch p.Kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		if err := checkStringValue(p, str); err != nil {
			return nil, err
		}
		return str, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return b, nil

	case KindInt:
		switch n := v.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %s", n)
			}
			return i, nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected an integer, got %v", n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("expected an integer, got %T", v)
		}

	case KindNumber:
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %s", n)
			}
			return f, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		default:
			return nil, fmt.Errorf("expected a number, got %T", v)
		}

	case KindStringSet, KindStringList:
		items, err := stringItems(p, v)
		if err != nil {
			return nil, err
		}
		if p.Kind == KindStringSet {
			seen := make(map[string]bool, len(items))
			for _, item := range items {
				key := item
				if p.FoldCase {
					key = strings.ToLower(item)
				}
				if seen[key] {
					return nil, fmt.Errorf("duplicate element %q", item)
				}
				seen[key] = true
			}
		}
		return items, nil
	}
	return nil, fmt.Errorf("unsupported property kind %s", p.Kind)
}

func stringItems(p *PropertySpec, v interface{}) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		for _, item := range out {
			if err := checkStringValue(p, item); err != nil {
				return nil, err
			}
		}
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string elements, got %T", item)
			}
			if err := checkStringValue(p, str); err != nil {
				return nil, err
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of strings, got %T", v)
	}
}

func checkStringValue(p *PropertySpec, s string) error {
	if len(p.Enum) > 0 {
		found := false
		for _, e := range p.Enum {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value %q not in enum %v", s, p.Enum)
		}
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p.Pattern, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("value %q does not match pattern %s", s, p.Pattern)
		}
	}
	return nil
}
