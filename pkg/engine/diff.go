package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DiffResult is the verdict of comparing desired state against actual state.
type DiffResult struct {
	// InDesiredState is true when the actual state satisfies the desired
	// state.
	InDesiredState bool `json:"inDesiredState"`

	// Changed lists the property names that differ, sorted. An existence
	// difference reports the _exist control property.
	Changed []string `json:"changedProperties"`
}

// Diff compares a desired Instance (partial) against the actual Instance
// (full) on the same schema and reports which properties differ.
//
// Comparison proceeds in order: a desired absence is satisfied exactly by an
// actual absence; an actual absence against a desired presence differs only
// in existence; otherwise every domain property present in the desired
// instance is compared using the property's declared semantics. Set-valued
// properties compare additively (actual must contain the desired members)
// unless the desired instance sets the purge flag, which demands exact
// membership. Write-only properties cannot be observed in actual state and
// are excluded; resources that need drift detection for them implement the
// Tester slot.
//
// Diff backs both test, which reports the verdict as _inDesiredState, and
// set, which never mutates the backend when the verdict is satisfied.
func Diff(s *Schema, desired, actual *Instance) (*DiffResult, error) {
	if s == nil {
		return nil, NewGenericError("diff requires a schema", nil)
	}
	if desired == nil || actual == nil {
		return nil, NewGenericError("diff requires desired and actual instances", nil)
	}

	if !desired.Exists() {
		if !actual.Exists() {
			return &DiffResult{InDesiredState: true, Changed: []string{}}, nil
		}
		return &DiffResult{InDesiredState: false, Changed: []string{PropExist}}, nil
	}
	if !actual.Exists() {
		return &DiffResult{InDesiredState: false, Changed: []string{PropExist}}, nil
	}

	purge := desired.PurgeMode()
	changed := []string{}
	for name, want := range desired.Props {
		p, ok := s.Prop(name)
		if !ok {
			return nil, NewMalformedInputError(fmt.Sprintf("property %q not declared by resource type %s", name, s.Type()), nil)
		}
		if p.WriteOnly {
			continue
		}
		got, present := actual.Props[name]
		if !present {
			changed = append(changed, name)
			continue
		}
		equal, err := propertyEqual(p, want, got, purge)
		if err != nil {
			return nil, err
		}
		if !equal {
			changed = append(changed, name)
		}
	}

	sort.Strings(changed)
	return &DiffResult{InDesiredState: len(changed) == 0, Changed: changed}, nil
}

// propertyEqual applies the property's semantic equality: case folding for
// fold-case strings, positional compare for lists, membership compare for
// sets honoring the purge flag.
func propertyEqual(p *PropertySpec, want, got interface{}, purge bool) (bool, error) {
	w, err := coerceValue(p, want)
	if err != nil {
		return false, NewMalformedInputError(fmt.Sprintf("desired property %q", p.Name), err)
	}
	g, err := coerceValue(p, got)
	if err != nil {
		return false, NewGenericError(fmt.Sprintf("actual property %q has an invalid value", p.Name), err)
	}

	switch p.Kind {
	case KindString:
		return stringEqual(p, w.(string), g.(string)), nil
	case KindBool:
		return w.(bool) == g.(bool), nil
	case KindInt:
		return w.(int64) == g.(int64), nil
	case KindNumber:
		return w.(float64) == g.(float64), nil
	case KindStringList:
		return listEqual(p, w.([]string), g.([]string)), nil
	case KindStringSet:
		if purge {
			return setEqual(p, w.([]string), g.([]string)), nil
		}
		return setContains(p, g.([]string), w.([]string)), nil
	}
	return false, NewGenericError(fmt.Sprintf("unsupported property kind %s", p.Kind), nil)
}

func stringEqual(p *PropertySpec, a, b string) bool {
	if p.FoldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func listEqual(p *PropertySpec, want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if !stringEqual(p, want[i], got[i]) {
			return false
		}
	}
	return true
}

// setKey normalizes a member for set membership tests.
func setKey(p *PropertySpec, s string) string {
	if p.FoldCase {
		return strings.ToLower(s)
	}
	return s
}

func setEqual(p *PropertySpec, want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	return setContains(p, got, want)
}

// setContains reports whether every member of want is present in got.
func setContains(p *PropertySpec, got, want []string) bool {
	members := make(map[string]bool, len(got))
	for _, m := range got {
		members[setKey(p, m)] = true
	}
	for _, m := range want {
		if !members[setKey(p, m)] {
			return false
		}
	}
	return true
}
