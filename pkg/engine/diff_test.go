package engine

import (
	"reflect"
	"testing"
)

func TestDiffDesiredAbsent(t *testing.T) {
	s := widgetSchema(t)
	desired := NewInstance().SetProp("name", "alpha").SetExist(false)

	// Matching absence is satisfied.
	actual := AbsentInstance(s, desired)
	diff, err := Diff(s, desired, actual)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if !diff.InDesiredState {
		t.Error("Diff() not satisfied for matching absence")
	}
	if len(diff.Changed) != 0 {
		t.Errorf("Changed = %v, want empty", diff.Changed)
	}

	// A present unit differs only in existence, whatever its properties.
	actual = NewInstance().SetProp("name", "alpha").SetProp("enabled", true)
	diff, err = Diff(s, desired, actual)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if diff.InDesiredState {
		t.Error("Diff() satisfied for a unit that should be absent")
	}
	if !reflect.DeepEqual(diff.Changed, []string{PropExist}) {
		t.Errorf("Changed = %v, want [%s]", diff.Changed, PropExist)
	}
}

func TestDiffActualAbsent(t *testing.T) {
	s := widgetSchema(t)
	desired := NewInstance().
		SetProp("name", "alpha").
		SetProp("enabled", true).
		SetProp("size", int64(3))
	actual := AbsentInstance(s, desired)

	diff, err := Diff(s, desired, actual)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if diff.InDesiredState {
		t.Error("Diff() satisfied against an absent unit")
	}
	// Absence is the sole difference; property mismatches are not reported.
	if !reflect.DeepEqual(diff.Changed, []string{PropExist}) {
		t.Errorf("Changed = %v, want [%s]", diff.Changed, PropExist)
	}
}

func TestDiffPropertyComparison(t *testing.T) {
	s := widgetSchema(t)

	tests := []struct {
		name        string
		desired     *Instance
		actual      *Instance
		wantInState bool
		wantChanged []string
	}{
		{
			name:        "identical scalars",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("enabled", true).SetProp("size", int64(3)),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("enabled", true).SetProp("size", int64(3)),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "fold-case string matches",
			desired:     NewInstance().SetProp("name", "Alpha"),
			actual:      NewInstance().SetProp("name", "ALPHA"),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "case-sensitive string differs",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("tier", "basic"),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tier", "premium"),
			wantInState: false,
			wantChanged: []string{"tier"},
		},
		{
			name:        "extra actual properties are ignored",
			desired:     NewInstance().SetProp("name", "alpha"),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("enabled", false).SetProp("size", int64(9)),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "missing actual property reports",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("enabled", true),
			actual:      NewInstance().SetProp("name", "alpha"),
			wantInState: false,
			wantChanged: []string{"enabled"},
		},
		{
			name:        "multiple differences sorted",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("size", int64(1)).SetProp("enabled", true),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("size", int64(2)).SetProp("enabled", false),
			wantInState: false,
			wantChanged: []string{"enabled", "size"},
		},
		{
			name:        "ordered list positional equality",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("steps", []string{"x", "y"}),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("steps", []string{"y", "x"}),
			wantInState: false,
			wantChanged: []string{"steps"},
		},
		{
			name:        "set ignores order",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"b", "a"}),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "b"}),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "additive set satisfied by superset",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a"}),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "b", "c"}),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "additive set missing member",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "d"}),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "b"}),
			wantInState: false,
			wantChanged: []string{"tags"},
		},
		{
			name: "purge demands exact membership",
			desired: func() *Instance {
				in := NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a"})
				purge := true
				in.Purge = &purge
				return in
			}(),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "b"}),
			wantInState: false,
			wantChanged: []string{"tags"},
		},
		{
			name: "purge satisfied by exact membership in any order",
			desired: func() *Instance {
				in := NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"b", "a"})
				purge := true
				in.Purge = &purge
				return in
			}(),
			actual:      NewInstance().SetProp("name", "alpha").SetProp("tags", []string{"a", "b"}),
			wantInState: true,
			wantChanged: []string{},
		},
		{
			name:        "write-only property skipped",
			desired:     NewInstance().SetProp("name", "alpha").SetProp("secret", "hunter2"),
			actual:      NewInstance().SetProp("name", "alpha"),
			wantInState: true,
			wantChanged: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff, err := Diff(s, tt.desired, tt.actual)
			if err != nil {
				t.Fatalf("Diff() error: %v", err)
			}
			if diff.InDesiredState != tt.wantInState {
				t.Errorf("InDesiredState = %v, want %v", diff.InDesiredState, tt.wantInState)
			}
			if !reflect.DeepEqual(diff.Changed, tt.wantChanged) {
				t.Errorf("Changed = %v, want %v", diff.Changed, tt.wantChanged)
			}
		})
	}
}

func TestDiffFoldAwareSetMembership(t *testing.T) {
	s := MustSchema("test.folded", "1.0.0",
		PropertySpec{Name: "name", Kind: KindString, Required: true, Identifying: true},
		PropertySpec{Name: "members", Kind: KindStringSet, FoldCase: true},
	)

	desired := NewInstance().SetProp("name", "a").SetProp("members", []string{"Admin"})
	actual := NewInstance().SetProp("name", "a").SetProp("members", []string{"admin", "guest"})

	diff, err := Diff(s, desired, actual)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if !diff.InDesiredState {
		t.Error("fold-case membership not satisfied by differently-cased member")
	}
}

func TestDiffUnknownProperty(t *testing.T) {
	s := widgetSchema(t)
	desired := NewInstance().SetProp("name", "alpha").SetProp("bogus", 1)
	actual := NewInstance().SetProp("name", "alpha")

	_, err := Diff(s, desired, actual)
	if err == nil {
		t.Fatal("Expected error for undeclared desired property, got nil")
	}
	if !IsMalformedInput(err) {
		t.Errorf("category = %v, want malformed-input", CategoryOf(err))
	}
}

func TestDiffNilArguments(t *testing.T) {
	s := widgetSchema(t)
	in := NewInstance().SetProp("name", "alpha")

	if _, err := Diff(nil, in, in); err == nil {
		t.Error("Diff(nil schema) expected error")
	}
	if _, err := Diff(s, nil, in); err == nil {
		t.Error("Diff(nil desired) expected error")
	}
	if _, err := Diff(s, in, nil); err == nil {
		t.Error("Diff(nil actual) expected error")
	}
}

func TestDiffNumericEquivalence(t *testing.T) {
	s := widgetSchema(t)

	// Decoded desired values arrive canonicalized as int64, observed actual
	// values as whatever native width the resource used. The comparison
	// coerces both sides.
	desired, err := DecodeInstance(s, []byte(`{"name":"alpha","size":3}`), DecodeDesired)
	if err != nil {
		t.Fatalf("DecodeInstance() error: %v", err)
	}
	actual := NewInstance().SetProp("name", "alpha").SetProp("size", 3)

	diff, err := Diff(s, desired, actual)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	if !diff.InDesiredState {
		t.Errorf("InDesiredState = false, want true; changed = %v", diff.Changed)
	}
}
