package engine

import (
	"fmt"
	"testing"
)

func TestDefaultExitTable(t *testing.T) {
	table := DefaultExitTable()

	if err := table.Validate(); err != nil {
		t.Fatalf("DefaultExitTable().Validate() unexpected error: %v", err)
	}

	want := map[FailureCategory]int{
		FailureGeneric:          1,
		FailureMalformedInput:   2,
		FailureInvalidArgument:  3,
		FailurePermissionDenied: 4,
		FailureInvalidOperation: 5,
	}
	for category, code := range want {
		found := false
		for _, e := range table {
			if e.Category == category {
				found = true
				if e.Code != code {
					t.Errorf("category %s maps to code %d, want %d", category, e.Code, code)
				}
			}
		}
		if !found {
			t.Errorf("category %s missing from default table", category)
		}
	}
}

func TestExitTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   ExitTable
		wantErr bool
	}{
		{
			name:    "default table",
			table:   DefaultExitTable(),
			wantErr: false,
		},
		{
			name:    "empty table",
			table:   ExitTable{},
			wantErr: true,
		},
		{
			name: "code below range",
			table: ExitTable{
				{Code: 0, Category: FailureGeneric},
			},
			wantErr: true,
		},
		{
			name: "code above range",
			table: ExitTable{
				{Code: 256, Category: FailureGeneric},
			},
			wantErr: true,
		},
		{
			name: "unknown category",
			table: ExitTable{
				{Code: 1, Category: FailureGeneric},
				{Code: 2, Category: FailureCategory("timeout")},
			},
			wantErr: true,
		},
		{
			name: "not-found entry forbidden",
			table: ExitTable{
				{Code: 1, Category: FailureGeneric},
				{Code: 6, Category: FailureNotFound},
			},
			wantErr: true,
		},
		{
			name: "missing generic entry",
			table: ExitTable{
				{Code: 2, Category: FailureMalformedInput},
			},
			wantErr: true,
		},
		{
			name: "custom codes",
			table: ExitTable{
				{Code: 10, Category: FailureGeneric},
				{Code: 20, Category: FailurePermissionDenied},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ExitTable.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	table := DefaultExitTable()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error is success", nil, 0},
		{"generic", NewGenericError("boom", nil), 1},
		{"malformed input", NewMalformedInputError("bad json", nil), 2},
		{"invalid argument", NewInvalidArgumentError("unknown role", nil), 3},
		{"permission denied", NewPermissionDeniedError("no", nil), 4},
		{"invalid operation", NewInvalidOperationError("unsupported", nil), 5},
		{"plain error falls back to generic", fmt.Errorf("boom"), 1},
		{"leaked not-found maps to generic", NewNotFoundError("gone", nil), 1},
		{"wrapped category survives", fmt.Errorf("context: %w", NewPermissionDeniedError("no", nil)), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitCodeForCustomTable(t *testing.T) {
	table := ExitTable{
		{Code: 64, Category: FailureGeneric},
		{Code: 77, Category: FailurePermissionDenied},
	}

	if got := table.ExitCodeFor(NewPermissionDeniedError("no", nil)); got != 77 {
		t.Errorf("ExitCodeFor(permission-denied) = %d, want 77", got)
	}
	// Categories without their own entry use the generic code.
	if got := table.ExitCodeFor(NewMalformedInputError("bad", nil)); got != 64 {
		t.Errorf("ExitCodeFor(malformed-input) = %d, want 64", got)
	}
}

func TestWrapExit(t *testing.T) {
	table := DefaultExitTable()

	if got := table.WrapExit(nil); got != nil {
		t.Errorf("WrapExit(nil) = %v, want nil", got)
	}

	cause := NewPermissionDeniedError("login rejected", nil)
	wrapped := table.WrapExit(cause)

	if got := ExitCode(wrapped); got != 4 {
		t.Errorf("ExitCode(wrapped) = %d, want 4", got)
	}
	if !IsPermissionDenied(wrapped) {
		t.Error("Expected the category to survive exit wrapping")
	}
	if wrapped.Error() != cause.Error() {
		t.Errorf("Error() = %q, want the cause message %q", wrapped.Error(), cause.Error())
	}
}

func TestExitCodeWithoutWrapping(t *testing.T) {
	// Errors that never passed through a table resolve against the default.
	if got := ExitCode(NewMalformedInputError("bad", nil)); got != 2 {
		t.Errorf("ExitCode() = %d, want 2", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
}
