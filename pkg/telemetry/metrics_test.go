package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetricsDisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error: %v", err)
	}

	// All record methods must be safe on a disabled instance.
	m.RecordOperation("sql.login", "set", "success", time.Millisecond)
	m.RecordChangedProperties("sql.login", 3)
	m.SetInDesiredState("sql.login", true)
	m.RecordRestartFlagged("remote.file", "service")
	m.RecordExportedInstance("sql.login")
	m.RecordError("generic")

	if m.Registry() != nil {
		t.Error("Registry() expected nil for disabled metrics")
	}
	if err := m.Flush(context.Background()); err != nil {
		t.Errorf("Flush() unexpected error on disabled metrics: %v", err)
	}
}

func TestMetricsFlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "converge.prom")

	m, err := NewMetrics(MetricsConfig{
		Enabled:      true,
		Namespace:    "converge",
		TextfilePath: path,
	})
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error: %v", err)
	}

	m.RecordOperation("sql.login", "set", "success", 25*time.Millisecond)
	m.RecordChangedProperties("sql.login", 2)
	m.SetInDesiredState("sql.login", false)
	m.RecordError("permission-denied")

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"converge_operations_total",
		`resource_type="sql.login"`,
		`operation="set"`,
		`status="success"`,
		"converge_properties_changed_total",
		"converge_in_desired_state",
		"converge_errors_by_category_total",
		`category="permission-denied"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile output missing %q", want)
		}
	}
}

func TestMetricsFlushWithoutSinks(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "converge"})
	if err != nil {
		t.Fatalf("NewMetrics() unexpected error: %v", err)
	}

	m.RecordOperation("test.sentinel", "get", "success", time.Millisecond)

	// No sinks configured is not an error at flush time.
	if err := m.Flush(context.Background()); err != nil {
		t.Errorf("Flush() unexpected error: %v", err)
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)

	if d := timer.Duration(); d < 5*time.Millisecond {
		t.Errorf("Duration() = %v, want at least 5ms", d)
	}
}
