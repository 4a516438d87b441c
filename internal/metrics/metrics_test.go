package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveRunDuration(2 * time.Second)
	m.SetPackagesTotal("alice", "pipx", 3)
	m.SetPackagesTotal("alice", "brew", 1)
	m.IncOperation("pipx", "install", false)
	m.IncOperation("pipx", "install", true)
	m.IncOperation("pipx", "install", true)
	m.SetManagerUnavailable("flatpak", true)
	m.IncStateRecoveries()
	m.SetLastSuccessfulRunTimestamp(time.Unix(100, 0))

	if got := testutil.ToFloat64(m.packagesTotal.WithLabelValues("alice", "pipx")); got != 3 {
		t.Fatalf("expected pipx packages 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.packagesTotal.WithLabelValues("alice", "brew")); got != 1 {
		t.Fatalf("expected brew packages 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("pipx", "install", "failure")); got != 2 {
		t.Fatalf("expected failed installs 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("pipx", "install", "success")); got != 1 {
		t.Fatalf("expected successful installs 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.managerUnavailable.WithLabelValues("flatpak")); got != 1 {
		t.Fatalf("expected flatpak unavailable, got %v", got)
	}
	if got := testutil.ToFloat64(m.stateRecoveriesTotal); got != 1 {
		t.Fatalf("expected state recoveries 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccessfulRunGauge); got != 100 {
		t.Fatalf("expected last successful run 100, got %v", got)
	}
	if count := testutil.CollectAndCount(m.runDurationSeconds); count == 0 {
		t.Fatalf("expected run duration histogram to be collected")
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.SetPackagesTotal("bob", "pipx", 4)

	path := filepath.Join(t.TempDir(), "package_sync.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `package_sync_packages_total{machine="bob",manager="pipx"} 4`) {
		t.Fatalf("textfile missing gauge sample:\n%s", data)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.ObserveRunDuration(time.Second)
	m.SetPackagesTotal("alice", "pipx", 1)
	m.IncOperation("pipx", "remove", false)
	m.SetManagerUnavailable("brew", true)
	m.IncStateRecoveries()
	m.SetLastSuccessfulRunTimestamp(time.Now())
	if err := m.WriteTextfile("/nonexistent/file.prom"); err != nil {
		t.Fatalf("nil metrics should not write: %v", err)
	}
}
