package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorObserveParse(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.ObserveParse(10, 7, 1, 20*time.Millisecond)
	c.ObserveParse(5, 5, 0, time.Millisecond)

	if got := testutil.ToFloat64(c.linesTotal); got != 15 {
		t.Errorf("lines_total = %v, want 15", got)
	}
	if got := testutil.ToFloat64(c.dispatchedTotal); got != 12 {
		t.Errorf("lines_dispatched_total = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.warningsTotal); got != 1 {
		t.Errorf("warnings_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.parseDuration); got != 1 {
		t.Errorf("expected one histogram series, got %d", got)
	}
}

func TestCollectorRecordImport(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.RecordImport(2, 1, 0)
	c.RecordImport(1, 0, 3)
	c.RecordImportError()

	tests := []struct {
		result string
		want   float64
	}{
		{"inserted", 3},
		{"updated", 1},
		{"skipped", 3},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.matchesTotal.WithLabelValues(tt.result)); got != tt.want {
			t.Errorf("matches_imported_total{result=%q} = %v, want %v", tt.result, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(c.importErrors); got != 1 {
		t.Errorf("import_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.lastImport); got <= 0 {
		t.Errorf("expected last import timestamp to be set, got %v", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *Collector
	c.ObserveParse(1, 1, 1, time.Second)
	c.RecordImport(1, 1, 1)
	c.RecordImportError()
}

func TestCollectorHandler(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.ObserveParse(3, 2, 0, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "powerlog_lines_total 3") {
		t.Errorf("expected lines counter in output:\n%s", body)
	}
}
