package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AkatukiSora/powerlog-replay/internal/metrics"
	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
)

// testMatchLog returns one complete match whose first player is named name.
func testMatchLog(clock, name string) string {
	lines := []string{
		"CREATE_GAME",
		"    GameEntity EntityID=1",
		"        tag=TURN value=1",
		"    Player EntityID=2 PlayerID=1 GameAccountId=[hi=1 lo=11]",
		"        tag=CURRENT_PLAYER value=1",
		"    Player EntityID=3 PlayerID=2 GameAccountId=[hi=1 lo=22]",
		"        tag=CURRENT_PLAYER value=0",
		"TAG_CHANGE Entity=" + name + " tag=ENTITY_ID value=2",
		"TAG_CHANGE Entity=Opponent tag=ENTITY_ID value=3",
		"TAG_CHANGE Entity=GameEntity tag=TURN value=3",
	}
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "D %s:%02d.0000000 GameState.DebugPrintPower() - %s\n", clock, i, l)
	}
	return b.String()
}

func quietService(repo persistence.ImportRepository, locator LogFileLocator, opts ...Option) *Service {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewService(repo, locator, opts...)
}

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
}

func listAll(t *testing.T, svc *Service) []persistence.MatchRecord {
	t.Helper()
	recs, total, err := svc.ListMatches(context.Background(), persistence.MatchFilter{})
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if total != len(recs) {
		t.Fatalf("total %d does not match page size %d", total, len(recs))
	}
	return recs
}

func counterValue(t *testing.T, c *metrics.Collector, name string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestBootstrapImportAllLogsImportsEachFileOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	var paths []string
	for i, clock := range []string{"08:00", "09:00", "10:00"} {
		p := filepath.Join(tmp, fmt.Sprintf("Power%d.log", i))
		writeLog(t, p, testMatchLog(clock, fmt.Sprintf("Player%d", i)))
		paths = append(paths, p)
	}
	// A second match in the newest file stays open until more lines arrive.
	appendLog(t, paths[2], testMatchLog("10:30", "Late"))

	repo := persistence.NewMemoryRepository()
	locator := func() ([]string, error) {
		return []string{paths[2], paths[1], paths[0]}, nil
	}
	svc := quietService(repo, locator)

	var progress []BootstrapProgress
	latest, err := svc.BootstrapImportAllLogsWithProgress(context.Background(), func(p BootstrapProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("bootstrap import: %v", err)
	}
	if latest != paths[2] {
		t.Fatalf("latest path = %q, want %q", latest, paths[2])
	}
	if len(progress) != 3 || progress[2].Current != 3 || progress[2].Total != 3 {
		t.Fatalf("unexpected progress %+v", progress)
	}

	// Two historical matches, one sealed and one open match in the active file.
	recs := listAll(t, svc)
	if len(recs) != 4 {
		t.Fatalf("match count = %d, want 4", len(recs))
	}

	for _, p := range paths[:2] {
		c, err := repo.GetCursor(context.Background(), p)
		if err != nil || c == nil || !c.IsFullyImported {
			t.Fatalf("historical cursor for %s not fully imported: %+v, %v", p, c, err)
		}
	}
	active, err := repo.GetCursor(context.Background(), paths[2])
	if err != nil || active == nil {
		t.Fatalf("active cursor: %+v, %v", active, err)
	}
	if active.IsFullyImported {
		t.Error("active log must not be marked fully imported")
	}
	if want := int64(len(testMatchLog("10:00", "Player2"))); active.NextByteOffset != want {
		t.Errorf("active cursor offset = %d, want start of open match %d", active.NextByteOffset, want)
	}

	// A second bootstrap skips the historical files and changes nothing.
	svc2 := quietService(repo, locator)
	progress = nil
	if _, err := svc2.BootstrapImportAllLogsWithProgress(context.Background(), func(p BootstrapProgress) {
		progress = append(progress, p)
	}); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if len(progress) != 1 || progress[0].Skipped != 2 {
		t.Fatalf("expected historical files to be skipped, got %+v", progress)
	}
	if got := listAll(t, svc2); len(got) != 4 {
		t.Fatalf("match count after second bootstrap = %d, want 4", len(got))
	}
}

func TestImportLinesSealsMatchesAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Power.log")
	first := testMatchLog("12:00", "Alice")
	writeLog(t, path, first)

	collector := metrics.NewCollector(nil)
	svc := quietService(persistence.NewMemoryRepository(), nil, WithMetrics(collector))
	ctx := context.Background()
	if err := svc.ChangeLogFile(ctx, path); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// The open match is flushed on activation.
	recs := listAll(t, svc)
	if len(recs) != 1 || recs[0].Ordinal != 1 {
		t.Fatalf("expected the open match to be stored, got %+v", recs)
	}

	offset, err := svc.NextOffset(ctx, path)
	if err != nil {
		t.Fatalf("next offset: %v", err)
	}
	if offset != int64(len(first)) {
		t.Fatalf("next offset = %d, want %d", offset, len(first))
	}

	second := testMatchLog("12:30", "Bob")
	lines := strings.SplitAfter(second, "\n")
	lines = lines[:len(lines)-1]
	if err := svc.ImportLines(ctx, path, lines, offset, offset+int64(len(second))); err != nil {
		t.Fatalf("import lines: %v", err)
	}

	recs = listAll(t, svc)
	if len(recs) != 1 {
		t.Fatalf("expected the open match to be updated in place, got %d matches", len(recs))
	}
	if recs[0].Turns != 3 || recs[0].Source.EndByte != offset {
		t.Errorf("sealed match has unexpected columns %+v", recs[0].Source)
	}

	if err := svc.FlushActive(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	recs = listAll(t, svc)
	if len(recs) != 2 || recs[1].Ordinal != 2 || recs[1].Source.StartByte != offset {
		t.Fatalf("expected second match after flush, got %+v", recs)
	}

	cursor, err := svc.GetCursor(ctx, path)
	if err != nil || cursor == nil {
		t.Fatalf("cursor: %+v, %v", cursor, err)
	}
	if cursor.NextByteOffset != offset || cursor.LastMatchUID != recs[0].UID() {
		t.Errorf("cursor should point at the open match: %+v", cursor)
	}

	totals := svc.SessionTotals()
	if totals.Matches != 1 || totals.ByPlayer["Alice"] != 1 {
		t.Errorf("unexpected session totals %+v", totals)
	}
	if got := counterValue(t, collector, "powerlog_lines_total"); got == 0 {
		t.Error("expected parsed lines to be recorded")
	}
	if got := counterValue(t, collector, "powerlog_import_errors_total"); got != 0 {
		t.Errorf("unexpected import errors: %v", got)
	}
}

func TestImportLinesSkipsStaleSource(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	pathA := filepath.Join(tmp, "a", "Power.log")
	pathB := filepath.Join(tmp, "b", "Power.log")
	for _, p := range []string{pathA, pathB} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	writeLog(t, pathA, testMatchLog("01:00", "Alice"))
	writeLog(t, pathB, testMatchLog("01:10", "Bob"))

	svc := quietService(persistence.NewMemoryRepository(), nil)
	ctx := context.Background()
	if err := svc.ChangeLogFile(ctx, pathA); err != nil {
		t.Fatalf("activate A: %v", err)
	}
	if err := svc.ChangeLogFile(ctx, pathB); err != nil {
		t.Fatalf("activate B: %v", err)
	}
	if svc.LogPath() != pathB {
		t.Fatalf("active path = %q, want %q", svc.LogPath(), pathB)
	}

	before := listAll(t, svc)
	if len(before) != 2 {
		t.Fatalf("expected one match per file, got %d", len(before))
	}

	stale := strings.SplitAfter(testMatchLog("01:20", "Carol"), "\n")
	if err := svc.ImportLines(ctx, pathA, stale, 0, 128); err != nil {
		t.Fatalf("stale import call: %v", err)
	}
	if after := listAll(t, svc); len(after) != len(before) {
		t.Fatalf("stale source lines changed the store: before=%d after=%d", len(before), len(after))
	}

	// Switching away sealed A's last match.
	if totals := svc.SessionTotals(); totals.Matches != 1 || totals.ByPlayer["Alice"] != 1 {
		t.Errorf("expected A's match to be sealed on switch, got %+v", totals)
	}
}

func TestImportFileResumesAndRefreshesLastMatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Power.log")
	writeLog(t, path, testMatchLog("14:00", "Alice")+testMatchLog("14:30", "Bob"))

	repo := persistence.NewMemoryRepository()
	svc := quietService(repo, nil)
	ctx := context.Background()

	res, err := svc.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Matches != 2 || res.Inserted != 2 {
		t.Fatalf("unexpected first import result %+v", res)
	}

	// The last match grows after the first import.
	appendLog(t, path, "D 14:31:00.0000000 GameState.DebugPrintPower() - TAG_CHANGE Entity=GameEntity tag=TURN value=9\n")

	res, err = svc.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Matches != 1 || res.Updated != 1 || res.Inserted != 0 {
		t.Fatalf("expected only the last match to be refreshed, got %+v", res)
	}

	recs := listAll(t, svc)
	if len(recs) != 2 {
		t.Fatalf("expected 2 stored matches, got %d", len(recs))
	}
	if recs[1].Ordinal != 2 || recs[1].Turns != 9 {
		t.Errorf("last match not refreshed: ordinal=%d turns=%d", recs[1].Ordinal, recs[1].Turns)
	}
	if recs[0].Turns != 3 {
		t.Errorf("first match changed: turns=%d", recs[0].Turns)
	}

	full, err := svc.GetMatchByUID(ctx, recs[1].UID())
	if err != nil || full == nil {
		t.Fatalf("get match: %+v, %v", full, err)
	}
	if !strings.Contains(string(full.Document), `value="9"`) {
		t.Errorf("document not refreshed:\n%s", full.Document)
	}
}

func TestMarkLogFullyImported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Power.log")
	writeLog(t, path, testMatchLog("16:00", "Alice"))

	repo := persistence.NewMemoryRepository()
	svc := quietService(repo, nil)
	ctx := context.Background()
	if err := svc.ChangeLogFile(ctx, path); err != nil {
		t.Fatalf("activate: %v", err)
	}
	svc.MarkLogFullyImported(ctx, path)
	svc.MarkLogFullyImported(ctx, "")

	c, err := repo.GetCursor(ctx, path)
	if err != nil || c == nil || !c.IsFullyImported {
		t.Fatalf("expected cursor to be fully imported: %+v, %v", c, err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
