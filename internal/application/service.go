package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AkatukiSora/powerlog-replay/internal/metrics"
	"github.com/AkatukiSora/powerlog-replay/internal/parser"
	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
	"github.com/AkatukiSora/powerlog-replay/internal/stats"
)

// AppService is the interface the CLI depends on for log import and queries.
// application.Service satisfies this interface.
type AppService interface {
	BootstrapImportAllLogs(ctx context.Context) (string, error)
	BootstrapImportAllLogsWithProgress(ctx context.Context, onProgress func(BootstrapProgress)) (string, error)
	ImportFile(ctx context.Context, path string) (ImportResult, error)
	ChangeLogFile(ctx context.Context, path string) error
	ImportLines(ctx context.Context, sourcePath string, lines []string, startOffset int64, endOffset int64) error
	FlushActive(ctx context.Context) error
	ListMatches(ctx context.Context, f persistence.MatchFilter) ([]persistence.MatchRecord, int, error)
	// GetMatchByUID returns the stored match including its document.
	// Returns nil, nil if not found.
	GetMatchByUID(ctx context.Context, uid string) (*persistence.MatchRecord, error)
	NextOffset(ctx context.Context, path string) (int64, error)
	MarkLogFullyImported(ctx context.Context, path string)
	SessionTotals() *stats.Totals
	Close() error
}

type LogFileLocator func() ([]string, error)

// bootstrapWorkers bounds the number of historical files parsed at once.
const bootstrapWorkers = 4

type Service struct {
	mu             sync.Mutex
	repo           persistence.ImportRepository
	detectLogFiles LogFileLocator
	metrics        *metrics.Collector
	logger         *slog.Logger

	// active is the live parse of the log the watcher is tailing.
	active *importState

	incMu   sync.Mutex
	incCalc *stats.IncrementalCalculator
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithLogger sets the logger handed to every parser the service creates.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(repo persistence.ImportRepository, locator LogFileLocator, opts ...Option) *Service {
	if locator == nil {
		locator = func() ([]string, error) {
			return nil, fmt.Errorf("log file locator is not configured")
		}
	}
	s := &Service{
		repo:           repo,
		detectLogFiles: locator,
		logger:         slog.Default(),
		incCalc:        stats.NewIncrementalCalculator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BootstrapProgress carries per-file progress information during bootstrap import.
type BootstrapProgress struct {
	// Current is the 1-based index of the file currently being imported.
	Current int
	// Total is the total number of files to import (skipped files excluded).
	Total int
	// Path is the absolute path of the file being imported.
	Path string
	// Skipped is the number of files skipped (already fully imported).
	Skipped int
}

// ImportResult summarizes one file import.
type ImportResult struct {
	Path     string
	Matches  int
	Inserted int
	Updated  int
	Warnings int64
}

func (s *Service) BootstrapImportAllLogs(ctx context.Context) (string, error) {
	return s.BootstrapImportAllLogsWithProgress(ctx, nil)
}

// BootstrapImportAllLogsWithProgress imports every detected log, oldest first,
// and activates the newest one for live import. Files already marked fully
// imported are skipped. Historical files are parsed concurrently; writes are
// serialized in file order. onProgress may be nil.
func (s *Service) BootstrapImportAllLogsWithProgress(ctx context.Context, onProgress func(BootstrapProgress)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	paths, err := s.detectLogFiles()
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no log files found")
	}

	slog.Info("bootstrapping log import", "files", len(paths))

	// The locator returns newest first. Import oldest -> newest.
	reversed := make([]string, len(paths))
	for i := range paths {
		reversed[i] = paths[len(paths)-1-i]
	}
	activeFile := reversed[len(reversed)-1]

	skipped := 0
	historical := make([]string, 0, len(reversed)-1)
	for _, p := range reversed[:len(reversed)-1] {
		cursor, cerr := s.repo.GetCursor(ctx, p)
		if cerr == nil && cursor != nil && cursor.IsFullyImported {
			slog.Debug("skipping fully-imported file", "path", p)
			skipped++
			continue
		}
		historical = append(historical, p)
	}

	prog := BootstrapProgress{Total: len(historical) + 1, Skipped: skipped}

	if len(historical) > 0 {
		slog.Debug("parallel parse", "files", len(historical), "workers", bootstrapWorkers)

		results := make([]*fileParse, len(historical))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bootstrapWorkers)
		for i, path := range historical {
			i, path := i, path
			g.Go(func() error {
				res, err := s.parseWholeFile(gctx, path)
				if err != nil {
					return fmt.Errorf("parse %q: %w", path, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}

		for _, res := range results {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			cursor := res.state.cursor()
			cursor.IsFullyImported = true
			if _, err := s.saveImportBatch(ctx, res.records, cursor); err != nil {
				return "", fmt.Errorf("save %q: %w", res.state.path, err)
			}

			prog.Current++
			prog.Path = res.state.path
			if onProgress != nil {
				onProgress(prog)
			}
			slog.Debug("historical file imported", "path", res.state.path, "matches", len(res.records))
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	prog.Current++
	prog.Path = activeFile
	if onProgress != nil {
		onProgress(prog)
	}
	if err := s.ChangeLogFile(ctx, activeFile); err != nil {
		return "", fmt.Errorf("import active file %q: %w", activeFile, err)
	}

	slog.Info("bootstrap import complete", "files", len(paths), "skipped", skipped)
	return activeFile, nil
}

// fileParse is the outcome of parsing one file without touching the store.
type fileParse struct {
	state   *importState
	records []persistence.MatchRecord
}

// parseWholeFile parses path from the start and seals its last match.
func (s *Service) parseWholeFile(ctx context.Context, path string) (*fileParse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &fileParse{state: s.newImportState(path)}
	err = s.scan(ctx, f, res.state, true, func(recs []persistence.MatchRecord) error {
		res.records = append(res.records, recs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec, ok := res.state.finish(); ok {
		res.records = append(res.records, rec)
	}
	return res, nil
}

// ImportFile imports path once without activating it. The import resumes
// from the stored cursor, and the cursor is left at the start of the last
// match so that a later import of the same file refreshes it if it grew.
func (s *Service) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	result := ImportResult{Path: path}
	st, f, err := s.openResumable(ctx, path)
	if err != nil {
		return result, err
	}
	defer f.Close()

	warningsBefore := st.parser.Stats().Warnings
	save := func(recs []persistence.MatchRecord) error {
		res, err := s.saveImportBatch(ctx, recs, st.cursor())
		if err != nil {
			return err
		}
		result.Matches += len(recs)
		result.Inserted += res.Inserted
		result.Updated += res.Updated
		return nil
	}
	if err := s.scan(ctx, f, st, true, save); err != nil {
		return result, err
	}
	var last []persistence.MatchRecord
	if rec, ok := st.finish(); ok {
		last = append(last, rec)
	}
	// finish moved the cursor to EOF; keep it on the last match instead.
	cursor := st.cursor()
	if len(last) > 0 {
		cursor.NextByteOffset = last[0].Source.StartByte
		cursor.NextLineNumber = last[0].Source.StartLine - 1
		cursor.LastMatchUID = last[0].UID()
	}
	res, err := s.saveImportBatch(ctx, last, cursor)
	if err != nil {
		return result, err
	}
	result.Matches += len(last)
	result.Inserted += res.Inserted
	result.Updated += res.Updated
	result.Warnings = st.parser.Stats().Warnings - warningsBefore

	slog.Info("file import complete", "path", path, "matches", result.Matches, "inserted", result.Inserted, "updated", result.Updated)
	return result, nil
}

// ChangeLogFile makes path the active log. The in-progress match of the
// previously active log can no longer grow, so it is sealed and stored first.
func (s *Service) ChangeLogFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.active; prev != nil && prev.path != path {
		if rec, ok := prev.finish(); ok {
			if _, err := s.saveImportBatch(ctx, []persistence.MatchRecord{rec}, prev.cursor()); err != nil {
				return fmt.Errorf("store last match of %q: %w", prev.path, err)
			}
		}
	}

	st, f, err := s.openResumable(ctx, path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = s.scan(ctx, f, st, false, func(recs []persistence.MatchRecord) error {
		_, err := s.saveImportBatch(ctx, recs, st.cursor())
		return err
	})
	if err != nil {
		return err
	}
	if _, err := s.saveImportBatch(ctx, nil, st.cursor()); err != nil {
		return err
	}
	s.active = st
	slog.Debug("log file activated", "path", path, "offset", st.byteOffset, "matches", st.sealed)
	return s.flushLocked(ctx)
}

// openResumable opens path and prepares a parse state from its stored cursor.
func (s *Service) openResumable(ctx context.Context, path string) (*importState, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st := s.newImportState(path)

	cursor, err := s.repo.GetCursor(ctx, path)
	if err != nil {
		slog.Warn("failed to load cursor, scanning from start", "path", path, "error", err)
		cursor = nil
	}
	if cursor == nil || cursor.NextByteOffset <= 0 {
		return st, f, nil
	}
	if info, err := f.Stat(); err == nil && info.Size() < cursor.NextByteOffset {
		slog.Info("log shorter than cursor, scanning from start", "path", path, "size", info.Size(), "offset", cursor.NextByteOffset)
		return st, f, nil
	}

	base, err := s.countMatchesBefore(ctx, path, cursor.NextByteOffset)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	st.resume(*cursor, base)
	slog.Debug("resuming file parse from offset", "path", path, "offset", cursor.NextByteOffset, "ordinalBase", base)
	return st, f, nil
}

func (s *Service) countMatchesBefore(ctx context.Context, path string, offset int64) (int, error) {
	recs, err := s.repo.ListMatches(ctx, persistence.MatchFilter{SourcePath: path})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if rec.Source.StartByte < offset {
			n++
		}
	}
	return n, nil
}

// ImportLines feeds lines read by the watcher into the active parse. Lines
// for any other file are stale and ignored.
func (s *Service) ImportLines(ctx context.Context, sourcePath string, lines []string, startOffset int64, endOffset int64) error {
	if len(lines) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.active
	if st == nil || (sourcePath != "" && sourcePath != st.path) {
		return nil
	}
	switch {
	case startOffset == 0 && st.byteOffset > 0:
		slog.Info("active log restarted, resetting parser", "path", st.path)
		st = s.newImportState(st.path)
		s.active = st
	case startOffset != st.byteOffset:
		slog.Warn("watcher offset differs from parser position", "path", st.path, "watcher", startOffset, "parser", st.byteOffset)
		st.byteOffset = startOffset
	}

	var recs []persistence.MatchRecord
	err := s.feedLines(ctx, st, lines, func(r []persistence.MatchRecord) error {
		recs = append(recs, r...)
		return nil
	})
	if err != nil {
		return err
	}
	if endOffset > st.byteOffset {
		st.byteOffset = endOffset
	}
	_, err = s.saveImportBatch(ctx, recs, st.cursor())
	return err
}

// FlushActive stores the in-progress match of the active log as it stands.
// A later store of the same match replaces it.
func (s *Service) FlushActive(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Service) flushLocked(ctx context.Context) error {
	if s.active == nil {
		return nil
	}
	rec, ok := s.active.snapshot()
	if !ok {
		return nil
	}
	_, err := s.saveImportBatch(ctx, []persistence.MatchRecord{rec}, s.active.cursor())
	return err
}

// MarkLogFullyImported marks the given log file path as fully imported in the
// persistence layer. This should be called when a new log file is detected so
// the previous log is never re-scanned on future startups.
func (s *Service) MarkLogFullyImported(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.repo.MarkFullyImported(ctx, path); err != nil {
		slog.Warn("failed to mark log as fully imported", "path", path, "error", err)
	}
}

func (s *Service) LogPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.path
}

func (s *Service) GetCursor(ctx context.Context, path string) (*persistence.ImportCursor, error) {
	if path == "" {
		return nil, nil
	}
	return s.repo.GetCursor(ctx, path)
}

// NextOffset returns where a watcher should start reading path. For the
// active log this is the parser's read position, which is past the stored
// cursor while a match is in progress.
func (s *Service) NextOffset(ctx context.Context, path string) (int64, error) {
	s.mu.Lock()
	if s.active != nil && s.active.path == path {
		off := s.active.byteOffset
		s.mu.Unlock()
		return off, nil
	}
	s.mu.Unlock()

	cursor, err := s.GetCursor(ctx, path)
	if err != nil || cursor == nil {
		return 0, err
	}
	return cursor.NextByteOffset, nil
}

// ListMatches returns one page of stored matches and the total count for the
// filter.
func (s *Service) ListMatches(ctx context.Context, f persistence.MatchFilter) ([]persistence.MatchRecord, int, error) {
	total, err := s.repo.CountMatches(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	recs, err := s.repo.ListMatches(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *Service) GetMatchByUID(ctx context.Context, uid string) (*persistence.MatchRecord, error) {
	return s.repo.GetMatchByUID(ctx, uid)
}

// SessionTotals aggregates the matches sealed since the service started.
func (s *Service) SessionTotals() *stats.Totals {
	s.incMu.Lock()
	defer s.incMu.Unlock()
	return s.incCalc.Compute()
}

func (s *Service) Close() error {
	if c, ok := s.repo.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// observeSealed is called by every import state when a match is sealed.
func (s *Service) observeSealed(m *parser.Match) {
	sum := stats.Summarize(m)
	s.incMu.Lock()
	s.incCalc.Feed(sum)
	s.incMu.Unlock()
}

func (s *Service) saveImportBatch(ctx context.Context, recs []persistence.MatchRecord, cursor persistence.ImportCursor) (persistence.UpsertResult, error) {
	var (
		res persistence.UpsertResult
		err error
	)
	if repo, ok := s.repo.(persistence.ImportBatchRepository); ok {
		res, err = repo.SaveImportBatch(ctx, recs, cursor)
	} else {
		if len(recs) > 0 {
			res, err = s.repo.UpsertMatches(ctx, recs)
		}
		if err == nil {
			err = s.repo.SaveCursor(ctx, cursor)
		}
	}
	if err != nil {
		s.metrics.RecordImportError()
		return persistence.UpsertResult{}, err
	}
	s.metrics.RecordImport(res.Inserted, res.Updated, res.Skipped)
	return res, nil
}
