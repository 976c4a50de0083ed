package application

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
	"github.com/AkatukiSora/powerlog-replay/internal/persistence"
)

// importBatchSize is the number of sealed matches written per transaction
// while scanning a file.
const importBatchSize = 64

// importState tracks one pass over one log file: the parser plus the byte
// and line positions needed to locate each match in the file.
type importState struct {
	path   string
	parser *parser.Parser
	onSeal func(*parser.Match)

	// Matches sealed before the resume point; added to parser ordinals.
	ordinalBase int
	sealed      int

	lineNumber int64
	byteOffset int64

	// Position of the line that opened the match in progress.
	current        *parser.Match
	matchStartByte int64
	matchStartLine int64
	matchWarnings  int

	lastUID string
}

func (s *Service) newImportState(path string) *importState {
	return &importState{
		path:   path,
		parser: parser.NewParser(parser.WithLogger(s.logger.With("path", path))),
		onSeal: s.observeSealed,
	}
}

// resume positions the state at a stored cursor. The cursor always points at
// a match boundary, so only the line format needs restoring.
func (st *importState) resume(c persistence.ImportCursor, ordinalBase int) {
	if c.Checkpoint != nil {
		st.parser.RestoreCheckpoint(*c.Checkpoint)
	}
	st.ordinalBase = ordinalBase
	st.lineNumber = c.NextLineNumber
	st.byteOffset = c.NextByteOffset
	st.lastUID = c.LastMatchUID
}

// feed parses one line spanning [start, end) and returns the record of the
// match it sealed, if any.
func (st *importState) feed(line string, start, end int64) (persistence.MatchRecord, bool) {
	st.lineNumber++
	prev := st.current
	warningsBefore := st.parser.Stats().Warnings

	if err := st.parser.ParseLine(line); err != nil {
		var ce *parser.ConsistencyError
		if errors.As(err, &ce) {
			// The line is dropped; the parse context is unchanged.
			slog.Warn("inconsistent power log line", "path", st.path, "line", st.lineNumber, "error", err)
		} else {
			slog.Warn("parse line failed", "path", st.path, "line", st.lineNumber, "error", err)
		}
	}
	st.byteOffset = end

	var (
		rec    persistence.MatchRecord
		sealed bool
	)
	if cur := st.parser.Current(); cur != prev {
		if prev != nil {
			rec, sealed = st.record(prev, start, st.lineNumber-1)
			st.seal(prev, rec, sealed)
		}
		st.current = cur
		st.matchStartByte = start
		st.matchStartLine = st.lineNumber
		st.matchWarnings = 0
	}
	st.matchWarnings += int(st.parser.Stats().Warnings - warningsBefore)
	return rec, sealed
}

// finish seals the match in progress and returns its record.
func (st *importState) finish() (persistence.MatchRecord, bool) {
	m := st.current
	if m == nil {
		return persistence.MatchRecord{}, false
	}
	st.parser.Finish()
	rec, ok := st.record(m, st.byteOffset, st.lineNumber)
	st.seal(m, rec, ok)
	st.current = nil
	return rec, ok
}

// snapshot returns the record of the match in progress without sealing it.
func (st *importState) snapshot() (persistence.MatchRecord, bool) {
	if st.current == nil {
		return persistence.MatchRecord{}, false
	}
	return st.record(st.current, st.byteOffset, st.lineNumber)
}

func (st *importState) seal(m *parser.Match, rec persistence.MatchRecord, ok bool) {
	st.sealed++
	if ok {
		st.lastUID = rec.UID()
	}
	if st.onSeal != nil {
		st.onSeal(m)
	}
}

func (st *importState) record(m *parser.Match, endByte, endLine int64) (persistence.MatchRecord, bool) {
	src := persistence.MatchSourceRef{
		SourcePath: st.path,
		StartByte:  st.matchStartByte,
		EndByte:    endByte,
		StartLine:  st.matchStartLine,
		EndLine:    endLine,
	}
	rec, err := persistence.BuildMatchRecord(m, src, st.matchWarnings)
	if err != nil {
		slog.Error("failed to build match record", "path", st.path, "line", st.matchStartLine, "error", err)
		return persistence.MatchRecord{}, false
	}
	rec.Ordinal += st.ordinalBase
	return rec, true
}

// cursor returns the resume point: the start of the match in progress, or
// the read position when no match is open.
func (st *importState) cursor() persistence.ImportCursor {
	cp := st.parser.Checkpoint()
	c := persistence.ImportCursor{
		SourcePath:     st.path,
		NextByteOffset: st.byteOffset,
		NextLineNumber: st.lineNumber,
		LastMatchUID:   st.lastUID,
		Checkpoint:     &cp,
		UpdatedAt:      time.Now(),
	}
	if st.current != nil {
		c.NextByteOffset = st.matchStartByte
		c.NextLineNumber = st.matchStartLine - 1
	}
	return c
}

// scan reads r from the state's byte offset to EOF. r must already be
// positioned there or at 0. A final line without a newline is only consumed
// when includePartial is set. Sealed records are handed to emit in batches.
func (s *Service) scan(ctx context.Context, r io.ReadSeeker, st *importState, includePartial bool, emit func([]persistence.MatchRecord) error) error {
	if _, err := r.Seek(st.byteOffset, io.SeekStart); err != nil {
		return err
	}

	started := time.Now()
	before := st.parser.Stats()
	defer func() {
		after := st.parser.Stats()
		s.metrics.ObserveParse(
			after.LinesSeen-before.LinesSeen,
			after.LinesDispatched-before.LinesDispatched,
			after.Warnings-before.Warnings,
			time.Since(started),
		)
	}()

	var pending []persistence.MatchRecord
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		atEOF := err != nil
		if line == "" || (atEOF && !includePartial) {
			break
		}

		start := st.byteOffset
		if rec, ok := st.feed(line, start, start+int64(len(line))); ok {
			pending = append(pending, rec)
		}
		if len(pending) >= importBatchSize {
			if err := emit(pending); err != nil {
				return err
			}
			pending = nil
		}
		if atEOF {
			break
		}
	}
	if len(pending) > 0 {
		return emit(pending)
	}
	return nil
}

// feedLines feeds watcher lines, which carry their terminators, starting at
// the state's byte offset.
func (s *Service) feedLines(ctx context.Context, st *importState, lines []string, emit func([]persistence.MatchRecord) error) error {
	started := time.Now()
	before := st.parser.Stats()

	var pending []persistence.MatchRecord
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := st.byteOffset
		if rec, ok := st.feed(line, start, start+int64(len(line))); ok {
			pending = append(pending, rec)
		}
	}

	after := st.parser.Stats()
	s.metrics.ObserveParse(
		after.LinesSeen-before.LinesSeen,
		after.LinesDispatched-before.LinesDispatched,
		after.Warnings-before.Warnings,
		time.Since(started),
	)
	if len(pending) == 0 {
		return nil
	}
	return emit(pending)
}
