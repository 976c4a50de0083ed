package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Methods of the game state printer that carry power stream payloads.
const (
	MethodPrintPower   = "GameState.DebugPrintPower"
	MethodPrintChoices = "GameState.DebugPrintChoices"
	MethodSendChoices  = "GameState.SendChoices"
	MethodPrintOptions = "GameState.DebugPrintOptions"
	MethodSendOption   = "GameState.SendOption"
)

var (
	ErrNoEntityDefinition = errors.New("tag line outside of an entity definition")
	ErrNoChoices          = errors.New("choice line outside of a choices block")
	ErrNoSendChoices      = errors.New("chosen entity outside of a send choices block")
	ErrNoOptions          = errors.New("option line outside of an options block")
	ErrNoOption           = errors.New("sub option outside of an option")
	ErrNoMetaData         = errors.New("meta data info outside of a meta data record")
)

// ConsistencyError reports a line whose grammar rule requires context that was
// never opened. It points at a dispatch bug rather than noisy input, so
// parsing stops.
type ConsistencyError struct {
	Line    int64
	Method  string
	Payload string
	Err     error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("line %d: %s: %v: %q", e.Line, e.Method, e.Err, e.Payload)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// frame is one open block of the main event tree. indent starts as the
// indentation of the line that opened the block and follows the tag changes
// appended directly to it.
type frame struct {
	node   *Node
	indent int
}

// matchState is the parse context of the match in progress.
type matchState struct {
	match *Match
	stack []frame

	entityDef   *Node
	metaData    *Node
	choices     *Node
	sendChoices *Node
	options     *Node
	option      *Node
	lastOption  *Node
}

func (st *matchState) top() *frame {
	return &st.stack[len(st.stack)-1]
}

func (st *matchState) push(n *Node, indent int) {
	st.stack = append(st.stack, frame{node: n, indent: indent})
}

// pop closes the innermost block. The Game root is never closed.
func (st *matchState) pop() bool {
	if len(st.stack) <= 1 {
		return false
	}
	st.stack = st.stack[:len(st.stack)-1]
	return true
}

// Parser holds the state of one pass over a power log: the sealed matches and
// the parse context of the match in progress.
type Parser struct {
	format   Format
	lineNo   int64
	matches  []*Match
	cur      *matchState
	warnings []Warning
	stats    Stats
	logger   *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger that receives warnings. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseLine feeds one physical line. Lines outside the power stream are
// skipped and unrecognized payloads become warnings; the only error is a
// *ConsistencyError.
func (p *Parser) ParseLine(line string) error {
	p.lineNo++
	p.stats.LinesSeen++

	rl, ok := Classify(line, &p.format)
	if !ok {
		return nil
	}
	p.stats.LinesClassified++

	var err error
	switch rl.Method {
	case MethodPrintPower:
		err = p.handlePower(rl)
	case MethodPrintChoices:
		err = p.handleChoices(rl)
	case MethodSendChoices:
		err = p.handleSendChoices(rl)
	case MethodPrintOptions:
		err = p.handleOptions(rl)
	case MethodSendOption:
		err = p.handleSendOption(rl)
	default:
		return nil
	}
	p.stats.LinesDispatched++
	return err
}

// Finish seals the match in progress and returns every match of the input.
func (p *Parser) Finish() []*Match {
	p.sealCurrent()
	return p.Matches()
}

// Matches returns the sealed matches.
func (p *Parser) Matches() []*Match {
	return append([]*Match(nil), p.matches...)
}

// MatchCount returns the number of sealed matches.
func (p *Parser) MatchCount() int {
	return len(p.matches)
}

// Current returns the match in progress, or nil.
func (p *Parser) Current() *Match {
	if p.cur == nil {
		return nil
	}
	return p.cur.match
}

func (p *Parser) Warnings() []Warning {
	return append([]Warning(nil), p.warnings...)
}

func (p *Parser) Stats() Stats { return p.stats }

func (p *Parser) Format() Format { return p.format }

// LineNumber returns the number of lines fed so far.
func (p *Parser) LineNumber() int64 { return p.lineNo }

func (p *Parser) openMatch(ts string) {
	p.sealCurrent()
	m := &Match{
		Ordinal: len(p.matches) + 1,
		Root:    NewNode(KindGame, ts),
		Players: NewPlayerTable(),
	}
	st := &matchState{match: m}
	st.push(m.Root, 0)
	p.cur = st
}

func (p *Parser) sealCurrent() {
	if p.cur == nil {
		return
	}
	p.cur.match.Sealed = true
	p.matches = append(p.matches, p.cur.match)
	p.cur = nil
}

func (p *Parser) warn(rl RawLine, reason string) {
	w := Warning{Line: p.lineNo, Method: rl.Method, Payload: strings.TrimSpace(rl.Payload), Reason: reason}
	p.warnings = append(p.warnings, w)
	p.stats.Warnings++
	p.logger.Warn("unhandled power log line",
		"line", w.Line,
		"method", w.Method,
		"reason", w.Reason,
		"payload", w.Payload,
	)
}

func (p *Parser) inconsistent(rl RawLine, err error) error {
	return &ConsistencyError{Line: p.lineNo, Method: rl.Method, Payload: strings.TrimSpace(rl.Payload), Err: err}
}

// IsMatchStartLine reports whether line is a CREATE_GAME marker in either
// line format.
func IsMatchStartLine(line string) bool {
	var f Format
	rl, ok := Classify(line, &f)
	return ok && rl.Method == MethodPrintPower && strings.TrimSpace(rl.Payload) == markerCreateGame
}

// ParseReader runs a complete pass over r.
func ParseReader(r io.Reader, opts ...Option) (*ParseResult, error) {
	p := NewParser(opts...)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		if err := p.ParseLine(scanner.Text()); err != nil {
			return p.result(), err
		}
	}
	return p.result(), scanner.Err()
}

func (p *Parser) result() *ParseResult {
	return &ParseResult{
		Matches:  p.Finish(),
		Warnings: p.Warnings(),
		Format:   p.format,
		Stats:    p.stats,
	}
}
