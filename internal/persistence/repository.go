package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
	"github.com/AkatukiSora/powerlog-replay/internal/replay"
	"github.com/AkatukiSora/powerlog-replay/internal/stats"
)

type MatchFilter struct {
	SourcePath string
	// PlayerName keeps matches in which a player with this resolved name took part.
	PlayerName string
	// OnlyResolved drops matches with at least one unnamed player.
	OnlyResolved bool
	// Limit == 0 means no limit.
	Limit  int
	Offset int
}

// MatchSourceRef locates a match inside its source log. StartByte is the
// offset of the line that opened the match.
type MatchSourceRef struct {
	SourcePath string
	StartByte  int64
	EndByte    int64
	StartLine  int64
	EndLine    int64
	MatchUID   string
}

type MatchPlayer struct {
	EntityID  string
	PlayerID  string
	Name      string
	AccountHi string
	AccountLo string
	Resolved  bool
}

// MatchRecord is one stored match: its rendered document plus the summary
// columns used for listing.
type MatchRecord struct {
	Source            MatchSourceRef
	Ordinal           int
	StartTimestamp    string
	Turns             int
	PlayerCount       int
	UnresolvedPlayers int
	Warnings          int
	Players           []MatchPlayer
	// Document is the XML rendering of the match. ListMatches leaves it nil.
	Document   []byte
	ImportedAt time.Time
	UpdatedAt  time.Time
}

// UID returns the identity of the record.
func (r MatchRecord) UID() string {
	return r.Source.MatchUID
}

type UpsertResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

type ImportCursor struct {
	SourcePath     string
	NextByteOffset int64
	NextLineNumber int64
	LastMatchUID   string
	// Checkpoint holds the parser state at the cursor position. When set, the
	// parser can resume from NextByteOffset without a full re-scan.
	Checkpoint      *parser.Checkpoint
	IsFullyImported bool
	UpdatedAt       time.Time
}

type MatchRepository interface {
	UpsertMatches(ctx context.Context, matches []MatchRecord) (UpsertResult, error)
	// ListMatches returns matches ordered by source path and start offset.
	// Documents are not loaded.
	ListMatches(ctx context.Context, f MatchFilter) ([]MatchRecord, error)
	CountMatches(ctx context.Context, f MatchFilter) (int, error)
	// GetMatchByUID returns the full record including its document.
	// Returns nil, nil if not found.
	GetMatchByUID(ctx context.Context, uid string) (*MatchRecord, error)
}

type CursorRepository interface {
	GetCursor(ctx context.Context, sourcePath string) (*ImportCursor, error)
	SaveCursor(ctx context.Context, c ImportCursor) error
	// MarkFullyImported sets is_fully_imported=1 on an existing cursor.
	// If no cursor row exists yet the call is a no-op.
	MarkFullyImported(ctx context.Context, sourcePath string) error
}

type ImportRepository interface {
	MatchRepository
	CursorRepository
}

type ImportBatchRepository interface {
	ImportRepository
	SaveImportBatch(ctx context.Context, matches []MatchRecord, cursor ImportCursor) (UpsertResult, error)
}

// BuildMatchRecord renders m and collects its summary columns. The UID is
// derived from the rendered document unless src already carries one.
func BuildMatchRecord(m *parser.Match, src MatchSourceRef, warnings int) (MatchRecord, error) {
	if m == nil {
		return MatchRecord{}, fmt.Errorf("build match record: nil match")
	}
	doc, err := replay.RenderMatch(m)
	if err != nil {
		return MatchRecord{}, fmt.Errorf("render match %d: %w", m.Ordinal, err)
	}
	sum := stats.Summarize(m)

	rec := MatchRecord{
		Source:            src,
		Ordinal:           m.Ordinal,
		StartTimestamp:    sum.StartTimestamp,
		Turns:             sum.Turns,
		PlayerCount:       len(sum.Players),
		UnresolvedPlayers: sum.Unresolved,
		Warnings:          warnings,
		Document:          doc,
	}
	for _, p := range sum.Players {
		rec.Players = append(rec.Players, MatchPlayer{
			EntityID:  p.EntityID,
			PlayerID:  p.PlayerID,
			Name:      p.Name,
			AccountHi: p.AccountHi,
			AccountLo: p.AccountLo,
			Resolved:  p.Resolved,
		})
	}
	if rec.Source.MatchUID == "" {
		rec.Source.MatchUID = GenerateMatchUID(doc, src)
	}
	return rec, nil
}

// GenerateMatchUID hashes the rendered document. Without a document it falls
// back to the source span.
func GenerateMatchUID(doc []byte, src MatchSourceRef) string {
	if len(doc) == 0 {
		payload := fmt.Sprintf("src:%s|%d|%d|%d|%d", src.SourcePath, src.StartByte, src.EndByte, src.StartLine, src.EndLine)
		s := sha256.Sum256([]byte(payload))
		return hex.EncodeToString(s[:])
	}
	h := sha256.New()
	h.Write([]byte("v1|"))
	h.Write(doc)
	return hex.EncodeToString(h.Sum(nil))
}

func matchesFilter(rec MatchRecord, f MatchFilter) bool {
	if f.SourcePath != "" && rec.Source.SourcePath != f.SourcePath {
		return false
	}
	if f.OnlyResolved && rec.UnresolvedPlayers > 0 {
		return false
	}
	if f.PlayerName != "" {
		found := false
		for _, p := range rec.Players {
			if p.Resolved && p.Name == f.PlayerName {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
