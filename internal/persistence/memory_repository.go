package persistence

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	matches map[string]MatchRecord
	cursors map[string]ImportCursor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		matches: make(map[string]MatchRecord),
		cursors: make(map[string]ImportCursor),
	}
}

func (r *MemoryRepository) UpsertMatches(_ context.Context, matches []MatchRecord) (UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertMatchesLocked(matches), nil
}

func (r *MemoryRepository) upsertMatchesLocked(matches []MatchRecord) UpsertResult {
	res := UpsertResult{}
	now := time.Now().UTC()
	for _, rec := range matches {
		if len(rec.Document) == 0 {
			res.Skipped++
			continue
		}
		uid := rec.Source.MatchUID
		if existing, ok := r.findBySourceSpanLocked(rec.Source); ok {
			uid = existing
		}
		if uid == "" {
			uid = GenerateMatchUID(rec.Document, rec.Source)
		}
		rec.Source.MatchUID = uid

		if prev, ok := r.matches[uid]; ok {
			rec.ImportedAt = prev.ImportedAt
			res.Updated++
		} else {
			rec.ImportedAt = now
			res.Inserted++
		}
		rec.UpdatedAt = now
		r.matches[uid] = cloneRecord(rec)
	}
	return res
}

func (r *MemoryRepository) findBySourceSpanLocked(src MatchSourceRef) (string, bool) {
	if src.SourcePath == "" {
		return "", false
	}
	for uid, rec := range r.matches {
		if rec.Source.SourcePath == src.SourcePath && rec.Source.StartByte == src.StartByte {
			return uid, true
		}
	}
	return "", false
}

func (r *MemoryRepository) ListMatches(_ context.Context, f MatchFilter) ([]MatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MatchRecord, 0, len(r.matches))
	for _, rec := range r.matches {
		if !matchesFilter(rec, f) {
			continue
		}
		c := cloneRecord(rec)
		c.Document = nil
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Source.SourcePath != out[j].Source.SourcePath {
			return out[i].Source.SourcePath < out[j].Source.SourcePath
		}
		return out[i].Source.StartByte < out[j].Source.StartByte
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []MatchRecord{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountMatches(ctx context.Context, f MatchFilter) (int, error) {
	f.Limit, f.Offset = 0, 0
	matches, err := r.ListMatches(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (r *MemoryRepository) GetMatchByUID(_ context.Context, uid string) (*MatchRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.matches[uid]
	if !ok {
		return nil, nil
	}
	c := cloneRecord(rec)
	return &c, nil
}

func (r *MemoryRepository) GetCursor(_ context.Context, sourcePath string) (*ImportCursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cursors[sourcePath]
	if !ok {
		return nil, nil
	}
	copyCursor := c
	if c.Checkpoint != nil {
		cp := *c.Checkpoint
		copyCursor.Checkpoint = &cp
	}
	return &copyCursor, nil
}

func (r *MemoryRepository) SaveCursor(_ context.Context, c ImportCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveCursorLocked(c)
	return nil
}

func (r *MemoryRepository) saveCursorLocked(c ImportCursor) {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	if c.Checkpoint != nil {
		cp := *c.Checkpoint
		c.Checkpoint = &cp
	}
	r.cursors[c.SourcePath] = c
}

func (r *MemoryRepository) MarkFullyImported(_ context.Context, sourcePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cursors[sourcePath]
	if !ok {
		return nil
	}
	c.IsFullyImported = true
	c.UpdatedAt = time.Now()
	r.cursors[sourcePath] = c
	return nil
}

func (r *MemoryRepository) SaveImportBatch(_ context.Context, matches []MatchRecord, c ImportCursor) (UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.upsertMatchesLocked(matches)
	r.saveCursorLocked(c)
	return res, nil
}

func cloneRecord(rec MatchRecord) MatchRecord {
	out := rec
	out.Players = append([]MatchPlayer(nil), rec.Players...)
	out.Document = append([]byte(nil), rec.Document...)
	return out
}
