package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AkatukiSora/powerlog-replay/internal/parser"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	return OpenSQLiteRepository(context.Background(), dbPath)
}

// OpenSQLiteRepository opens or creates the database at dbPath and applies
// pending migrations.
func OpenSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets readers (list/show) run while the watcher is importing.
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}
	repo := &SQLiteRepository{db: db}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *SQLiteRepository) UpsertMatches(ctx context.Context, matches []MatchRecord) (UpsertResult, error) {
	var res UpsertResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = r.upsertMatchesTx(ctx, tx, matches)
		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func (r *SQLiteRepository) upsertMatchesTx(ctx context.Context, tx *sql.Tx, matches []MatchRecord) (UpsertResult, error) {
	res := UpsertResult{}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, rec := range matches {
		if len(rec.Document) == 0 {
			res.Skipped++
			continue
		}
		uid := rec.Source.MatchUID
		if resolvedUID, ok, err := findMatchUIDBySourceSpanTx(ctx, tx, rec.Source); err != nil {
			return UpsertResult{}, err
		} else if ok {
			uid = resolvedUID
		}
		if uid == "" {
			uid = GenerateMatchUID(rec.Document, rec.Source)
		}

		exists, err := rowExists(ctx, tx, `SELECT 1 FROM matches WHERE match_uid = ? LIMIT 1`, uid)
		if err != nil {
			return UpsertResult{}, err
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO matches(
			match_uid, source_path, start_byte, end_byte, start_line, end_line,
			ordinal, start_ts, turns, player_count, unresolved_players, warnings,
			document, imported_at, updated_at
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_uid) DO UPDATE SET
			source_path=excluded.source_path,
			start_byte=excluded.start_byte,
			end_byte=excluded.end_byte,
			start_line=excluded.start_line,
			end_line=excluded.end_line,
			ordinal=excluded.ordinal,
			start_ts=excluded.start_ts,
			turns=excluded.turns,
			player_count=excluded.player_count,
			unresolved_players=excluded.unresolved_players,
			warnings=excluded.warnings,
			document=excluded.document,
			updated_at=excluded.updated_at`,
			uid,
			rec.Source.SourcePath,
			rec.Source.StartByte,
			rec.Source.EndByte,
			rec.Source.StartLine,
			rec.Source.EndLine,
			rec.Ordinal,
			rec.StartTimestamp,
			rec.Turns,
			rec.PlayerCount,
			rec.UnresolvedPlayers,
			rec.Warnings,
			rec.Document,
			now,
			now,
		); err != nil {
			return UpsertResult{}, err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE match_uid = ?`, uid); err != nil {
			return UpsertResult{}, err
		}
		for _, p := range rec.Players {
			if _, err := tx.ExecContext(ctx, `INSERT INTO match_players(
				match_uid, entity_id, player_id, name, account_hi, account_lo, resolved
			) VALUES(?, ?, ?, ?, ?, ?, ?)`,
				uid, p.EntityID, p.PlayerID, p.Name, p.AccountHi, p.AccountLo, boolToInt(p.Resolved),
			); err != nil {
				return UpsertResult{}, err
			}
		}

		if exists {
			res.Updated++
		} else {
			res.Inserted++
		}
	}

	return res, nil
}

const matchColumns = `match_uid, source_path, start_byte, end_byte, start_line, end_line,
	ordinal, start_ts, turns, player_count, unresolved_players, warnings, imported_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner, extra ...any) (MatchRecord, error) {
	var rec MatchRecord
	var importedAt, updatedAt string
	dest := []any{
		&rec.Source.MatchUID,
		&rec.Source.SourcePath,
		&rec.Source.StartByte,
		&rec.Source.EndByte,
		&rec.Source.StartLine,
		&rec.Source.EndLine,
		&rec.Ordinal,
		&rec.StartTimestamp,
		&rec.Turns,
		&rec.PlayerCount,
		&rec.UnresolvedPlayers,
		&rec.Warnings,
		&importedAt,
		&updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return MatchRecord{}, err
	}
	rec.ImportedAt, _ = time.Parse(time.RFC3339Nano, importedAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func buildMatchesFilterWhere(f MatchFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.SourcePath != "" {
		clauses = append(clauses, "source_path = ?")
		args = append(args, f.SourcePath)
	}
	if f.OnlyResolved {
		clauses = append(clauses, "unresolved_players = 0")
	}
	if f.PlayerName != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM match_players
			WHERE match_players.match_uid = matches.match_uid
				AND match_players.resolved = 1
				AND match_players.name = ?)`)
		args = append(args, f.PlayerName)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *SQLiteRepository) ListMatches(ctx context.Context, f MatchFilter) ([]MatchRecord, error) {
	where, args := buildMatchesFilterWhere(f)
	q := `SELECT ` + matchColumns + ` FROM matches` + where + ` ORDER BY source_path ASC, start_byte ASC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		q += ` LIMIT -1 OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]MatchRecord, 0)
	index := make(map[string]int)
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		index[rec.Source.MatchUID] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return out, nil
	}
	uids := make([]string, 0, len(out))
	for _, rec := range out {
		uids = append(uids, rec.Source.MatchUID)
	}
	players, err := r.loadPlayers(ctx, uids)
	if err != nil {
		return nil, err
	}
	for uid, ps := range players {
		out[index[uid]].Players = ps
	}
	return out, nil
}

func (r *SQLiteRepository) CountMatches(ctx context.Context, f MatchFilter) (int, error) {
	where, args := buildMatchesFilterWhere(f)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SQLiteRepository) GetMatchByUID(ctx context.Context, uid string) (*MatchRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+`, document FROM matches WHERE match_uid = ?`, uid)
	var doc []byte
	rec, err := scanMatch(row, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Document = doc

	players, err := r.loadPlayers(ctx, []string{uid})
	if err != nil {
		return nil, err
	}
	rec.Players = players[uid]
	return &rec, nil
}

// sqliteMaxVars stays under SQLite's default bound parameter limit.
const sqliteMaxVars = 500

func (r *SQLiteRepository) loadPlayers(ctx context.Context, uids []string) (map[string][]MatchPlayer, error) {
	out := make(map[string][]MatchPlayer, len(uids))
	for start := 0; start < len(uids); start += sqliteMaxVars {
		end := min(start+sqliteMaxVars, len(uids))
		in, args := inClause(uids[start:end])
		rows, err := r.db.QueryContext(ctx, `SELECT match_uid, entity_id, player_id, name, account_hi, account_lo, resolved
			FROM match_players WHERE match_uid IN `+in+`
			ORDER BY match_uid, CAST(entity_id AS INTEGER)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var uid string
			var p MatchPlayer
			var resolved int
			if err := rows.Scan(&uid, &p.EntityID, &p.PlayerID, &p.Name, &p.AccountHi, &p.AccountLo, &resolved); err != nil {
				_ = rows.Close()
				return nil, err
			}
			p.Resolved = resolved == 1
			out[uid] = append(out[uid], p)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return out, nil
}

func inClause(uids []string) (string, []any) {
	placeholders := make([]string, len(uids))
	args := make([]any, len(uids))
	for i, uid := range uids {
		placeholders[i] = "?"
		args[i] = uid
	}
	return "(" + strings.Join(placeholders, ",") + ")", args
}

func (r *SQLiteRepository) GetCursor(ctx context.Context, sourcePath string) (*ImportCursor, error) {
	row := r.db.QueryRowContext(ctx, `SELECT source_path, next_byte_offset, next_line_number, last_match_uid,
		parser_format, is_fully_imported, updated_at
		FROM import_cursors WHERE source_path = ?`, sourcePath)
	var c ImportCursor
	var format sql.NullString
	var isFullyImported int
	var updatedAt string
	if err := row.Scan(
		&c.SourcePath,
		&c.NextByteOffset,
		&c.NextLineNumber,
		&c.LastMatchUID,
		&format,
		&isFullyImported,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.IsFullyImported = isFullyImported == 1
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	if format.Valid {
		c.Checkpoint = &parser.Checkpoint{Format: parser.ParseFormatName(format.String)}
	}
	return &c, nil
}

func (r *SQLiteRepository) SaveCursor(ctx context.Context, c ImportCursor) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return saveCursorTx(ctx, tx, c)
	})
}

func (r *SQLiteRepository) MarkFullyImported(ctx context.Context, sourcePath string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE import_cursors SET is_fully_imported=1, updated_at=? WHERE source_path=?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		sourcePath,
	)
	return err
}

func (r *SQLiteRepository) SaveImportBatch(ctx context.Context, matches []MatchRecord, c ImportCursor) (UpsertResult, error) {
	var res UpsertResult
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = r.upsertMatchesTx(ctx, tx, matches)
		if err != nil {
			return err
		}
		return saveCursorTx(ctx, tx, c)
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func saveCursorTx(ctx context.Context, tx *sql.Tx, c ImportCursor) error {
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	var format any
	if c.Checkpoint != nil {
		format = nullIfEmpty(c.Checkpoint.Format.String())
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO import_cursors(
		source_path, next_byte_offset, next_line_number, last_match_uid, parser_format,
		is_fully_imported, updated_at
	) VALUES(?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_path) DO UPDATE SET
		next_byte_offset=excluded.next_byte_offset,
		next_line_number=excluded.next_line_number,
		last_match_uid=excluded.last_match_uid,
		parser_format=excluded.parser_format,
		is_fully_imported=excluded.is_fully_imported,
		updated_at=excluded.updated_at`,
		c.SourcePath,
		c.NextByteOffset,
		c.NextLineNumber,
		c.LastMatchUID,
		format,
		boolToInt(c.IsFullyImported),
		updatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func findMatchUIDBySourceSpanTx(ctx context.Context, tx *sql.Tx, src MatchSourceRef) (string, bool, error) {
	if src.SourcePath == "" {
		return "", false, nil
	}
	var uid string
	err := tx.QueryRowContext(
		ctx,
		`SELECT match_uid FROM matches WHERE source_path = ? AND start_byte = ? LIMIT 1`,
		src.SourcePath,
		src.StartByte,
	).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return uid, true, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" || s == parser.FormatUnknown.String() {
		return nil
	}
	return s
}
