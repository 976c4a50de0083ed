package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(Up00003, Down00003)
}

// Up00003 fills unresolved_players for matches stored before the column existed.
func Up00003(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `UPDATE matches
		SET unresolved_players = (
			SELECT COUNT(*) FROM match_players
			WHERE match_players.match_uid = matches.match_uid
				AND match_players.resolved = 0
		)`); err != nil {
		return fmt.Errorf("backfill unresolved_players: %w", err)
	}
	return nil
}

func Down00003(context.Context, *sql.Tx) error {
	return nil
}
