package storage

// sqlite.go — write-only history of engine activity.
//
// The engine never reads this back: in-memory state is authoritative for
// the process lifetime. The tables exist so a human can audit sessions,
// stakes and settlements after the fact. Amounts are stored as decimal
// wei strings to keep full precision.

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stakebot/engine/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  DATETIME NOT NULL,
    strategy    TEXT     NOT NULL,
    base_amount TEXT     NOT NULL,
    flat_count  INTEGER  NOT NULL,
    multiplier  REAL     NOT NULL,
    max_streams INTEGER  NOT NULL
);

CREATE TABLE IF NOT EXISTS stakes (
    id         TEXT PRIMARY KEY,
    epoch      INTEGER  NOT NULL,
    stream_id  INTEGER  NOT NULL,
    position   TEXT     NOT NULL,
    amount     TEXT     NOT NULL,
    tx_hash    TEXT     NOT NULL,
    placed_at  DATETIME NOT NULL,
    settled    INTEGER  NOT NULL DEFAULT 0,
    won        INTEGER  NOT NULL DEFAULT 0,
    settled_at DATETIME,
    claimed    INTEGER  NOT NULL DEFAULT 0,
    claim_tx   TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_stakes_epoch  ON stakes(epoch);
CREATE INDEX IF NOT EXISTS idx_stakes_stream ON stakes(stream_id);
`

// SQLiteRecorder implements ports.Recorder on a local SQLite file
// (pure Go driver, no CGo).
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder opens (or creates) the database at the given path
// and applies the schema.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteRecorder: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteRecorder: apply schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// RecordSession inserts one row describing the strategy this process
// started with.
func (s *SQLiteRecorder) RecordSession(ctx context.Context, st domain.Strategy) error {
	base := "0"
	if st.BaseBetAmount != nil {
		base = st.BaseBetAmount.String()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (started_at, strategy, base_amount, flat_count, multiplier, max_streams)
		 VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?, ?)`,
		string(st.Kind), base, st.FlatBetCount, st.MartingaleMultiplier, st.MaxStreams,
	); err != nil {
		return fmt.Errorf("storage.RecordSession: %w", err)
	}
	return nil
}

// RecordStake inserts a placed stake.
func (s *SQLiteRecorder) RecordStake(ctx context.Context, stake *domain.Stake) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO stakes (id, epoch, stream_id, position, amount, tx_hash, placed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stake.ID, stake.Epoch, stake.StreamID, string(stake.Position),
		stake.Amount.String(), stake.TxHash, stake.PlacedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.RecordStake: %w", err)
	}
	return nil
}

// RecordSettlement writes a stake's settled outcome onto its row.
func (s *SQLiteRecorder) RecordSettlement(ctx context.Context, stake *domain.Stake) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE stakes SET settled = 1, won = ?, settled_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(stake.Won), stake.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.RecordSettlement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("storage.RecordSettlement: stake %s not recorded", stake.ID)
	}
	return nil
}

// RecordClaim marks the given stakes claimed under one transaction hash.
func (s *SQLiteRecorder) RecordClaim(ctx context.Context, stakeIDs []string, txHash string) error {
	if len(stakeIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordClaim: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE stakes SET claimed = 1, claim_tx = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("storage.RecordClaim: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range stakeIDs {
		if _, err := stmt.ExecContext(ctx, txHash, id); err != nil {
			return fmt.Errorf("storage.RecordClaim: stake %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.RecordClaim: commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
