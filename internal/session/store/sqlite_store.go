package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/persistence/sqlite"
	"github.com/huddleworks/livesession/internal/session/model"
)

const schemaVersion = 1

// SqliteStore implements ApprovalStore on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (or creates) the approval store at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("approval store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS approvals (
		session_id TEXT PRIMARY KEY,
		approval_id TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_approvals_approval_id ON approvals(approval_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Create(ctx context.Context, rec model.ApprovalRecord) (model.ApprovalRecord, error) {
	// One record per session. While the record is still pending a new end
	// request rebills it (the session continued and the clock moved on);
	// once the status advanced past pending the stored record wins.
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO approvals
			(session_id, approval_id, total_amount, status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			approval_id = excluded.approval_id,
			total_amount = excluded.total_amount,
			updated_at_ms = excluded.updated_at_ms
		WHERE approvals.status = 'PENDING'`,
		rec.SessionID, rec.ApprovalID, rec.TotalAmount.String(), string(rec.Status),
		rec.CreatedAtMs, rec.UpdatedAtMs,
	)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("create approval: %w", err)
	}
	return s.Get(ctx, rec.SessionID)
}

func (s *SqliteStore) AdvanceStatus(ctx context.Context, sessionID string, to model.ApprovalStatus) (model.ApprovalRecord, error) {
	now := time.Now().UnixMilli()

	// The rank CASE clause mirrors model.ApprovalStatus.Rank so the
	// monotonicity guard holds even with concurrent writers.
	res, err := s.DB.ExecContext(ctx, `
		UPDATE approvals SET status = ?, updated_at_ms = ?
		WHERE session_id = ?
		  AND (CASE status
				WHEN 'PENDING' THEN 0
				WHEN 'PAYMENT_COMPLETED' THEN 1
				WHEN 'FILE_UPLOADED' THEN 2
				WHEN 'FILE_DOWNLOADED' THEN 3
				WHEN 'COMPLETED' THEN 4
			   END) <
			  (CASE ?
				WHEN 'PENDING' THEN 0
				WHEN 'PAYMENT_COMPLETED' THEN 1
				WHEN 'FILE_UPLOADED' THEN 2
				WHEN 'FILE_DOWNLOADED' THEN 3
				WHEN 'COMPLETED' THEN 4
			   END)`,
		string(to), now, sessionID, string(to),
	)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("advance approval status: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return model.ApprovalRecord{}, err
	}
	return s.Get(ctx, sessionID)
}

func (s *SqliteStore) Get(ctx context.Context, sessionID string) (model.ApprovalRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT session_id, approval_id, total_amount, status, created_at_ms, updated_at_ms
		FROM approvals WHERE session_id = ?`, sessionID)

	var rec model.ApprovalRecord
	var amount, status string
	err := row.Scan(&rec.SessionID, &rec.ApprovalID, &amount, &status, &rec.CreatedAtMs, &rec.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ApprovalRecord{}, ErrNotFound
	}
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("get approval: %w", err)
	}

	rec.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("corrupt total_amount for %q: %w", sessionID, err)
	}
	rec.Status = model.ApprovalStatus(status)
	return rec, nil
}

var _ ApprovalStore = (*SqliteStore)(nil)
