package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"eventgate/internal/checkpoint/models"
	"eventgate/pkg/platform/audit/outbox"
	"eventgate/pkg/platform/sentinel"
)

// OutboxWriter appends a ledger entry inside an open transaction.
type OutboxWriter interface {
	AppendTx(ctx context.Context, tx *sql.Tx, entry *outbox.Entry) error
}

// Journal describes the change from before to after as a ledger entry.
// A nil entry means there is nothing to record.
type Journal func(ctx context.Context, before, after *models.TokenRecord) (*outbox.Entry, error)

type PostgresOption func(*PostgresStore)

// WithOutbox makes every committed Execute also commit the entry journal
// returns, in the same transaction.
func WithOutbox(w OutboxWriter, journal Journal) PostgresOption {
	return func(s *PostgresStore) {
		s.outbox = w
		s.journal = journal
	}
}

// PostgresStore persists token records in PostgreSQL. Checkpoint flags live
// in a JSONB column so adding a station needs no migration.
type PostgresStore struct {
	db      *sql.DB
	outbox  OutboxWriter
	journal Journal
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectRecord = `
	SELECT token, entry_gate, checkpoints, created_at, updated_at
	FROM token_records
	WHERE token = $1
`

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.TokenRecord, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx, selectRecord, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find token record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, token string) (*models.TokenRecord, error) {
	if err := ensureRecord(ctx, s.db, token); err != nil {
		return nil, err
	}
	return s.FindByToken(ctx, token)
}

// Execute runs validate and mutate against a row held FOR UPDATE.
func (s *PostgresStore) Execute(ctx context.Context, token string, validate func(*models.TokenRecord) error, mutate func(*models.TokenRecord)) (*models.TokenRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin token record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := ensureRecord(ctx, tx, token); err != nil {
		return nil, err
	}

	record, err := scanRecord(tx.QueryRowContext(ctx, selectRecord+" FOR UPDATE", token))
	if err != nil {
		return nil, fmt.Errorf("lock token record: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	before := record.Clone()
	mutate(record)

	if err := updateRecord(ctx, tx, record); err != nil {
		return nil, err
	}
	if err := s.appendJournal(ctx, tx, before, record); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit token record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) appendJournal(ctx context.Context, tx *sql.Tx, before, after *models.TokenRecord) error {
	if s.outbox == nil || s.journal == nil {
		return nil
	}
	entry, err := s.journal(ctx, before, after)
	if err != nil {
		return fmt.Errorf("build ledger entry: %w", err)
	}
	if entry == nil {
		return nil
	}
	return s.outbox.AppendTx(ctx, tx, entry)
}

func ensureRecord(ctx context.Context, exec dbExecutor, token string) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO token_records (token) VALUES ($1)
		ON CONFLICT (token) DO NOTHING
	`, token)
	if err != nil {
		return fmt.Errorf("ensure token record: %w", err)
	}
	return nil
}

func updateRecord(ctx context.Context, exec dbExecutor, r *models.TokenRecord) error {
	flags, err := json.Marshal(r.Checkpoints)
	if err != nil {
		return fmt.Errorf("marshal checkpoints: %w", err)
	}
	res, err := exec.ExecContext(ctx, `
		UPDATE token_records
		SET entry_gate = $2, checkpoints = $3, updated_at = $4
		WHERE token = $1
	`, r.Token, r.EntryGate, flags, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update token record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update token record rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.TokenRecord, error) {
	var (
		r     models.TokenRecord
		flags []byte
	)
	if err := row.Scan(&r.Token, &r.EntryGate, &flags, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Checkpoints = make(map[models.CheckpointID]bool)
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &r.Checkpoints); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoints: %w", err)
		}
	}
	return &r, nil
}
