package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"eventgate/internal/accounts/models"
	"eventgate/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists staff accounts in the accounts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, first_name, last_name, email, phone, whatsapp_phone, role,
	password_hash, first_login, approved, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.FirstName, a.LastName, models.NormalizeEmail(a.Email), a.Phone, a.WhatsAppPhone, string(a.Role),
		a.PasswordHash, a.FirstLogin, a.Approved, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = $1`,
		models.NormalizeEmail(email))
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET first_name = $2, last_name = $3, phone = $4, whatsapp_phone = $5, role = $6,
		    password_hash = $7, first_login = $8, approved = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.FirstName, a.LastName, a.Phone, a.WhatsAppPhone, string(a.Role), a.PasswordHash,
		a.FirstLogin, a.Approved, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE LOWER(email) = $1`, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) ListApproved(ctx context.Context, role models.Role) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE role = $1 AND approved
		ORDER BY email
	`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list approved accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}

type accountRow interface {
	Scan(dest ...any) error
}

func scanAccount(row accountRow) (*models.Account, error) {
	var (
		a    models.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.WhatsAppPhone, &role,
		&a.PasswordHash, &a.FirstLogin, &a.Approved, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	return &a, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
