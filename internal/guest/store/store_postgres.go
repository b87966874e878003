package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventgate/internal/guest/models"
	"eventgate/pkg/platform/sentinel"
)

// PostgresStore persists guest profiles in the guests table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, first_name, middle_name, last_name, age, gender, email,
		       phone, alternate_phone, photo_url, role, created_at
		FROM guests
		WHERE token = $1
	`, token)

	var p models.Profile
	err := row.Scan(&p.Token, &p.Name.FirstName, &p.Name.MiddleName, &p.Name.LastName,
		&p.Age, &p.Gender, &p.Email, &p.PhoneNumber, &p.AlternatePhoneNumber,
		&p.PhotoURL, &p.Role, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guest by token: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guests (token, first_name, middle_name, last_name, age, gender, email,
		                    phone, alternate_phone, photo_url, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (token) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			middle_name = EXCLUDED.middle_name,
			last_name = EXCLUDED.last_name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			alternate_phone = EXCLUDED.alternate_phone,
			photo_url = EXCLUDED.photo_url,
			role = EXCLUDED.role
	`, p.Token, p.Name.FirstName, p.Name.MiddleName, p.Name.LastName, p.Age, p.Gender,
		p.Email, p.PhoneNumber, p.AlternatePhoneNumber, p.PhotoURL, p.Role)
	if err != nil {
		return fmt.Errorf("save guest: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count guests: %w", err)
	}
	return n, nil
}
