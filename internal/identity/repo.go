package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"foodforge/internal/store"
)

// SQLStore keeps identities in the profiles table.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, id Identity) error {
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now()
	}
	_, err := s.db.Client.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO profiles (id, email, full_name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`), id.ID, NormalizeEmail(id.Email), id.FullName, string(id.Role), id.PasswordHash, id.CreatedAt.UTC())
	if err != nil {
		if store.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("identity: create: %w", err)
	}
	return nil
}

const profileColumns = `id, email, full_name, role, password_hash, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (Identity, error) {
	var (
		id   Identity
		role string
	)
	if err := row.Scan(&id.ID, &id.Email, &id.FullName, &role, &id.PasswordHash, &id.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrNotFound
		}
		return Identity{}, err
	}
	id.Role = Role(role)
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Identity, error) {
	row := s.db.Client.QueryRowContext(ctx, s.db.Rebind(`SELECT `+profileColumns+` FROM profiles WHERE id = $1`), id)
	return scanIdentity(row)
}

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	row := s.db.Client.QueryRowContext(ctx, s.db.Rebind(`SELECT `+profileColumns+` FROM profiles WHERE email = $1`), NormalizeEmail(email))
	return scanIdentity(row)
}

func (s *SQLStore) ListByRole(ctx context.Context, role Role) ([]Identity, error) {
	rows, err := s.db.Client.QueryContext(ctx, s.db.Rebind(`
		SELECT `+profileColumns+`
		FROM profiles
		WHERE role = $1
		ORDER BY created_at DESC
	`), string(role))
	if err != nil {
		return nil, fmt.Errorf("identity: list: %w", err)
	}
	defer rows.Close()

	res := []Identity{}
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func (s *SQLStore) FullName(ctx context.Context, id string) (string, error) {
	var name string
	err := s.db.Client.QueryRowContext(ctx, s.db.Rebind(`SELECT full_name FROM profiles WHERE id = $1`), id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}
