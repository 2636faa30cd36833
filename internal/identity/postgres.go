package identity

import (
	"context"
	"errors"
	"time"

	"github.com/avdeyev/socialguard/internal/database"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// PostgresStore is a reference adapter backed by the accounts table. A
// deployment with an external identity system replaces this with its own
// Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{pool: db.Pool}
}

func (s *PostgresStore) Exists(ctx context.Context, nickname string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE nickname = $1)`, nickname).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

func (s *PostgresStore) VerifyPassword(ctx context.Context, nickname, password string) (bool, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM accounts WHERE nickname = $1`, nickname).Scan(&hash)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, nickname, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO accounts (nickname, password_hash, premium, created_at) VALUES ($1, $2, FALSE, $3)`,
		nickname, string(hash), time.Now())
	return database.MapPostgresError(err)
}

func (s *PostgresStore) SetPassword(ctx context.Context, nickname, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return err
	}

	result, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $1 WHERE nickname = $2`, string(hash), nickname)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (s *PostgresStore) IsPremium(ctx context.Context, nickname string) (bool, error) {
	var premium bool
	err := s.pool.QueryRow(ctx,
		`SELECT premium FROM accounts WHERE nickname = $1`, nickname).Scan(&premium)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return premium, nil
}

var _ Store = (*PostgresStore)(nil)
