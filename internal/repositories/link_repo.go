package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/avdeyev/socialguard/internal/database"
	"github.com/avdeyev/socialguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkStore is the persistence contract for account links. Implemented by
// PostgresLinkStore; MemoryLinkStore is the test double.
type LinkStore interface {
	GetByName(ctx context.Context, nickname string) (*models.AccountLink, error)
	GetByChannel(ctx context.Context, kind string, userID int64) (*models.AccountLink, error)
	Create(ctx context.Context, link *models.AccountLink) error
	Update(ctx context.Context, link *models.AccountLink) error
	Delete(ctx context.Context, nickname string) error
	SetChannelID(ctx context.Context, nickname, kind string, userID *int64) error
}

// PostgresLinkStore persists account links in the account_links table.
type PostgresLinkStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStore(db *database.DB) *PostgresLinkStore {
	return &PostgresLinkStore{pool: db.Pool}
}

// channelColumn maps a channel kind to its column. The column name is always
// interpolated from this fixed table, never from user input.
func channelColumn(kind string) (string, error) {
	switch kind {
	case models.KindDiscord:
		return "discord_id", nil
	case models.KindTelegram:
		return "telegram_id", nil
	case models.KindVK:
		return "vk_id", nil
	}
	return "", fmt.Errorf("unknown channel kind %q", kind)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLinkRow(scanner rowScanner) (*models.AccountLink, error) {
	var link models.AccountLink

	err := scanner.Scan(
		&link.Nickname, &link.DiscordID, &link.TelegramID, &link.VKID,
		&link.Blocked, &link.TOTPEnabled, &link.NotifyEnabled,
		&link.CreatedAt, &link.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &link, nil
}

const linkColumns = `nickname, discord_id, telegram_id, vk_id, blocked, totp_enabled, notify_enabled, created_at, updated_at`

func (r *PostgresLinkStore) GetByName(ctx context.Context, nickname string) (*models.AccountLink, error) {
	query := `SELECT ` + linkColumns + ` FROM account_links WHERE nickname = $1`

	return scanLinkRow(r.pool.QueryRow(ctx, query, nickname))
}

func (r *PostgresLinkStore) GetByChannel(ctx context.Context, kind string, userID int64) (*models.AccountLink, error) {
	column, err := channelColumn(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + linkColumns + ` FROM account_links WHERE ` + column + ` = $1`

	return scanLinkRow(r.pool.QueryRow(ctx, query, userID))
}

func (r *PostgresLinkStore) Create(ctx context.Context, link *models.AccountLink) error {
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now

	query := `
		INSERT INTO account_links (nickname, discord_id, telegram_id, vk_id, blocked, totp_enabled, notify_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		link.Nickname, link.DiscordID, link.TelegramID, link.VKID,
		link.Blocked, link.TOTPEnabled, link.NotifyEnabled,
		link.CreatedAt, link.UpdatedAt,
	)
	return database.MapPostgresError(err)
}

func (r *PostgresLinkStore) Update(ctx context.Context, link *models.AccountLink) error {
	link.UpdatedAt = time.Now()

	query := `
		UPDATE account_links
		SET discord_id = $1, telegram_id = $2, vk_id = $3, blocked = $4, totp_enabled = $5, notify_enabled = $6, updated_at = $7
		WHERE nickname = $8
	`

	result, err := r.pool.Exec(ctx, query,
		link.DiscordID, link.TelegramID, link.VKID,
		link.Blocked, link.TOTPEnabled, link.NotifyEnabled,
		link.UpdatedAt, link.Nickname,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *PostgresLinkStore) Delete(ctx context.Context, nickname string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM account_links WHERE nickname = $1`, nickname)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// SetChannelID performs the targeted column update of the store contract:
// no full-row read, last write wins on concurrent updates to the same row.
func (r *PostgresLinkStore) SetChannelID(ctx context.Context, nickname, kind string, userID *int64) error {
	column, err := channelColumn(kind)
	if err != nil {
		return err
	}

	query := `UPDATE account_links SET ` + column + ` = $1, updated_at = $2 WHERE nickname = $3`

	result, err := r.pool.Exec(ctx, query, userID, time.Now(), nickname)
	if err != nil {
		return database.MapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

var _ LinkStore = (*PostgresLinkStore)(nil)
