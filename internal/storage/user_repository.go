package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quest-engine/internal/models"
)

// UserRepository handles per-wallet aggregates. XP is stored as NUMERIC and
// moved through the driver as text to avoid float truncation.
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `wallet, xp::text, level, season_xp, season_level, last_seen_at, created_at`

// Upsert lazily creates the user row for a wallet and refreshes last_seen_at.
// Wallets are expected to arrive already normalized to lower case.
func (r *UserRepository) Upsert(ctx context.Context, wallet string) (*models.User, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (wallet, xp, level, season_xp, season_level, last_seen_at, created_at)
		VALUES ($1, 0, 1, 0, 1, $2, $2)
		ON CONFLICT (wallet) DO UPDATE SET last_seen_at = $2
		RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, wallet, now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// Get retrieves a user, or nil when the wallet has never been seen.
func (r *UserRepository) Get(ctx context.Context, wallet string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet = $1`

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListWallets returns every known wallet. The sweep iterates this set against
// the active quests.
func (r *UserRepository) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT wallet FROM users ORDER BY wallet`)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var wallet string
		if err := rows.Scan(&wallet); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}

// CreditXP adds XP to a wallet and recomputes the derived levels in the same
// statement. When seasonID is set the season aggregates and the per-season
// stats row (including the badge counter) are updated in one transaction.
func (r *UserRepository) CreditXP(ctx context.Context, wallet string, amount int64, seasonID *int64) (*models.User, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	var user *models.User

	if seasonID != nil {
		query := `
			UPDATE users
			SET xp = xp + $2,
				level = FLOOR((xp + $2) / 1000)::bigint + 1,
				season_xp = season_xp + $2,
				season_level = FLOOR((season_xp + $2) / 1000)::bigint + 1,
				last_seen_at = $3
			WHERE wallet = $1
			RETURNING ` + userColumns
		user, err = scanUser(tx.QueryRow(ctx, query, wallet, amount, now))
	} else {
		query := `
			UPDATE users
			SET xp = xp + $2,
				level = FLOOR((xp + $2) / 1000)::bigint + 1,
				last_seen_at = $3
			WHERE wallet = $1
			RETURNING ` + userColumns
		user, err = scanUser(tx.QueryRow(ctx, query, wallet, amount, now))
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %s", wallet)
		}
		return nil, fmt.Errorf("failed to credit xp: %w", err)
	}

	if seasonID != nil {
		query := `
			INSERT INTO user_season_stats (season_id, user_wallet, xp, level, badges)
			VALUES ($1, $2, $3, FLOOR($3::numeric / 1000)::bigint + 1, 1)
			ON CONFLICT (season_id, user_wallet) DO UPDATE SET
				xp = user_season_stats.xp + $3,
				level = FLOOR((user_season_stats.xp + $3) / 1000)::bigint + 1,
				badges = user_season_stats.badges + 1
		`
		if _, err := tx.Exec(ctx, query, *seasonID, wallet, amount); err != nil {
			return nil, fmt.Errorf("failed to update season stats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit xp credit: %w", err)
	}
	return user, nil
}

// Leaderboard returns the top wallets by lifetime XP.
func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY xp DESC, wallet LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var xpStr string

	err := row.Scan(
		&user.Wallet,
		&xpStr,
		&user.Level,
		&user.SeasonXP,
		&user.SeasonLevel,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	xp, ok := new(big.Int).SetString(xpStr, 10)
	if !ok {
		return nil, fmt.Errorf("invalid xp value: %s", xpStr)
	}
	user.XP = xp
	return &user, nil
}
