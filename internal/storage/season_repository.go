package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quest-engine/internal/models"
)

// SeasonRepository handles season persistence and activation.
type SeasonRepository struct {
	db *PostgresDB
}

// NewSeasonRepository creates a new season repository
func NewSeasonRepository(db *PostgresDB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

const seasonColumns = `id, name, slug, is_active, start_at, end_at`

// Create inserts a season. New seasons start inactive.
func (r *SeasonRepository) Create(ctx context.Context, season *models.Season) error {
	query := `
		INSERT INTO seasons (name, slug, is_active, start_at, end_at)
		VALUES ($1, $2, false, $3, $4)
		RETURNING id
	`
	err := r.db.Pool().QueryRow(ctx, query,
		season.Name, season.Slug, season.StartAt, season.EndAt,
	).Scan(&season.ID)
	if err != nil {
		return fmt.Errorf("failed to create season: %w", err)
	}
	season.IsActive = false
	return nil
}

// List returns all seasons ordered by id.
func (r *SeasonRepository) List(ctx context.Context) ([]*models.Season, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+seasonColumns+` FROM seasons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	defer rows.Close()

	var seasons []*models.Season
	for rows.Next() {
		season, err := scanSeason(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan season: %w", err)
		}
		seasons = append(seasons, season)
	}
	return seasons, rows.Err()
}

// GetActive returns the currently active season, or nil when none is active.
func (r *SeasonRepository) GetActive(ctx context.Context) (*models.Season, error) {
	query := `SELECT ` + seasonColumns + ` FROM seasons WHERE is_active = true LIMIT 1`

	season, err := scanSeason(r.db.Pool().QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active season: %w", err)
	}
	return season, nil
}

// Activate makes the given season the single active one. All other seasons
// are deactivated, every user's season XP and level are reset, and the
// season's stats rows are zeroed, all in one transaction.
func (r *SeasonRepository) Activate(ctx context.Context, id int64) (*models.Season, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE seasons SET is_active = false WHERE id <> $1`, id); err != nil {
		return nil, fmt.Errorf("failed to deactivate seasons: %w", err)
	}

	now := time.Now().UTC()
	query := `
		UPDATE seasons
		SET is_active = true,
			start_at = COALESCE(start_at, $2)
		WHERE id = $1
		RETURNING ` + seasonColumns

	season, err := scanSeason(tx.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("season not found: %d", id)
		}
		return nil, fmt.Errorf("failed to activate season: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET season_xp = 0, season_level = 1`); err != nil {
		return nil, fmt.Errorf("failed to reset user season progress: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE user_season_stats SET xp = 0, level = 1, badges = 0 WHERE season_id = $1`, id,
	); err != nil {
		return nil, fmt.Errorf("failed to reset season stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit season activation: %w", err)
	}
	return season, nil
}

// StatsFor returns the per-season leaderboard ordered by season XP.
func (r *SeasonRepository) StatsFor(ctx context.Context, seasonID int64, limit int) ([]*models.UserSeasonStats, error) {
	query := `
		SELECT season_id, user_wallet, xp, level, badges
		FROM user_season_stats
		WHERE season_id = $1
		ORDER BY xp DESC, user_wallet
		LIMIT $2
	`
	rows, err := r.db.Pool().Query(ctx, query, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query season stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.UserSeasonStats
	for rows.Next() {
		var s models.UserSeasonStats
		if err := rows.Scan(&s.SeasonID, &s.UserWallet, &s.XP, &s.Level, &s.Badges); err != nil {
			return nil, fmt.Errorf("failed to scan season stats: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

func scanSeason(row pgx.Row) (*models.Season, error) {
	var season models.Season
	err := row.Scan(
		&season.ID,
		&season.Name,
		&season.Slug,
		&season.IsActive,
		&season.StartAt,
		&season.EndAt,
	)
	if err != nil {
		return nil, err
	}
	return &season, nil
}
