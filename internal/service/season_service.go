package service

import (
	"context"
	"fmt"

	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
)

// SeasonCatalog provides season persistence.
type SeasonCatalog interface {
	Create(ctx context.Context, season *models.Season) error
	List(ctx context.Context) ([]*models.Season, error)
	GetActive(ctx context.Context) (*models.Season, error)
	Activate(ctx context.Context, id int64) (*models.Season, error)
	StatsFor(ctx context.Context, seasonID int64, limit int) ([]*models.UserSeasonStats, error)
}

// SeasonService manages reward seasons.
type SeasonService struct {
	seasons SeasonCatalog
	logger  *logging.Logger
}

// NewSeasonService creates a season service.
func NewSeasonService(seasons SeasonCatalog, logger *logging.Logger) *SeasonService {
	return &SeasonService{
		seasons: seasons,
		logger:  logger.WithField("component", "season_service"),
	}
}

// CreateSeason inserts a new, inactive season.
func (s *SeasonService) CreateSeason(ctx context.Context, season *models.Season) (*models.Season, error) {
	if season.Name == "" || season.Slug == "" {
		return nil, fmt.Errorf("season name and slug are required")
	}
	if err := s.seasons.Create(ctx, season); err != nil {
		return nil, err
	}
	return season, nil
}

// ListSeasons returns all seasons.
func (s *SeasonService) ListSeasons(ctx context.Context) ([]*models.Season, error) {
	return s.seasons.List(ctx)
}

// ActiveSeason returns the active season, or nil when none is running.
func (s *SeasonService) ActiveSeason(ctx context.Context) (*models.Season, error) {
	return s.seasons.GetActive(ctx)
}

// ActivateSeason makes a season the single active one. Every wallet's season
// progress is reset as part of the same transaction, so a quest that checks
// season level starts everyone at level one.
func (s *SeasonService) ActivateSeason(ctx context.Context, id int64) (*models.Season, error) {
	season, err := s.seasons.Activate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"season_id": season.ID,
		"slug":      season.Slug,
	}).Info("Season activated, season progress reset")
	return season, nil
}

// SeasonLeaderboard returns the per-season XP ranking.
func (s *SeasonService) SeasonLeaderboard(ctx context.Context, seasonID int64, limit int) ([]*models.UserSeasonStats, error) {
	if limit <= 0 {
		limit = defaultLeaderboard
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	return s.seasons.StatsFor(ctx, seasonID, limit)
}
