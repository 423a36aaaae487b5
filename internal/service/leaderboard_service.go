package service

import (
	"context"
	"time"

	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/storage"
)

// LeaderboardReader provides ranked user reads.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context, limit int) ([]*models.User, error)
}

const (
	leaderboardTTL      = time.Minute
	defaultLeaderboard  = 25
	maxLeaderboardLimit = 100
)

// LeaderboardService serves the XP leaderboard with a short cache.
type LeaderboardService struct {
	users  LeaderboardReader
	cache  QuestCache
	logger *logging.Logger
}

// NewLeaderboardService creates a leaderboard service. Cache is optional.
func NewLeaderboardService(users LeaderboardReader, cache QuestCache, logger *logging.Logger) *LeaderboardService {
	return &LeaderboardService{
		users:  users,
		cache:  cache,
		logger: logger.WithField("component", "leaderboard_service"),
	}
}

// Top returns the highest-XP wallets. Limit is clamped to a sane range.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = defaultLeaderboard
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	key := storage.LeaderboardKey(limit)
	if s.cache != nil {
		var cached []*models.User
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
			s.logger.WithError(err).Warn("Leaderboard cache read failed, falling back to database")
		} else if hit {
			return cached, nil
		}
	}

	users, err := s.users.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, users, leaderboardTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to populate leaderboard cache")
		}
	}
	return users, nil
}
