package models

import (
	"math/big"
	"time"
)

// XPPerLevel is the cumulative XP required per level.
// level 1 = [0, 999], level 2 = [1000, 1999], and so on.
const XPPerLevel = 1000

// User is the per-wallet aggregate. Wallet addresses are stored lower-cased;
// the level fields are always derived from the matching xp value and must be
// recomputed whenever xp changes.
type User struct {
	Wallet      string    `json:"wallet"`
	XP          *big.Int  `json:"xp"`
	Level       int64     `json:"level"`
	SeasonXP    int64     `json:"seasonXp"`
	SeasonLevel int64     `json:"seasonLevel"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LevelForXP computes the level for a cumulative XP amount.
func LevelForXP(xp *big.Int) int64 {
	if xp == nil || xp.Sign() <= 0 {
		return 1
	}
	level := new(big.Int).Div(xp, big.NewInt(XPPerLevel))
	return level.Int64() + 1
}

// Season represents a reward season. At most one season is active at a time,
// enforced by the activation transaction rather than a database constraint.
type Season struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	IsActive bool       `json:"isActive"`
	StartAt  *time.Time `json:"startAt,omitempty"`
	EndAt    *time.Time `json:"endAt,omitempty"`
}

// UserSeasonStats is the per-(season, wallet) XP snapshot, zeroed whenever
// the season is (re)activated.
type UserSeasonStats struct {
	SeasonID   int64  `json:"seasonId"`
	UserWallet string `json:"userWallet"`
	XP         int64  `json:"xp"`
	Level      int64  `json:"level"`
	Badges     int64  `json:"badges"`
}

// Protocol describes an integrated DeFi protocol referenced by quest
// requirements.
type Protocol struct {
	ID      int64             `json:"id"`
	Slug    string            `json:"slug"`
	Name    string            `json:"name"`
	LogoURL *string           `json:"logoUrl,omitempty"`
	Config  map[string]string `json:"config,omitempty"`
}
