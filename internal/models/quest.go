// Package models defines the persisted data structures for the quest engine.
package models

import (
	"encoding/json"
	"time"

	"github.com/quest-engine/internal/types"
)

// Quest represents a declarative quest definition. Once the quest is
// registered on-chain its definition is immutable: the database id doubles as
// the on-chain quest identifier and the two must stay numerically aligned.
type Quest struct {
	ID          int64           `json:"id"`
	ProtocolID  *int64          `json:"protocolId,omitempty"`
	Type        types.QuestType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Requirement json.RawMessage `json:"requirement"`
	Reward      Reward          `json:"reward"`
	BadgeURI    string          `json:"badgeUri"`
	Repeatable  bool            `json:"repeatable"`
	IsActive    bool            `json:"isActive"`
	StartAt     *time.Time      `json:"startAt,omitempty"`
	EndAt       *time.Time      `json:"endAt,omitempty"`
	SeasonID    *int64          `json:"seasonId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Reward describes the settlement payload of a quest.
type Reward struct {
	XP       int64  `json:"xp"`
	BadgeURI string `json:"badgeUri,omitempty"`
}

// DecodedRequirement parses the stored requirement payload.
func (q *Quest) DecodedRequirement() (types.Requirement, error) {
	return types.DecodeRequirement(q.Requirement)
}

// ActiveAt reports whether the quest's validity window covers now.
func (q *Quest) ActiveAt(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	if q.StartAt != nil && now.Before(*q.StartAt) {
		return false
	}
	if q.EndAt != nil && now.After(*q.EndAt) {
		return false
	}
	return true
}
