package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/quest-engine/internal/models"
)

// QuestRepository handles quest definition persistence
type QuestRepository struct {
	db *PostgresDB
}

// NewQuestRepository creates a new quest repository
func NewQuestRepository(db *PostgresDB) *QuestRepository {
	return &QuestRepository{db: db}
}

const questColumns = `id, protocol_id, type, title, description, requirement, reward,
	badge_uri, repeatable, is_active, start_at, end_at, season_id, created_at`

// Create inserts a quest and populates its generated id. The id doubles as
// the on-chain quest identifier, so callers register the quest on-chain only
// after this insert succeeds.
func (r *QuestRepository) Create(ctx context.Context, quest *models.Quest) error {
	rewardJSON, err := json.Marshal(quest.Reward)
	if err != nil {
		return fmt.Errorf("failed to marshal reward: %w", err)
	}

	query := `
		INSERT INTO quests (protocol_id, type, title, description, requirement, reward,
			badge_uri, repeatable, is_active, start_at, end_at, season_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	quest.CreatedAt = time.Now().UTC()
	err = r.db.Pool().QueryRow(ctx, query,
		quest.ProtocolID,
		quest.Type,
		quest.Title,
		quest.Description,
		[]byte(quest.Requirement),
		rewardJSON,
		quest.BadgeURI,
		quest.Repeatable,
		quest.IsActive,
		quest.StartAt,
		quest.EndAt,
		quest.SeasonID,
		quest.CreatedAt,
	).Scan(&quest.ID)

	if err != nil {
		return fmt.Errorf("failed to create quest: %w", err)
	}
	return nil
}

// GetByID retrieves a quest, or nil when it does not exist.
func (r *QuestRepository) GetByID(ctx context.Context, id int64) (*models.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests WHERE id = $1`

	quest, err := scanQuest(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return quest, nil
}

// ListActive returns quests whose is_active flag is set and whose validity
// window covers now, ordered by id.
func (r *QuestRepository) ListActive(ctx context.Context, now time.Time) ([]*models.Quest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM quests
		WHERE is_active = true
		  AND (start_at IS NULL OR start_at <= $1)
		  AND (end_at IS NULL OR end_at >= $1)
		ORDER BY id
	`
	return r.queryQuests(ctx, query, now)
}

// List returns all quests ordered by id.
func (r *QuestRepository) List(ctx context.Context) ([]*models.Quest, error) {
	return r.queryQuests(ctx, `SELECT `+questColumns+` FROM quests ORDER BY id`)
}

// SetActive toggles a quest's active flag.
func (r *QuestRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.Pool().Exec(ctx, `UPDATE quests SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update quest: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("quest not found: %d", id)
	}
	return nil
}

func (r *QuestRepository) queryQuests(ctx context.Context, query string, args ...any) ([]*models.Quest, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []*models.Quest
	for rows.Next() {
		quest, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, quest)
	}
	return quests, rows.Err()
}

func scanQuest(row pgx.Row) (*models.Quest, error) {
	var quest models.Quest
	var requirement, reward []byte

	err := row.Scan(
		&quest.ID,
		&quest.ProtocolID,
		&quest.Type,
		&quest.Title,
		&quest.Description,
		&requirement,
		&reward,
		&quest.BadgeURI,
		&quest.Repeatable,
		&quest.IsActive,
		&quest.StartAt,
		&quest.EndAt,
		&quest.SeasonID,
		&quest.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	quest.Requirement = json.RawMessage(requirement)
	if len(reward) > 0 {
		if err := json.Unmarshal(reward, &quest.Reward); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reward: %w", err)
		}
	}
	return &quest, nil
}
