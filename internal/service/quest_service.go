package service

import (
	"context"
	"fmt"
	"time"

	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/storage"
	"github.com/quest-engine/internal/types"
)

// QuestCatalog provides quest definition persistence.
type QuestCatalog interface {
	Create(ctx context.Context, quest *models.Quest) error
	List(ctx context.Context) ([]*models.Quest, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Quest, error)
	GetByID(ctx context.Context, id int64) (*models.Quest, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// UserQuestReader lists a wallet's progress rows.
type UserQuestReader interface {
	ListByWallet(ctx context.Context, wallet string) ([]*models.UserQuest, error)
}

// QuestRegistrar registers quest definitions on-chain.
type QuestRegistrar interface {
	RegisterQuest(ctx context.Context, questID int64, name, description, uri string, repeatable bool) (string, error)
}

// QuestCache caches read-heavy quest queries. Cache failures degrade to
// direct reads.
type QuestCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateQuests(ctx context.Context) error
}

const activeQuestsTTL = 30 * time.Second

// QuestService serves the quest catalog and per-wallet progress views.
type QuestService struct {
	quests     QuestCatalog
	userQuests UserQuestReader
	users      UserStore
	registrar  QuestRegistrar
	cache      QuestCache
	logger     *logging.Logger
}

// NewQuestService creates a quest service. Cache and registrar are optional;
// a nil registrar disables on-chain registration for new quests.
func NewQuestService(
	quests QuestCatalog,
	userQuests UserQuestReader,
	users UserStore,
	registrar QuestRegistrar,
	cache QuestCache,
	logger *logging.Logger,
) *QuestService {
	return &QuestService{
		quests:     quests,
		userQuests: userQuests,
		users:      users,
		registrar:  registrar,
		cache:      cache,
		logger:     logger.WithField("component", "quest_service"),
	}
}

// ListActiveQuests returns the quests currently open for evaluation. Results
// are cached briefly since every client hits this on page load.
func (s *QuestService) ListActiveQuests(ctx context.Context) ([]*models.Quest, error) {
	if s.cache != nil {
		var cached []*models.Quest
		if hit, err := s.cache.GetJSON(ctx, storage.ActiveQuestsKey, &cached); err != nil {
			s.logger.WithError(err).Warn("Quest cache read failed, falling back to database")
		} else if hit {
			return cached, nil
		}
	}

	quests, err := s.quests.ListActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, storage.ActiveQuestsKey, quests, activeQuestsTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to populate quest cache")
		}
	}
	return quests, nil
}

// UserQuestView is a quest definition joined with the wallet's progress. A
// wallet with no row yet is reported as NOT_STARTED with zero progress.
type UserQuestView struct {
	Quest        *models.Quest       `json:"quest"`
	Status       string              `json:"status"`
	ProgressData models.ProgressData `json:"progressData"`
	CompletedAt  *time.Time          `json:"completedAt,omitempty"`
	ClaimedAt    *time.Time          `json:"claimedAt,omitempty"`
}

// statusNotStarted is a presentation-only status for quests the sweep has not
// evaluated for this wallet yet. It is never stored.
const statusNotStarted = "NOT_STARTED"

// GetUserQuests returns the wallet's view of every active quest. The user row
// is lazily created so the next sweep picks the wallet up.
func (s *QuestService) GetUserQuests(ctx context.Context, wallet string) ([]*UserQuestView, error) {
	wallet = mirror.NormalizeWallet(wallet)

	if _, err := s.users.Upsert(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to register wallet: %w", err)
	}

	quests, err := s.ListActiveQuests(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.userQuests.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	byQuest := make(map[int64]*models.UserQuest, len(rows))
	for _, row := range rows {
		byQuest[row.QuestID] = row
	}

	views := make([]*UserQuestView, 0, len(quests))
	for _, quest := range quests {
		view := &UserQuestView{Quest: quest, Status: statusNotStarted}
		if row, ok := byQuest[quest.ID]; ok {
			view.Status = string(row.Status)
			view.ProgressData = row.ProgressData
			view.CompletedAt = row.CompletedAt
			view.ClaimedAt = row.ClaimedAt
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateQuestInput is the admin payload for a new quest.
type CreateQuestInput struct {
	ProtocolID  *int64            `json:"protocolId,omitempty"`
	Type        types.QuestType   `json:"type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Requirement types.Requirement `json:"-"`
	Reward      models.Reward     `json:"reward"`
	BadgeURI    string            `json:"badgeUri"`
	Repeatable  bool              `json:"repeatable"`
	StartAt     *time.Time        `json:"startAt,omitempty"`
	EndAt       *time.Time        `json:"endAt,omitempty"`
	SeasonID    *int64            `json:"seasonId,omitempty"`
}

// CreateQuest inserts a quest and registers it on-chain. The database insert
// comes first because the generated id doubles as the on-chain quest id. If
// registration fails the quest is deactivated rather than deleted, so the id
// is never reused.
func (s *QuestService) CreateQuest(ctx context.Context, input *CreateQuestInput) (*models.Quest, error) {
	if input.Title == "" {
		return nil, fmt.Errorf("quest title is required")
	}
	if input.Requirement == nil {
		return nil, fmt.Errorf("quest requirement is required")
	}

	requirement, err := types.EncodeRequirement(input.Requirement)
	if err != nil {
		return nil, err
	}

	quest := &models.Quest{
		ProtocolID:  input.ProtocolID,
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		Requirement: requirement,
		Reward:      input.Reward,
		BadgeURI:    input.BadgeURI,
		Repeatable:  input.Repeatable,
		IsActive:    true,
		StartAt:     input.StartAt,
		EndAt:       input.EndAt,
		SeasonID:    input.SeasonID,
	}
	if err := s.quests.Create(ctx, quest); err != nil {
		return nil, err
	}

	if s.registrar != nil {
		txHash, err := s.registrar.RegisterQuest(ctx, quest.ID, quest.Title, quest.Description, quest.BadgeURI, quest.Repeatable)
		if err != nil {
			s.logger.WithError(err).WithField("quest_id", quest.ID).Error("On-chain registration failed, deactivating quest")
			if deactivateErr := s.quests.SetActive(ctx, quest.ID, false); deactivateErr != nil {
				s.logger.WithError(deactivateErr).Error("Failed to deactivate unregistered quest")
			}
			return nil, fmt.Errorf("failed to register quest on-chain: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"quest_id": quest.ID,
			"tx_hash":  txHash,
		}).Info("Quest registered on-chain")
	}

	s.invalidateCache(ctx)
	return quest, nil
}

// SetQuestActive toggles a quest's active flag.
func (s *QuestService) SetQuestActive(ctx context.Context, id int64, active bool) error {
	if err := s.quests.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.invalidateCache(ctx)
	return nil
}

// ListQuests returns the full catalog, including inactive quests.
func (s *QuestService) ListQuests(ctx context.Context) ([]*models.Quest, error) {
	return s.quests.List(ctx)
}

func (s *QuestService) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateQuests(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate quest cache")
	}
}
