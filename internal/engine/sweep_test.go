package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quest-engine/internal/config"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/mirror"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/storage"
	"github.com/quest-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuestSource struct {
	mu     sync.Mutex
	quests []*models.Quest
	calls  int
	block  chan struct{}
}

func (f *fakeQuestSource) ListActive(ctx context.Context, now time.Time) ([]*models.Quest, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.quests, nil
}

func (f *fakeQuestSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeWalletSource struct {
	wallets []string
	users   map[string]*models.User
}

func (f *fakeWalletSource) ListWallets(ctx context.Context) ([]string, error) {
	return f.wallets, nil
}

func (f *fakeWalletSource) Get(ctx context.Context, wallet string) (*models.User, error) {
	return f.users[wallet], nil
}

type appliedUpdate struct {
	wallet  string
	questID int64
	update  storage.SweepUpdate
}

type reopenCall struct {
	wallet    string
	questID   int64
	periodKey string
}

type fakeProgressSink struct {
	mu       sync.Mutex
	applied  []appliedUpdate
	reopened []reopenCall
}

func (f *fakeProgressSink) ApplySweepResult(ctx context.Context, wallet string, questID int64, update storage.SweepUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, appliedUpdate{wallet: wallet, questID: questID, update: update})
	return nil
}

func (f *fakeProgressSink) ReopenForPeriod(ctx context.Context, wallet string, questID int64, currentPeriodKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reopened = append(f.reopened, reopenCall{wallet: wallet, questID: questID, periodKey: currentPeriodKey})
	return nil
}

func (f *fakeProgressSink) updates() []appliedUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]appliedUpdate(nil), f.applied...)
}

func (f *fakeProgressSink) reopens() []reopenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reopenCall(nil), f.reopened...)
}

type fakeArchiver struct {
	mu      sync.Mutex
	records []storage.EvaluationRecord
}

func (f *fakeArchiver) Record(record storage.EvaluationRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
}

func offlineEvaluator() *Evaluator {
	cfg := &config.MirrorConfig{
		BaseURL:           "http://127.0.0.1:0",
		SwapRouterID:      "0.0.1",
		RequestTimeout:    time.Second,
		RequestsPerSecond: 1000,
		ResultLimit:       200,
	}
	logger := logging.NewLogger(logging.LevelFatal, logging.FormatText)
	return NewEvaluator(mirror.NewClient(cfg, logger), cfg, logger)
}

func requirementJSON(t *testing.T, r types.Requirement) json.RawMessage {
	t.Helper()
	data, err := types.EncodeRequirement(r)
	require.NoError(t, err)
	return data
}

func achievementQuest(t *testing.T, id int64, r types.Requirement) *models.Quest {
	t.Helper()
	return &models.Quest{
		ID:          id,
		Type:        types.QuestAchievement,
		Title:       "test quest",
		Requirement: requirementJSON(t, r),
		IsActive:    true,
	}
}

func newTestSweep(t *testing.T, cfg *SweepConfig) *Sweep {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger(logging.LevelFatal, logging.FormatText)
	}
	sweep, err := NewSweep(cfg)
	require.NoError(t, err)
	return sweep
}

func TestSweepRunOnceEvaluatesAllPairs(t *testing.T) {
	quests := &fakeQuestSource{quests: []*models.Quest{
		achievementQuest(t, 1, types.SeasonLevelAtLeastRequirement{MinLevel: 2}),
	}}
	users := &fakeWalletSource{
		wallets: []string{"0xaaa", "0xbbb"},
		users: map[string]*models.User{
			"0xaaa": {Wallet: "0xaaa", SeasonLevel: 3},
			"0xbbb": {Wallet: "0xbbb", SeasonLevel: 1},
		},
	}
	sink := &fakeProgressSink{}
	archive := &fakeArchiver{}

	sweep := newTestSweep(t, &SweepConfig{
		Quests:    quests,
		Users:     users,
		Progress:  sink,
		Evaluator: offlineEvaluator(),
		Archive:   archive,
	})
	sweep.RunOnce(context.Background())

	updates := sink.updates()
	require.Len(t, updates, 2)

	byWallet := map[string]storage.SweepUpdate{}
	for _, u := range updates {
		byWallet[u.wallet] = u.update
	}
	assert.True(t, byWallet["0xaaa"].Met)
	assert.False(t, byWallet["0xbbb"].Met)
	assert.Equal(t, 3.0, byWallet["0xaaa"].Progress)
	assert.Equal(t, "", byWallet["0xaaa"].PeriodKey, "achievement quests have no reset period")

	archive.mu.Lock()
	defer archive.mu.Unlock()
	assert.Len(t, archive.records, 2)
	assert.Equal(t, "SEASON_LEVEL_AT_LEAST", archive.records[0].RequirementType)
	assert.NotEmpty(t, archive.records[0].SweepRunID)
}

func TestSweepDailyQuestCarriesPeriodKey(t *testing.T) {
	quest := achievementQuest(t, 7, types.SeasonLevelAtLeastRequirement{MinLevel: 1})
	quest.Type = types.QuestDaily

	sink := &fakeProgressSink{}
	sweep := newTestSweep(t, &SweepConfig{
		Quests:    &fakeQuestSource{quests: []*models.Quest{quest}},
		Users:     &fakeWalletSource{wallets: []string{"0xaaa"}, users: map[string]*models.User{"0xaaa": {Wallet: "0xaaa", SeasonLevel: 2}}},
		Progress:  sink,
		Evaluator: offlineEvaluator(),
	})
	sweep.RunOnce(context.Background())

	updates := sink.updates()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].update.Met)
	assert.True(t, strings.HasPrefix(updates[0].update.PeriodKey, "daily:"))
}

func TestSweepReopensClaimedRecurringQuests(t *testing.T) {
	daily := achievementQuest(t, 7, types.SeasonLevelAtLeastRequirement{MinLevel: 1})
	daily.Type = types.QuestDaily
	oneTime := achievementQuest(t, 8, types.SeasonLevelAtLeastRequirement{MinLevel: 1})

	sink := &fakeProgressSink{}
	sweep := newTestSweep(t, &SweepConfig{
		Quests:    &fakeQuestSource{quests: []*models.Quest{daily, oneTime}},
		Users:     &fakeWalletSource{wallets: []string{"0xaaa"}, users: map[string]*models.User{"0xaaa": {Wallet: "0xaaa", SeasonLevel: 2}}},
		Progress:  sink,
		Evaluator: offlineEvaluator(),
	})
	sweep.RunOnce(context.Background())

	// Only the daily quest gets a reopen, carrying the current period key so
	// rows claimed this period stay claimed.
	reopens := sink.reopens()
	require.Len(t, reopens, 1)
	assert.Equal(t, int64(7), reopens[0].questID)
	assert.Equal(t, "0xaaa", reopens[0].wallet)
	assert.True(t, strings.HasPrefix(reopens[0].periodKey, "daily:"))

	require.Len(t, sink.updates(), 2)
}

func TestSweepNoWallets(t *testing.T) {
	sink := &fakeProgressSink{}
	sweep := newTestSweep(t, &SweepConfig{
		Quests:    &fakeQuestSource{quests: []*models.Quest{achievementQuest(t, 1, types.SeasonLevelAtLeastRequirement{MinLevel: 1})}},
		Users:     &fakeWalletSource{},
		Progress:  sink,
		Evaluator: offlineEvaluator(),
	})
	sweep.RunOnce(context.Background())

	assert.Empty(t, sink.updates())
}

func TestSweepSkipsOverlappingRun(t *testing.T) {
	block := make(chan struct{})
	quests := &fakeQuestSource{
		quests: []*models.Quest{achievementQuest(t, 1, types.SeasonLevelAtLeastRequirement{MinLevel: 1})},
		block:  block,
	}
	sink := &fakeProgressSink{}
	sweep := newTestSweep(t, &SweepConfig{
		Quests:    quests,
		Users:     &fakeWalletSource{wallets: []string{"0xaaa"}, users: map[string]*models.User{}},
		Progress:  sink,
		Evaluator: offlineEvaluator(),
	})

	done := make(chan struct{})
	go func() {
		sweep.RunOnce(context.Background())
		close(done)
	}()

	// Wait for the first run to enter the quest load, then attempt a second.
	require.Eventually(t, func() bool { return quests.callCount() == 1 }, time.Second, 5*time.Millisecond)
	sweep.RunOnce(context.Background())
	assert.Equal(t, 1, quests.callCount(), "overlapping sweep must be skipped")

	close(block)
	<-done
}

func TestSweepUndecodableRequirementIsIsolated(t *testing.T) {
	broken := &models.Quest{
		ID:          1,
		Type:        types.QuestAchievement,
		Requirement: json.RawMessage(`{not json`),
		IsActive:    true,
	}
	healthy := achievementQuest(t, 2, types.SeasonLevelAtLeastRequirement{MinLevel: 1})

	sink := &fakeProgressSink{}
	sweep := newTestSweep(t, &SweepConfig{
		Quests:    &fakeQuestSource{quests: []*models.Quest{broken, healthy}},
		Users:     &fakeWalletSource{wallets: []string{"0xaaa"}, users: map[string]*models.User{"0xaaa": {Wallet: "0xaaa", SeasonLevel: 2}}},
		Progress:  sink,
		Evaluator: offlineEvaluator(),
	})
	sweep.RunOnce(context.Background())

	updates := sink.updates()
	require.Len(t, updates, 1, "broken quest skipped, healthy quest still evaluated")
	assert.Equal(t, int64(2), updates[0].questID)
}
