package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quest-engine/internal/logging"
	"github.com/quest-engine/internal/models"
	"github.com/quest-engine/internal/period"
	"github.com/quest-engine/internal/storage"
)

// QuestSource lists the quests a sweep evaluates.
type QuestSource interface {
	ListActive(ctx context.Context, now time.Time) ([]*models.Quest, error)
}

// WalletSource lists known wallets and their aggregates.
type WalletSource interface {
	ListWallets(ctx context.Context) ([]string, error)
	Get(ctx context.Context, wallet string) (*models.User, error)
}

// ProgressSink applies evaluation outcomes to progress rows.
type ProgressSink interface {
	ApplySweepResult(ctx context.Context, wallet string, questID int64, update storage.SweepUpdate) error
	ReopenForPeriod(ctx context.Context, wallet string, questID int64, currentPeriodKey string) error
}

// Archiver records evaluation outcomes for offline analysis.
type Archiver interface {
	Record(record storage.EvaluationRecord)
}

// Sweep periodically evaluates every active (quest, wallet) pair and writes
// the outcomes through the progress sink. One sweep runs at a time: a tick
// that fires while a previous run is still in flight is skipped.
type Sweep struct {
	quests      QuestSource
	users       WalletSource
	progress    ProgressSink
	evaluator   *Evaluator
	archive     Archiver
	interval    time.Duration
	concurrency int
	logger      *logging.Logger

	mu       sync.Mutex
	running  bool
	sweeping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// SweepConfig holds the sweep's dependencies and tuning.
type SweepConfig struct {
	Quests      QuestSource
	Users       WalletSource
	Progress    ProgressSink
	Evaluator   *Evaluator
	Archive     Archiver // optional
	Interval    time.Duration
	Concurrency int
	Logger      *logging.Logger
}

// NewSweep creates a sweep scheduler.
func NewSweep(cfg *SweepConfig) (*Sweep, error) {
	if cfg.Quests == nil {
		return nil, fmt.Errorf("quest source cannot be nil")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("wallet source cannot be nil")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress sink cannot be nil")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Sweep{
		quests:      cfg.Quests,
		users:       cfg.Users,
		progress:    cfg.Progress,
		evaluator:   cfg.Evaluator,
		archive:     cfg.Archive,
		interval:    interval,
		concurrency: concurrency,
		logger:      cfg.Logger.WithField("component", "sweep"),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins the sweep loop. The first sweep runs immediately.
func (s *Sweep) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweep is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithField("interval", s.interval.String()).Info("Starting sweep scheduler")
	go s.loop(ctx)
	return nil
}

// Stop gracefully stops the sweep loop, waiting for an in-flight sweep.
func (s *Sweep) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweep is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.Info("Sweep scheduler stopped")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Sweep) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep. It returns immediately without doing any
// work when another sweep is still in flight.
func (s *Sweep) RunOnce(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Warn("Previous sweep still running, skipping this tick")
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	runID := uuid.New().String()
	logger := s.logger.WithField("sweep_run_id", runID)
	started := time.Now()
	now := started.UTC()

	quests, err := s.quests.ListActive(ctx, now)
	if err != nil {
		logger.WithError(err).Error("Failed to load active quests")
		return
	}
	if len(quests) == 0 {
		logger.Debug("No active quests, nothing to sweep")
		return
	}

	wallets, err := s.users.ListWallets(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load wallets")
		return
	}
	if len(wallets) == 0 {
		logger.Debug("No known wallets, nothing to sweep")
		return
	}

	logger.WithFields(map[string]interface{}{
		"quests":  len(quests),
		"wallets": len(wallets),
	}).Info("Sweep started")

	type pair struct {
		wallet  string
		subject Subject
		quest   *models.Quest
	}

	jobs := make(chan pair)
	var wg sync.WaitGroup
	var evaluated, failed int64
	var countMu sync.Mutex

	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				err := s.evaluatePair(ctx, runID, job.subject, job.quest, now)
				countMu.Lock()
				if err != nil {
					failed++
				} else {
					evaluated++
				}
				countMu.Unlock()
			}
		}()
	}

produce:
	for _, wallet := range wallets {
		subject := Subject{Wallet: wallet}
		if user, err := s.users.Get(ctx, wallet); err != nil {
			logger.WithError(err).WithField("wallet", wallet).Error("Failed to load user, evaluating without aggregates")
		} else if user != nil {
			subject.SeasonLevel = user.SeasonLevel
		}

		for _, quest := range quests {
			select {
			case <-ctx.Done():
				break produce
			case <-s.stopCh:
				break produce
			case jobs <- pair{wallet: wallet, subject: subject, quest: quest}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	logger.WithFields(map[string]interface{}{
		"evaluated": evaluated,
		"failed":    failed,
		"duration":  time.Since(started).String(),
	}).Info("Sweep finished")
}

// evaluatePair evaluates one (wallet, quest) pair and persists the outcome.
// Errors are logged by the caller and never abort the sweep.
func (s *Sweep) evaluatePair(ctx context.Context, runID string, subject Subject, quest *models.Quest, now time.Time) error {
	logger := s.logger.WithFields(map[string]interface{}{
		"sweep_run_id": runID,
		"wallet":       subject.Wallet,
		"quest_id":     quest.ID,
	})

	requirement, err := quest.DecodedRequirement()
	if err != nil {
		logger.WithError(err).Error("Failed to decode quest requirement")
		return err
	}

	window := period.EvaluationWindow(quest, now)
	evalStart := time.Now()
	result := s.evaluator.Evaluate(ctx, requirement, subject, window, now)

	if s.archive != nil {
		s.archive.Record(storage.EvaluationRecord{
			SweepRunID:      runID,
			UserWallet:      subject.Wallet,
			QuestID:         quest.ID,
			RequirementType: requirement.Type(),
			Met:             result.Met,
			Progress:        result.Progress,
			Target:          result.Target,
			DurationMs:      time.Since(evalStart).Milliseconds(),
			EvaluatedAt:     now,
		})
	}

	periodKey := period.Key(quest.Type, now)
	if periodKey != "" {
		// A row claimed in an earlier period goes back to IN_PROGRESS so
		// the upsert below can complete it again for the current period.
		if err := s.progress.ReopenForPeriod(ctx, subject.Wallet, quest.ID, periodKey); err != nil {
			logger.WithError(err).Error("Failed to reopen claimed quest for new period")
			return err
		}
	}

	update := storage.SweepUpdate{
		Met:       result.Met,
		Progress:  result.Progress,
		Target:    result.Target,
		PeriodKey: periodKey,
	}
	if err := s.progress.ApplySweepResult(ctx, subject.Wallet, quest.ID, update); err != nil {
		logger.WithError(err).Error("Failed to persist evaluation result")
		return err
	}

	if result.Met {
		logger.WithFields(map[string]interface{}{
			"progress": result.Progress,
			"target":   result.Target,
		}).Debug("Requirement met")
	}
	return nil
}
