package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/quest-engine/internal/logging"
)

// EvaluationRecord is one row of the sweep audit trail. Records are
// append-only and used for offline analysis of evaluation behavior.
type EvaluationRecord struct {
	SweepRunID      string
	UserWallet      string
	QuestID         int64
	RequirementType string
	Met             bool
	Progress        float64
	Target          float64
	DurationMs      int64
	EvaluatedAt     time.Time
}

// EvaluationArchive buffers evaluation records and flushes them to ClickHouse
// in batches. Archiving is best-effort: a failed flush is logged and dropped,
// it never blocks or fails a sweep.
type EvaluationArchive struct {
	db            *ClickHouseDB
	logger        *logging.Logger
	records       chan EvaluationRecord
	batchSize     int
	flushInterval time.Duration
	doneCh        chan struct{}
}

// NewEvaluationArchive creates an archive writing to the given connection.
func NewEvaluationArchive(db *ClickHouseDB, logger *logging.Logger) *EvaluationArchive {
	return &EvaluationArchive{
		db:            db,
		logger:        logger.WithField("component", "evaluation_archive"),
		records:       make(chan EvaluationRecord, 4096),
		batchSize:     500,
		flushInterval: 10 * time.Second,
		doneCh:        make(chan struct{}),
	}
}

// Start launches the background flusher.
func (a *EvaluationArchive) Start() {
	go a.run()
}

// Stop flushes buffered records and stops the flusher.
func (a *EvaluationArchive) Stop() {
	close(a.records)
	<-a.doneCh
}

// Record queues one evaluation outcome. Drops the record when the buffer is
// full rather than applying backpressure to the sweep.
func (a *EvaluationArchive) Record(record EvaluationRecord) {
	select {
	case a.records <- record:
	default:
		a.logger.Warn("evaluation archive buffer full, dropping record")
	}
}

func (a *EvaluationArchive) run() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]EvaluationRecord, 0, a.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.insertBatch(batch); err != nil {
			a.logger.WithError(err).Error("Failed to flush evaluation records")
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-a.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (a *EvaluationArchive) insertBatch(records []EvaluationRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := a.db.conn.PrepareBatch(ctx, `
		INSERT INTO quest_evaluations (
			sweep_run_id, user_wallet, quest_id, requirement_type,
			met, progress, target, duration_ms, evaluated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range records {
		met := uint8(0)
		if r.Met {
			met = 1
		}
		if err := batch.Append(
			r.SweepRunID,
			r.UserWallet,
			r.QuestID,
			r.RequirementType,
			met,
			r.Progress,
			r.Target,
			r.DurationMs,
			r.EvaluatedAt,
		); err != nil {
			return fmt.Errorf("failed to append record: %w", err)
		}
	}

	return batch.Send()
}
