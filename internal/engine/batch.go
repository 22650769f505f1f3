package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadsignal/signals-cli/internal/model"
	"github.com/leadsignal/signals-cli/internal/resilience"
)

// BatchStats aggregates one batch run. Individual observation errors are
// counted and parked, never propagated.
type BatchStats struct {
	RunID          string `json:"run_id"`
	Fetched        int64  `json:"fetched"`
	Created        int64  `json:"created"`
	Updated        int64  `json:"updated"`
	Reposted       int64  `json:"reposted"`
	Skipped        int64  `json:"skipped"`
	Errored        int64  `json:"errored"`
	SignalsEmitted int64  `json:"signals_emitted"`
}

// dlqBaseBackoff is the replay delay after the first failure; it doubles
// per retry.
const dlqBaseBackoff = 30 * time.Minute

// IngestBatch runs observations through the pipeline with a bounded worker
// pool. Failures are isolated per observation: data-quality drops are
// counted as skips, everything else lands in the DLQ for replay.
func (e *Engine) IngestBatch(ctx context.Context, observations []model.RawPosting) (*BatchStats, error) {
	stats := &BatchStats{RunID: uuid.NewString(), Fetched: int64(len(observations))}

	maxConcurrent := e.ingestCfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	var created, updated, reposted, skipped, errored, signals int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, obs := range observations {
		g.Go(func() error {
			res, err := e.IngestObservation(gctx, obs)
			if err != nil {
				if eris.Is(err, ErrSkip) {
					atomic.AddInt64(&skipped, 1)
					zap.L().Debug("observation skipped", zap.String("reason", err.Error()))
					return nil
				}
				atomic.AddInt64(&errored, 1)
				e.parkObservation(gctx, obs, err)
				return nil
			}

			switch res.Transition {
			case model.TransitionNew:
				atomic.AddInt64(&created, 1)
			case model.TransitionReposted:
				atomic.AddInt64(&reposted, 1)
			default:
				atomic.AddInt64(&updated, 1)
			}
			atomic.AddInt64(&signals, int64(len(res.SignalsEmitted)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "engine: batch ingest")
	}

	stats.Created = created
	stats.Updated = updated
	stats.Reposted = reposted
	stats.Skipped = skipped
	stats.Errored = errored
	stats.SignalsEmitted = signals

	zap.L().Info("batch ingested",
		zap.String("run_id", stats.RunID),
		zap.Int64("fetched", stats.Fetched),
		zap.Int64("created", stats.Created),
		zap.Int64("updated", stats.Updated),
		zap.Int64("reposted", stats.Reposted),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("errored", stats.Errored),
		zap.Int64("signals", stats.SignalsEmitted))

	return stats, nil
}

// parkObservation puts a failed observation on the dead letter queue. A
// DLQ write failure is logged and dropped: the next provider sweep will
// re-deliver the observation anyway.
func (e *Engine) parkObservation(ctx context.Context, obs model.RawPosting, cause error) {
	now := e.nowFunc().UTC()
	entry := resilience.DLQEntry{
		ID:           uuid.NewString(),
		Observation:  obs,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		FailedPhase:  "ingest",
		MaxRetries:   3,
		NextRetryAt:  now.Add(dlqBaseBackoff),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	if err := e.store.EnqueueDLQ(ctx, entry); err != nil {
		zap.L().Error("dlq enqueue failed",
			zap.String("company", obs.CompanyName), zap.Error(err))
		return
	}
	zap.L().Warn("observation parked",
		zap.String("dlq_id", entry.ID),
		zap.String("company", obs.CompanyName),
		zap.String("error_type", entry.ErrorType),
		zap.Error(cause))
}

// ReplayStats aggregates one DLQ replay pass.
type ReplayStats struct {
	Replayed  int64 `json:"replayed"`
	Succeeded int64 `json:"succeeded"`
	Requeued  int64 `json:"requeued"`
}

// ReplayDLQ re-runs parked observations whose retry time has come.
// Successes leave the queue; repeat failures back off exponentially until
// their retry budget runs out.
func (e *Engine) ReplayDLQ(ctx context.Context, limit int) (*ReplayStats, error) {
	entries, err := e.store.DequeueDLQ(ctx, resilience.DLQFilter{Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "engine: dequeue dlq")
	}

	stats := &ReplayStats{Replayed: int64(len(entries))}
	for _, entry := range entries {
		_, err := e.IngestObservation(ctx, entry.Observation)
		if err == nil || eris.Is(err, ErrSkip) {
			if err := e.store.DeleteDLQ(ctx, entry.ID); err != nil {
				return stats, eris.Wrap(err, "engine: delete dlq entry")
			}
			stats.Succeeded++
			continue
		}

		backoff := dlqBaseBackoff << entry.RetryCount
		next := e.nowFunc().UTC().Add(backoff)
		if err := e.store.RequeueDLQ(ctx, entry.ID, err.Error(), next); err != nil {
			return stats, eris.Wrap(err, "engine: requeue dlq entry")
		}
		stats.Requeued++
	}
	return stats, nil
}
