package signal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxScore caps a company's pain score regardless of how many signals are
// active.
const maxScore = 100

// ScoreStore is the slice of the store the aggregator needs.
type ScoreStore interface {
	SumActiveSignalScores(ctx context.Context, companyID int64) (int, error)
	UpdateCompanyScore(ctx context.Context, id int64, score int, at time.Time) error
}

// Aggregator recomputes company pain scores from scratch on every signal
// mutation. A full recompute over the active set makes resolve and insert
// commute, so ordering between concurrent mutations never corrupts scores.
type Aggregator struct {
	store   ScoreStore
	nowFunc func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(store ScoreStore) *Aggregator {
	return &Aggregator{store: store, nowFunc: time.Now}
}

// Recalculate overwrites the company's score with the capped sum of its
// active signal contributions and returns the new score.
func (a *Aggregator) Recalculate(ctx context.Context, companyID int64) (int, error) {
	sum, err := a.store.SumActiveSignalScores(ctx, companyID)
	if err != nil {
		return 0, eris.Wrap(err, "signal: sum active scores")
	}

	score := sum
	if score > maxScore {
		score = maxScore
	}

	if err := a.store.UpdateCompanyScore(ctx, companyID, score, a.nowFunc().UTC()); err != nil {
		return 0, eris.Wrap(err, "signal: persist score")
	}

	zap.L().Debug("score recalculated",
		zap.Int64("company_id", companyID),
		zap.Int("score", score))
	return score, nil
}
