package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/platform/metrics"
)

// Evaluator runs the full risk pipeline for each committed lab result:
// fetch history, compute features, score, and deliver a page when the
// decision is positive. Each result is evaluated on its own goroutine so
// retry delays never block ingestion.
type Evaluator struct {
	store      patient.Repository
	classifier Classifier
	deliverer  *Deliverer
	recorder   *PageLog
	budget     time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEvaluator wires the pipeline. recorder may be nil; budget bounds each
// sequence's wall clock measured from lab-result receipt.
func NewEvaluator(store patient.Repository, classifier Classifier, deliverer *Deliverer, recorder *PageLog, budget time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Evaluator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Evaluator{
		store:      store,
		classifier: classifier,
		deliverer:  deliverer,
		recorder:   recorder,
		budget:     budget,
		logger:     logger,
		metrics:    m,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// Submit starts evaluation of one lab result. It never blocks.
func (e *Evaluator) Submit(mrn int64, testTime time.Time, value float64, receivedAt time.Time) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.evaluate(mrn, testTime, value, receivedAt)
	}()
}

func (e *Evaluator) evaluate(mrn int64, testTime time.Time, value float64, receivedAt time.Time) {
	ctx, cancel := context.WithDeadline(e.baseCtx, receivedAt.Add(e.budget))
	defer cancel()

	p, err := e.store.GetByMRN(ctx, mrn)
	if err != nil {
		e.logger.Error().Err(err).Int64("mrn", mrn).Msg("risk evaluation: fetch patient failed")
		return
	}
	history, err := e.store.LabHistory(ctx, mrn)
	if err != nil {
		e.logger.Error().Err(err).Int64("mrn", mrn).Msg("risk evaluation: fetch history failed")
		return
	}
	if len(history) == 0 {
		e.logger.Error().Int64("mrn", mrn).Msg("risk evaluation: empty history for committed result")
		return
	}

	vec := BuildFeatures(p, history)
	e.metrics.Predictions.Inc()

	positive, err := e.classifier.Score(ctx, vec)
	if err != nil {
		// Conservative: a failed score is never treated as positive.
		e.metrics.ClassifierErrors.Inc()
		e.logger.Error().Err(err).Int64("mrn", mrn).Float64("value", value).Msg("classifier call failed, skipping alert")
		return
	}
	if !positive {
		return
	}

	e.metrics.PositivePredictions.Inc()
	attempt := e.deliverer.Deliver(ctx, mrn, testTime, receivedAt)
	if attempt.State == StateAcknowledged && e.recorder != nil {
		if err := e.recorder.Record(mrn, testTime); err != nil {
			e.logger.Error().Err(err).Int64("mrn", mrn).Msg("page log append failed")
		}
	}
}

// Close waits for in-flight evaluations. When ctx expires first, pending
// delivery sequences are cancelled so each reaches a terminal state or an
// incomplete marker before Close returns.
func (e *Evaluator) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}
