package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/platform/metrics"
)

// State is a node in the delivery state machine.
type State string

const (
	StatePending      State = "pending"
	StateSent         State = "sent"
	StateFailed       State = "failed"
	StateAcknowledged State = "acknowledged"
	StateRejected     State = "rejected"
	StateExhausted    State = "exhausted"
	StateIncomplete   State = "incomplete"
)

// Terminal reports whether the state ends the delivery sequence.
func (s State) Terminal() bool {
	switch s {
	case StateAcknowledged, StateRejected, StateExhausted, StateIncomplete:
		return true
	}
	return false
}

// maxAttempts is the total number of page requests per sequence: the
// initial attempt plus two retries.
const maxAttempts = 3

// Clock abstracts time for the delivery loop so the retry delay is
// testable with a fake clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// AlertAttempt records one delivery sequence from instantiation to its
// terminal state.
type AlertAttempt struct {
	ID       uuid.UUID
	MRN      int64
	TestTime time.Time
	State    State
	Attempts int
	// Latency is measured from lab-result receipt to the terminal state.
	Latency time.Duration
}

// Deliverer runs the bounded-retry delivery state machine for positive
// risk decisions.
type Deliverer struct {
	pager      Pager
	clock      Clock
	retryDelay time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewDeliverer(pager Pager, clock Clock, retryDelay time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Deliverer {
	return &Deliverer{
		pager:      pager,
		clock:      clock,
		retryDelay: retryDelay,
		logger:     logger,
		metrics:    m,
	}
}

// Deliver drives one sequence to a terminal state and returns its record.
// Context cancellation between attempts abandons the sequence with
// StateIncomplete; exhaustion and rejection are reported, never escalated.
func (d *Deliverer) Deliver(ctx context.Context, mrn int64, testTime, receivedAt time.Time) AlertAttempt {
	attempt := AlertAttempt{
		ID:       uuid.New(),
		MRN:      mrn,
		TestTime: testTime,
		State:    StatePending,
	}

	for !attempt.State.Terminal() {
		if attempt.State == StateFailed {
			d.metrics.PageRetries.Inc()
			select {
			case <-ctx.Done():
				attempt.State = StateIncomplete
				continue
			case <-d.clock.After(d.retryDelay):
			}
		}

		attempt.State = StateSent
		attempt.Attempts++
		d.metrics.PagesSent.Inc()

		err := d.pager.Page(ctx, mrn, testTime)
		switch {
		case err == nil:
			attempt.State = StateAcknowledged
		case errors.Is(err, ErrRejected):
			d.logger.Warn().Err(err).Int64("mrn", mrn).Msg("page rejected by channel")
			attempt.State = StateRejected
		case attempt.Attempts >= maxAttempts:
			d.logger.Error().Err(err).Int64("mrn", mrn).Int("attempts", attempt.Attempts).Msg("alert delivery exhausted")
			attempt.State = StateExhausted
		default:
			d.logger.Warn().Err(err).Int64("mrn", mrn).Int("attempt", attempt.Attempts).Msg("page attempt failed")
			attempt.State = StateFailed
		}
	}

	attempt.Latency = d.clock.Now().Sub(receivedAt)
	d.metrics.AlertLatency.Observe(attempt.Latency.Seconds())

	switch attempt.State {
	case StateExhausted:
		d.metrics.AlertsExhausted.Inc()
	case StateRejected:
		d.metrics.AlertsRejected.Inc()
	case StateIncomplete:
		d.logger.Warn().
			Str("alert_id", attempt.ID.String()).
			Int64("mrn", mrn).
			Int("attempts", attempt.Attempts).
			Msg("alert delivery abandoned before terminal state")
	}

	d.logger.Info().
		Str("alert_id", attempt.ID.String()).
		Int64("mrn", mrn).
		Str("state", string(attempt.State)).
		Int("attempts", attempt.Attempts).
		Dur("latency", attempt.Latency).
		Msg("alert delivery finished")

	return attempt
}
