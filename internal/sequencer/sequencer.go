// Package sequencer applies decoded clinical events against the patient
// store one at a time, preserving the feed's arrival order, and hands lab
// results off to risk alerting once their store write is durable.
package sequencer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/decoder"
	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/platform/metrics"
)

// Sink receives lab results after their store write has been committed.
// Submit must not block: alert latency must never stall ingestion.
type Sink interface {
	Submit(mrn int64, testTime time.Time, value float64, receivedAt time.Time)
}

type item struct {
	event      decoder.Event
	receivedAt time.Time
}

// Sequencer is the single logical writer to the patient store. Events are
// queued in arrival order and applied by one goroutine, so no two events
// can race on the same MRN.
type Sequencer struct {
	store   patient.Repository
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics

	queue chan item
	done  chan struct{}
}

// New creates a Sequencer with the given queue capacity. Enqueue applies
// backpressure once the queue is full.
func New(store patient.Repository, sink Sink, logger zerolog.Logger, m *metrics.Metrics, queueSize int) *Sequencer {
	return &Sequencer{
		store:   store,
		sink:    sink,
		logger:  logger.With().Str("component", "sequencer").Logger(),
		metrics: m,
		queue:   make(chan item, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the apply loop. ctx bounds the store calls made while
// applying events; it does not stop the loop — call Close for that.
func (s *Sequencer) Start(ctx context.Context) {
	go s.run(ctx)
}

// Enqueue appends an event to the ordering queue. It blocks when the queue
// is full, propagating backpressure to the transport handshake. Must not be
// called after Close.
func (s *Sequencer) Enqueue(ctx context.Context, ev decoder.Event) error {
	select {
	case s.queue <- item{event: ev, receivedAt: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for the queue to drain, and returns.
func (s *Sequencer) Close() {
	close(s.queue)
	<-s.done
}

func (s *Sequencer) run(ctx context.Context) {
	defer close(s.done)
	for it := range s.queue {
		s.apply(ctx, it)
	}
}

// apply mutates the store for one event. Store failures abort the current
// event only: they are surfaced to the operator through the log and never
// touch records already committed.
func (s *Sequencer) apply(ctx context.Context, it item) {
	switch ev := it.event.(type) {
	case decoder.Admission:
		p := &patient.Patient{MRN: ev.MRN, AdmissionStatus: patient.StatusAdmitted}
		if ev.Name != "" {
			p.Name = &ev.Name
		}
		p.Age = ev.Age
		if ev.Sex == "M" || ev.Sex == "F" {
			p.Sex = &ev.Sex
		}
		if err := s.store.Upsert(ctx, p); err != nil {
			s.logger.Error().Err(err).Int64("mrn", ev.MRN).Msg("admission upsert failed")
			return
		}
		s.logger.Info().Int64("mrn", ev.MRN).Msg("patient admitted")

	case decoder.Discharge:
		err := s.store.SetAdmissionStatus(ctx, ev.MRN, patient.StatusDischarged)
		if errors.Is(err, patient.ErrNotFound) {
			// A discharge alone does not justify fabricating a record.
			s.logger.Warn().Int64("mrn", ev.MRN).Msg("discharge for unknown patient ignored")
			return
		}
		if err != nil {
			s.logger.Error().Err(err).Int64("mrn", ev.MRN).Msg("discharge update failed")
			return
		}
		s.logger.Info().Int64("mrn", ev.MRN).Msg("patient discharged")

	case decoder.LabResult:
		s.metrics.TestResultsReceived.Inc()
		s.metrics.BloodTestValues.Observe(ev.Value)
		s.applyLabResult(ctx, ev, it.receivedAt)

	case decoder.Unrecognized:
		s.metrics.MessagesUnrecognized.Inc()
		s.logger.Warn().Str("reason", string(ev.Reason)).Msg("unrecognized message")
	}
}

// applyLabResult stores the result and forwards it to alerting. A result for
// an unseen MRN creates a minimal patient record first so it is not
// orphaned. The forward happens only after the append has been committed.
func (s *Sequencer) applyLabResult(ctx context.Context, ev decoder.LabResult, receivedAt time.Time) {
	exists, err := s.store.Exists(ctx, ev.MRN)
	if err != nil {
		s.logger.Error().Err(err).Int64("mrn", ev.MRN).Msg("patient lookup failed")
		return
	}
	if !exists {
		minimal := &patient.Patient{MRN: ev.MRN, AdmissionStatus: patient.StatusAdmitted}
		if err := s.store.Upsert(ctx, minimal); err != nil {
			s.logger.Error().Err(err).Int64("mrn", ev.MRN).Msg("minimal patient record failed")
			return
		}
		s.logger.Info().Int64("mrn", ev.MRN).Msg("created minimal patient record for lab result")
	}

	if err := s.store.AppendLabResult(ctx, ev.MRN, ev.TestTime, ev.Value, patient.ProvenanceLive); err != nil {
		s.logger.Error().Err(err).Int64("mrn", ev.MRN).Msg("lab result append failed")
		return
	}

	s.sink.Submit(ev.MRN, ev.TestTime, ev.Value, receivedAt)
}
