// Package ingest maintains the MLLP session with the upstream feed and
// drives each message through decode, sequencing, and acknowledgment.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/renalert/renalert/internal/decoder"
	"github.com/renalert/renalert/internal/platform/hl7v2"
	"github.com/renalert/renalert/internal/platform/metrics"
	"github.com/renalert/renalert/internal/sequencer"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Ingestor owns the feed session. It reconnects with exponential backoff
// and never drops a message between read and acknowledgment: the ACK is
// written only after the decoded event has been handed to the sequencer.
type Ingestor struct {
	addr        string
	decoder     *decoder.Decoder
	seq         *sequencer.Sequencer
	readTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

func New(addr string, dec *decoder.Decoder, seq *sequencer.Sequencer, readTimeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		addr:        addr,
		decoder:     dec,
		seq:         seq,
		readTimeout: readTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// Run connects to the feed and processes messages until ctx is cancelled.
// Connection and session failures are retried with exponential backoff.
func (i *Ingestor) Run(ctx context.Context) error {
	backoff := initialBackoff
	connected := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, err := hl7v2.Dial(ctx, i.addr, i.readTimeout)
		if err != nil {
			i.logger.Warn().Err(err).Str("addr", i.addr).Dur("backoff", backoff).Msg("feed connection failed")
			if err := i.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if connected {
			i.metrics.FeedReconnects.Inc()
		}
		connected = true
		backoff = initialBackoff
		i.logger.Info().Str("addr", i.addr).Msg("connected to feed")

		err = i.session(ctx, client)
		client.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		i.logger.Warn().Err(err).Msg("feed session ended, reconnecting")
		if err := i.wait(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
}

// session reads one message at a time: decode, enqueue, then ACK. The
// sequencer's bounded queue applies backpressure here, which the feed
// observes as a delayed acknowledgment.
func (i *Ingestor) session(ctx context.Context, client *hl7v2.Client) error {
	// Unblock a pending read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	for {
		raw, err := client.ReadMessage()
		if err != nil {
			return err
		}
		i.metrics.MessagesReceived.Inc()

		ev, ack := i.decoder.Decode(raw)
		if err := i.seq.Enqueue(ctx, ev); err != nil {
			return err
		}
		if err := client.Ack(ack); err != nil {
			return err
		}
	}
}

func (i *Ingestor) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
