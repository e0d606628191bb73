package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/batchsettle/internal/metrics"
	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Relay moves events from the outbox to a Publisher in sequence order.
// Events are read and marked in separate short transactions; publishing
// happens outside any transaction.
type Relay struct {
	store     storage.Store
	publisher Publisher
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) { r.interval = d }
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) { r.batchSize = n }
}

func WithMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

// NewRelay creates a relay from store to publisher.
func NewRelay(store storage.Store, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run flushes the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("Event relay flush failed", "error", err)
			}
		}
	}
}

// Flush publishes pending events until the outbox is empty or a publish
// fails. It returns the number of events published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		var pending []*models.Event
		err := r.store.WithTx(ctx, func(tx storage.Tx) error {
			var err error
			pending, err = tx.ListUnpublishedEvents(ctx, r.batchSize)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("failed to read outbox: %w", err)
		}
		if len(pending) == 0 {
			return total, nil
		}

		ids := make([]string, 0, len(pending))
		var pubErr error
		for _, e := range pending {
			if pubErr = r.publisher.Publish(ctx, e); pubErr != nil {
				break
			}
			ids = append(ids, e.ID)
		}

		if len(ids) > 0 {
			at := r.now()
			err := r.store.WithTx(ctx, func(tx storage.Tx) error {
				return tx.MarkEventsPublished(ctx, ids, at)
			})
			if err != nil {
				return total, fmt.Errorf("failed to mark events published: %w", err)
			}
			total += len(ids)
			r.metrics.EventsPublished("ok", len(ids))
		}
		if pubErr != nil {
			r.metrics.EventsPublished("error", 1)
			return total, fmt.Errorf("failed to publish event: %w", pubErr)
		}
		if len(pending) < r.batchSize {
			return total, nil
		}
	}
}
