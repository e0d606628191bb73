package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/models"
	"github.com/mmynk/batchsettle/internal/storage"
	"github.com/mmynk/batchsettle/internal/storage/sqlite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.Event
	failAt int // fail the nth publish (1-based); 0 never fails
	calls  int
}

func (p *recordingPublisher) Publish(_ context.Context, e *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.calls == p.failAt {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func seedEvents(t *testing.T, store storage.Store, types ...models.EventType) {
	t.Helper()

	err := store.WithTx(context.Background(), func(tx storage.Tx) error {
		for _, typ := range types {
			if err := tx.InsertEvent(context.Background(), &models.Event{
				Type:      typ,
				BatchID:   "b1",
				Actor:     common.HexToAddress("0x01"),
				CreatedAt: time.Now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed events: %v", err)
	}
}

func newStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRelayFlushPublishesInOrder(t *testing.T) {
	store := newStore(t)
	seedEvents(t, store, models.EventBatchCommitted, models.EventPayoutOpened, models.EventClaimed)

	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithBatchSize(2))

	n, err := relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 3 {
		t.Errorf("published = %d, want 3", n)
	}

	want := []models.EventType{models.EventBatchCommitted, models.EventPayoutOpened, models.EventClaimed}
	got := pub.types()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	// Nothing is delivered twice.
	n, err = relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second flush published %d events, want 0", n)
	}
}

func TestRelayStopsAtFailedPublish(t *testing.T) {
	store := newStore(t)
	seedEvents(t, store, models.EventBatchCommitted, models.EventPayoutOpened, models.EventSettled)

	pub := &recordingPublisher{failAt: 2}
	relay := NewRelay(store, pub)

	n, err := relay.Flush(context.Background())
	if err == nil {
		t.Fatal("expected publish error")
	}
	if n != 1 {
		t.Errorf("published before failure = %d, want 1", n)
	}

	// The failed event and the ones after it are retried in order.
	n, err = relay.Flush(context.Background())
	if err != nil {
		t.Fatalf("retry Flush failed: %v", err)
	}
	if n != 2 {
		t.Errorf("published on retry = %d, want 2", n)
	}
	got := pub.types()
	if got[1] != models.EventPayoutOpened || got[2] != models.EventSettled {
		t.Errorf("retry order = %v", got)
	}
}

func TestRelayRunStopsWithContext(t *testing.T) {
	store := newStore(t)
	seedEvents(t, store, models.EventBatchCommitted)

	pub := &recordingPublisher{}
	relay := NewRelay(store, pub, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.types()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if len(pub.types()) != 1 {
		t.Errorf("published = %d, want 1", len(pub.types()))
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("settlement", models.EventClaimed); got != "settlement.payout.claimed" {
		t.Errorf("Subject = %q", got)
	}
}
