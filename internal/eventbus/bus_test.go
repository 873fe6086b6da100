package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fullex26/smsrelay/pkg/models"
)

func TestNew(t *testing.T) {
	bus := New()
	if bus == nil {
		t.Fatal("New() returned nil")
	}
}

func TestSubscribe_And_Publish(t *testing.T) {
	bus := New()
	received := make(chan models.Record, 1)

	bus.Subscribe(func(r models.Record) {
		received <- r
	})

	want := models.Record{ID: "rec-1", Kind: models.RecordRun, State: "completed"}
	bus.Publish(want)

	select {
	case got := <-received:
		if got.ID != want.ID || got.State != want.State {
			t.Errorf("received record = %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestPublish_MultipleSubscribers(t *testing.T) {
	bus := New()
	var count atomic.Int32

	for range 3 {
		bus.Subscribe(func(r models.Record) {
			count.Add(1)
		})
	}

	bus.Publish(models.Record{ID: "multi"})
	bus.Drain()

	if count.Load() != 3 {
		t.Fatalf("only %d/3 subscribers received the record", count.Load())
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := New()
	// Should not panic
	bus.Publish(models.Record{ID: "no-subs"})
	bus.Drain()
}

func TestPublish_DeliveryOutcome(t *testing.T) {
	bus := New()
	received := make(chan models.Record, 1)

	bus.Subscribe(func(r models.Record) {
		received <- r
	})

	want := models.Record{
		ID:    "d-1",
		Kind:  models.RecordDelivery,
		RunID: "run-1",
		Outcome: &models.DispatchOutcome{
			RunID: "run-1", Sink: "gotify", Success: true, StatusCode: 200,
		},
	}
	bus.Publish(want)

	select {
	case got := <-received:
		if got.Outcome == nil || *got.Outcome != *want.Outcome {
			t.Errorf("outcome mismatch:\ngot  %+v\nwant %+v", got.Outcome, want.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestSubscribe_ConcurrentSafety(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup

	// Concurrent subscribes and publishes
	for i := range 10 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			bus.Subscribe(func(r models.Record) {})
			bus.Publish(models.Record{ID: "concurrent"})
		}(i)
	}

	wg.Wait()
	bus.Drain()
}
