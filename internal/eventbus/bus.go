package eventbus

import (
	"sync"

	"github.com/Fullex26/smsrelay/pkg/models"
)

// Handler is a function that receives records
type Handler func(rec models.Record)

// Bus is a simple in-process pub/sub bus for run and delivery records
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
}

// New creates a new bus
func New() *Bus {
	return &Bus{
		handlers: make([]Handler, 0),
	}
}

// Subscribe registers a handler for all records
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish sends a record to all subscribers.
// Records are dispatched in goroutines to prevent blocking
func (b *Bus) Publish(rec models.Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(rec)
		}(h)
	}
}

// Drain waits for every handler started so far to return
func (b *Bus) Drain() {
	b.wg.Wait()
}
