package utilities

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type EventHandler func(interface{})

// EventBus fans published events out to subscribers. Handlers run on their
// own goroutine; a panicking handler is logged and does not affect others.
type EventBus struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]EventHandler),
	}
}

func (eb *EventBus) Subscribe(event string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[event] = append(eb.handlers[event], handler)
}

// Publish is a no-op on a nil bus so callers can run without one.
func (eb *EventBus) Publish(event string, data interface{}) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, handler := range eb.handlers[event] {
		eb.wg.Add(1)
		go func(h EventHandler) {
			defer eb.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("event", event).Interface("panic", r).Msg("event handler panicked")
				}
			}()
			h(data)
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (eb *EventBus) Wait() {
	if eb == nil {
		return
	}
	eb.wg.Wait()
}
