package engine

import (
	"sync"
	"sync/atomic"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/observability"
)

// Subscription receives decoded events. Delivery never blocks the engine;
// events that do not fit the buffer are dropped and counted.
type Subscription struct {
	C <-chan continuity.Event

	ch      chan continuity.Event
	engine  *Engine
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Subscribe registers a subscriber. On a closed engine the returned
// subscription is already closed.
func (e *Engine) Subscribe() *Subscription {
	ch := make(chan continuity.Event, e.cfg.SubscriberBuffer)
	s := &Subscription{C: ch, ch: ch, engine: e}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.closed {
		s.closed = true
		close(ch)
		return s
	}
	e.subs[s] = struct{}{}
	return s
}

func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close is idempotent.
func (s *Subscription) Close() {
	s.engine.subMu.Lock()
	delete(s.engine.subs, s)
	s.engine.subMu.Unlock()
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(ev continuity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
		observability.RecordDelivery(true)
	default:
		s.dropped.Add(1)
		observability.RecordDelivery(false)
	}
}

func (e *Engine) publish(ev continuity.Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for s := range e.subs {
		s.deliver(ev)
	}
}
