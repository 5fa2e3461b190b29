package sink

import (
	"context"
	"sync"

	"github.com/danmuck/continuityctl/internal/continuity"
)

// Ring keeps the most recent event documents in memory for status queries.
type Ring struct {
	mu   sync.Mutex
	docs []Document
	next int
	full bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{docs: make([]Document, size)}
}

func (r *Ring) Name() string { return "ring" }

func (r *Ring) Publish(_ context.Context, ev continuity.Event) error {
	doc := NewDocument(ev)
	r.mu.Lock()
	r.docs[r.next] = doc
	r.next = (r.next + 1) % len(r.docs)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Recent returns stored documents oldest first.
func (r *Ring) Recent() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Document(nil), r.docs[:r.next]...)
	}
	out := make([]Document, 0, len(r.docs))
	out = append(out, r.docs[r.next:]...)
	return append(out, r.docs[:r.next]...)
}

func (r *Ring) Close() error { return nil }
