package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
)

const (
	KindScan      = "scan"
	KindAdvertise = "advertise"
)

// SessionInfo is a status snapshot of one session.
type SessionInfo struct {
	ID      string              `json:"id"`
	Kind    string              `json:"kind"`
	State   State               `json:"state"`
	Started time.Time           `json:"started"`
	Address *continuity.Address `json:"address,omitempty"`
	Err     string              `json:"error,omitempty"`
}

// Sessions returns active sessions followed by recently finished ones,
// newest first within each group.
func (e *Engine) Sessions() []SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := make([]SessionInfo, 0, len(e.adverts)+1)
	if e.scan != nil {
		active = append(active, e.scan.info())
	}
	for _, a := range e.adverts {
		active = append(active, a.info())
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Started.After(active[j].Started) })
	for i := len(e.recent) - 1; i >= 0; i-- {
		active = append(active, e.recent[i])
	}
	return active
}

// remember keeps a bounded history of finished sessions. Callers hold e.mu.
func (e *Engine) remember(info SessionInfo) {
	e.recent = append(e.recent, info)
	if len(e.recent) > recentSessions {
		e.recent = e.recent[len(e.recent)-recentSessions:]
	}
}

// StopAdvertise stops the running advertise session with id.
func (e *Engine) StopAdvertise(ctx context.Context, id string) error {
	e.mu.Lock()
	s, ok := e.adverts[id]
	e.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.Stop(ctx)
}

// Close stops every session and closes all subscriptions.
func (e *Engine) Close(ctx context.Context) error {
	e.subMu.Lock()
	if e.closed {
		e.subMu.Unlock()
		return nil
	}
	e.closed = true
	subs := make([]*Subscription, 0, len(e.subs))
	for s := range e.subs {
		subs = append(subs, s)
	}
	e.subs = make(map[*Subscription]struct{})
	e.subMu.Unlock()

	e.mu.Lock()
	scan := e.scan
	adverts := make([]*AdvertiseSession, 0, len(e.adverts))
	for _, a := range e.adverts {
		adverts = append(adverts, a)
	}
	e.mu.Unlock()

	var errs []error
	if scan != nil {
		if err := scan.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, a := range adverts {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range subs {
		s.close()
	}
	logs.Infof("engine.Engine.Close subscribers=%d advertisers=%d", len(subs), len(adverts))
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	return e.closed
}
