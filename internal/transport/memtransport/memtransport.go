// Package memtransport is an in-memory radio used by tests and capture replay.
package memtransport

import (
	"context"
	"errors"
	"sync"

	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/transport"
)

var ErrScanStopped = errors.New("memtransport: scan stopped")

const scanBuffer = 64

type Option func(*Transport)

// WithMaxPayloadLen overrides transport.DefaultMaxPayloadLen.
func WithMaxPayloadLen(n int) Option {
	return func(t *Transport) { t.maxPayload = n }
}

// WithReplay feeds advs to each new scan and then ends it cleanly.
func WithReplay(advs []transport.RawAdvertisement) Option {
	return func(t *Transport) { t.replay = advs }
}

// Advertised is one accepted advertise request.
type Advertised struct {
	Request transport.AdvertiseRequest
	Active  bool
}

// Transport records advertise requests and delivers injected advertisements.
type Transport struct {
	mu          sync.Mutex
	maxPayload  int
	replay      []transport.RawAdvertisement
	scans       map[*scanHandle]struct{}
	advertised  []*Advertised
	scanErr     error
	advertErr   error
	scanStarts  int
	advertCalls int
}

func New(opts ...Option) *Transport {
	t := &Transport{
		maxPayload: transport.DefaultMaxPayloadLen,
		scans:      make(map[*scanHandle]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) MaxPayloadLen() int {
	return t.maxPayload
}

// FailScans makes subsequent Scan calls return err.
func (t *Transport) FailScans(err error) {
	t.mu.Lock()
	t.scanErr = err
	t.mu.Unlock()
}

// FailAdvertise makes subsequent Advertise calls return err.
func (t *Transport) FailAdvertise(err error) {
	t.mu.Lock()
	t.advertErr = err
	t.mu.Unlock()
}

func (t *Transport) Scan(ctx context.Context) (transport.ScanHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanStarts++
	if t.scanErr != nil {
		return nil, t.scanErr
	}
	h := &scanHandle{
		owner: t,
		ch:    make(chan transport.RawAdvertisement, scanBuffer),
		done:  make(chan struct{}),
	}
	t.scans[h] = struct{}{}
	if t.replay != nil {
		go h.replay(ctx, t.replay)
	}
	logs.Debugf("memtransport.Transport.Scan active=%d", len(t.scans))
	return h, nil
}

func (t *Transport) Advertise(ctx context.Context, req transport.AdvertiseRequest) (transport.AdvertiseHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertCalls++
	if t.advertErr != nil {
		return nil, t.advertErr
	}
	payload := make([]byte, len(req.Payload))
	copy(payload, req.Payload)
	req.Payload = payload
	rec := &Advertised{Request: req, Active: true}
	t.advertised = append(t.advertised, rec)
	return &advertiseHandle{owner: t, rec: rec}, nil
}

// Emit delivers adv to every active scan, blocking until each accepts it or
// ctx is done.
func (t *Transport) Emit(ctx context.Context, adv transport.RawAdvertisement) error {
	for _, h := range t.activeScans() {
		if err := h.send(ctx, adv); err != nil && !errors.Is(err, ErrScanStopped) {
			return err
		}
	}
	return nil
}

// Fail ends every active scan with err.
func (t *Transport) Fail(err error) {
	for _, h := range t.activeScans() {
		h.finish(err)
	}
}

// Advertised returns copies of every accepted advertise request in order.
func (t *Transport) Advertised() []Advertised {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Advertised, 0, len(t.advertised))
	for _, a := range t.advertised {
		out = append(out, *a)
	}
	return out
}

// Calls reports how many Scan and Advertise calls reached the transport.
func (t *Transport) Calls() (scans, adverts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scanStarts, t.advertCalls
}

func (t *Transport) ActiveScans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.scans)
}

func (t *Transport) activeScans() []*scanHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*scanHandle, 0, len(t.scans))
	for h := range t.scans {
		out = append(out, h)
	}
	return out
}

func (t *Transport) release(h *scanHandle) {
	t.mu.Lock()
	delete(t.scans, h)
	t.mu.Unlock()
}

type scanHandle struct {
	owner *Transport
	ch    chan transport.RawAdvertisement
	done  chan struct{}

	sendMu sync.Mutex
	once   sync.Once
	err    error
}

func (h *scanHandle) Advertisements() <-chan transport.RawAdvertisement {
	return h.ch
}

func (h *scanHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *scanHandle) Stop() error {
	h.finish(nil)
	return nil
}

func (h *scanHandle) send(ctx context.Context, adv transport.RawAdvertisement) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	select {
	case <-h.done:
		return ErrScanStopped
	default:
	}
	select {
	case h.ch <- adv:
		return nil
	case <-h.done:
		return ErrScanStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish closes done first so a blocked send returns, then closes the channel
// once no send is in flight.
func (h *scanHandle) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
		h.sendMu.Lock()
		close(h.ch)
		h.sendMu.Unlock()
		h.owner.release(h)
	})
}

func (h *scanHandle) replay(ctx context.Context, advs []transport.RawAdvertisement) {
	for _, adv := range advs {
		if err := h.send(ctx, adv); err != nil {
			h.finish(nil)
			return
		}
	}
	logs.Debugf("memtransport.scanHandle.replay delivered=%d", len(advs))
	h.finish(nil)
}

type advertiseHandle struct {
	owner *Transport
	rec   *Advertised
}

func (h *advertiseHandle) Stop(context.Context) error {
	h.owner.mu.Lock()
	h.rec.Active = false
	h.owner.mu.Unlock()
	return nil
}
