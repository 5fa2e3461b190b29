package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/observability"
	"github.com/danmuck/continuityctl/internal/transport"
)

type AdvertiseOptions struct {
	Records  []continuity.Record
	Messages []continuity.Message
	// Interval defaults to Config.AdvertiseInterval.
	Interval time.Duration
	// Address overrides the identity snapshot; FindMy records need their
	// key-derived address.
	Address *continuity.Address
	// Duration stops the session after the given time when positive.
	Duration time.Duration
}

// AdvertiseSession is one Idle -> Advertising -> (Idle | Faulted) run. Its
// address is fixed when the session is created.
type AdvertiseSession struct {
	id       string
	engine   *Engine
	handle   transport.AdvertiseHandle
	address  continuity.Address
	payload  []byte
	interval time.Duration
	started  time.Time

	state    atomic.Int32
	stopReq  chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// Advertise encodes the request and submits it to the transport. Oversize
// payloads fail with ErrPayloadTooLarge before the transport is touched.
// Transport failures are returned verbatim and are not retried. ctx bounds
// the lifetime of the session, not just the submission.
func (e *Engine) Advertise(ctx context.Context, opts AdvertiseOptions) (*AdvertiseSession, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	records := make([]continuity.Record, 0, len(opts.Records)+len(opts.Messages))
	records = append(records, opts.Records...)
	for _, m := range opts.Messages {
		records = append(records, continuity.NewRecord(m))
	}
	if len(records) == 0 {
		return nil, ErrEmptyAdvertisement
	}
	payload, err := e.registry.EncodeFrame(continuity.Frame{Records: records})
	if err != nil {
		observability.RecordAdvertise(observability.AdvertiseEncodeError)
		return nil, fmt.Errorf("engine: encode advertisement: %w", err)
	}
	md := continuity.JoinManufacturerData(e.cfg.Vendor, payload)
	if limit := e.transport.MaxPayloadLen(); len(md) > limit {
		observability.RecordAdvertise(observability.AdvertiseTooLarge)
		return nil, fmt.Errorf("%w: len=%d limit=%d", ErrPayloadTooLarge, len(md), limit)
	}

	var addr continuity.Address
	switch {
	case opts.Address != nil:
		addr = *opts.Address
	case e.identity != nil:
		addr = e.identity.Current().Address
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = e.cfg.AdvertiseInterval
	}

	s := &AdvertiseSession{
		id:       uuid.NewString(),
		engine:   e,
		address:  addr,
		payload:  md,
		interval: interval,
		started:  time.Now(),
		stopReq:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	handle, err := e.transport.Advertise(ctx, transport.AdvertiseRequest{
		Payload:  md,
		Interval: interval,
		Address:  addr,
	})
	if err != nil {
		s.err = err
		s.setState(Faulted)
		close(s.done)
		observability.RecordAdvertise(observability.AdvertiseTransportError)
		e.report(err)
		e.mu.Lock()
		e.remember(s.info())
		e.mu.Unlock()
		logs.Errf("engine.Engine.Advertise session=%s address=%s err=%v", s.id, addr, err)
		return nil, err
	}
	s.handle = handle

	// Close snapshots adverts under e.mu after marking the engine closed, so
	// a session inserted here is either seen by Close or never inserted.
	e.mu.Lock()
	if e.isClosed() {
		e.mu.Unlock()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := handle.Stop(stopCtx); err != nil {
			logs.Warnf("engine.Engine.Advertise session=%s release after close err=%v", s.id, err)
		}
		close(s.done)
		return nil, ErrEngineClosed
	}
	s.setState(Advertising)
	e.adverts[s.id] = s
	e.mu.Unlock()
	observability.RecordAdvertise(observability.AdvertiseStarted)

	go s.run(ctx, opts.Duration)
	logs.Infof("engine.Engine.Advertise session=%s address=%s interval=%s len=%d", s.id, addr, interval, len(md))
	return s, nil
}

func (s *AdvertiseSession) ID() string                  { return s.id }
func (s *AdvertiseSession) Address() continuity.Address { return s.address }
func (s *AdvertiseSession) Interval() time.Duration     { return s.interval }

// Payload returns the submitted manufacturer data including the vendor id.
func (s *AdvertiseSession) Payload() []byte {
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out
}

func (s *AdvertiseSession) State() State {
	return State(s.state.Load())
}

func (s *AdvertiseSession) Done() <-chan struct{} {
	return s.done
}

func (s *AdvertiseSession) Wait() error {
	<-s.done
	return s.err
}

// Stop ends the session and waits for the transport to release it.
func (s *AdvertiseSession) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopReq) })
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AdvertiseSession) run(ctx context.Context, d time.Duration) {
	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}
	reason := "stop"
	select {
	case <-ctx.Done():
		reason = "cancelled"
	case <-s.stopReq:
	case <-expired:
		reason = "expired"
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	e := s.engine
	if err := s.handle.Stop(stopCtx); err != nil {
		s.err = err
		s.setState(Faulted)
		e.report(err)
		logs.Errf("engine.AdvertiseSession.run session=%s stop err=%v", s.id, err)
	} else {
		s.setState(Idle)
		logs.Infof("engine.AdvertiseSession.run session=%s reason=%s", s.id, reason)
	}

	e.mu.Lock()
	delete(e.adverts, s.id)
	info := s.info()
	if s.err != nil {
		info.Err = s.err.Error()
	}
	e.remember(info)
	e.mu.Unlock()
	close(s.done)
}

func (s *AdvertiseSession) info() SessionInfo {
	addr := s.address
	info := SessionInfo{ID: s.id, Kind: KindAdvertise, State: s.State(), Started: s.started, Address: &addr}
	if s.State() == Faulted && s.err != nil {
		info.Err = s.err.Error()
	}
	return info
}

func (s *AdvertiseSession) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		observability.RecordSessionTransition(KindAdvertise, from.metricLabel(), to.metricLabel())
		if to == Faulted {
			observability.RecordSessionFault(KindAdvertise)
		}
	}
}
