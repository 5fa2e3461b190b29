package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/observability"
	"github.com/danmuck/continuityctl/internal/transport"
)

// ScanSession is one Idle -> Scanning -> (Idle | Faulted) run.
type ScanSession struct {
	id      string
	engine  *Engine
	handle  transport.ScanHandle
	cancel  context.CancelFunc
	started time.Time

	state atomic.Int32
	done  chan struct{}
	err   error
}

// StartScan opens a transport scan. One scan may be active per engine.
func (e *Engine) StartScan(ctx context.Context) (*ScanSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	if e.scan != nil {
		return nil, ErrSessionActive
	}

	sessCtx, cancel := context.WithCancel(ctx)
	handle, err := e.transport.Scan(sessCtx)
	if err != nil {
		cancel()
		e.report(err)
		e.remember(SessionInfo{
			ID:      uuid.NewString(),
			Kind:    KindScan,
			State:   Faulted,
			Started: time.Now(),
			Err:     err.Error(),
		})
		observability.RecordSessionFault(KindScan)
		logs.Errf("engine.Engine.StartScan err=%v", err)
		return nil, err
	}

	s := &ScanSession{
		id:      uuid.NewString(),
		engine:  e,
		handle:  handle,
		cancel:  cancel,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.setState(Scanning)
	e.scan = s

	queues := make([]chan transport.RawAdvertisement, e.cfg.DecodeWorkers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan transport.RawAdvertisement, workerQueue)
		wg.Add(1)
		go func(q <-chan transport.RawAdvertisement) {
			defer wg.Done()
			s.work(sessCtx, q)
		}(queues[i])
	}
	go s.run(sessCtx, queues, &wg)

	logs.Infof("engine.Engine.StartScan session=%s workers=%d vendor=0x%04x", s.id, len(queues), e.cfg.Vendor)
	return s, nil
}

func (s *ScanSession) ID() string { return s.id }

func (s *ScanSession) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has released the transport.
func (s *ScanSession) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns the faulting error, if any.
func (s *ScanSession) Wait() error {
	<-s.done
	return s.err
}

// Stop cancels the session and waits for the handle to be released.
func (s *ScanSession) Stop() error {
	s.cancel()
	<-s.done
	return s.err
}

func (s *ScanSession) info() SessionInfo {
	info := SessionInfo{ID: s.id, Kind: KindScan, State: s.State(), Started: s.started}
	select {
	case <-s.done:
		if s.err != nil {
			info.Err = s.err.Error()
		}
	default:
	}
	return info
}

func (s *ScanSession) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from != to {
		observability.RecordSessionTransition(KindScan, from.metricLabel(), to.metricLabel())
		if to == Faulted {
			observability.RecordSessionFault(KindScan)
		}
	}
}

func (s *ScanSession) run(ctx context.Context, queues []chan transport.RawAdvertisement, wg *sync.WaitGroup) {
	adverts := s.handle.Advertisements()
	var endErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case raw, ok := <-adverts:
			if !ok {
				endErr = s.handle.Err()
				break loop
			}
			q := queues[shard(raw.Address, len(queues))]
			select {
			case q <- raw:
			case <-ctx.Done():
				break loop
			}
		}
	}

	stopErr := s.handle.Stop()
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	s.cancel()

	e := s.engine
	if endErr != nil {
		if !transport.IsTransportError(endErr) {
			endErr = transport.NewError("scan", transport.KindFailed, endErr)
		}
		s.err = endErr
		s.setState(Faulted)
		e.report(endErr)
		logs.Errf("engine.ScanSession.run session=%s faulted err=%v", s.id, endErr)
	} else {
		if stopErr != nil {
			logs.Warnf("engine.ScanSession.run session=%s stop err=%v", s.id, stopErr)
		}
		s.setState(Idle)
		logs.Infof("engine.ScanSession.run session=%s stopped", s.id)
	}

	e.mu.Lock()
	if e.scan == s {
		e.scan = nil
	}
	info := s.info()
	if s.err != nil {
		info.Err = s.err.Error()
	}
	e.remember(info)
	e.mu.Unlock()
	close(s.done)
}

// work decodes advertisements for one address shard. Queued advertisements
// are discarded once the session is cancelled.
func (s *ScanSession) work(ctx context.Context, q <-chan transport.RawAdvertisement) {
	for raw := range q {
		if ctx.Err() != nil {
			continue
		}
		s.engine.handle(raw)
	}
}

func (e *Engine) handle(raw transport.RawAdvertisement) {
	observability.RecordScan(observability.ScanSeen)
	vendor, payload, err := continuity.SplitManufacturerData(raw.ManufacturerData)
	if err != nil || vendor != e.cfg.Vendor {
		observability.RecordScan(observability.ScanVendorFiltered)
		return
	}
	if e.dedup != nil {
		key := raw.Address.String() + string(raw.ManufacturerData)
		if e.dedup.Contains(key) {
			observability.RecordScan(observability.ScanDuplicate)
			return
		}
		e.dedup.Add(key, struct{}{})
	}

	frame, err := e.registry.DecodeFrame(payload)
	if err != nil {
		e.reportDecode(raw, err)
	}
	for _, merr := range frame.Malformed() {
		e.reportDecode(raw, merr)
	}
	if err != nil && len(frame.Records) == 0 {
		return
	}
	observability.RecordScan(observability.ScanDecoded)

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	e.publish(continuity.Event{
		Address:   raw.Address,
		RSSI:      raw.RSSI,
		Timestamp: ts,
		Vendor:    vendor,
		Frame:     frame,
		Registry:  e.registry,
	})
}

func (e *Engine) reportDecode(raw transport.RawAdvertisement, err error) {
	observability.RecordScan(observability.ScanDecodeError)
	level := logs.Debugf
	if errors.Is(err, continuity.ErrTruncatedRecord) {
		level = logs.Tracef
	}
	level("engine.Engine.handle address=%s err=%v", raw.Address, err)
	e.report(&DecodeError{Address: raw.Address, Payload: raw.ManufacturerData, Err: err})
}

func shard(addr continuity.Address, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(addr[:])
	return int(h.Sum32() % uint32(n))
}
