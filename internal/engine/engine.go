// Package engine runs scan and advertise sessions over a transport.
//
// Scan path: transport -> vendor filter -> dedup -> sharded decode workers ->
// subscribers. Advertise path: records -> frame -> size check -> transport.
// Only transport failures fault a session; decode failures are reported to
// Config.OnError and scanning continues.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/identity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/transport"
)

var (
	ErrPayloadTooLarge    = errors.New("engine: payload too large")
	ErrSessionActive      = errors.New("engine: scan session already active")
	ErrEmptyAdvertisement = errors.New("engine: advertisement has no records")
	ErrSessionNotFound    = errors.New("engine: session not found")
	ErrEngineClosed       = errors.New("engine: closed")
)

// DecodeError reports one advertisement that did not decode cleanly.
type DecodeError struct {
	Address continuity.Address
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("engine: decode address=%s: %v", e.Address, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type State int32

const (
	Idle State = iota
	Scanning
	Advertising
	Faulted
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Advertising:
		return "advertising"
	case Faulted:
		return "faulted"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Scanning, Advertising, Faulted} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("engine: unknown state %q", b)
}

// metricLabel leaves idle and faulted sessions out of the session gauge.
// Faults go to the session fault counter instead.
func (s State) metricLabel() string {
	if s == Idle || s == Faulted {
		return ""
	}
	return s.String()
}

type Config struct {
	Vendor            uint16
	DecodeWorkers     int
	SubscriberBuffer  int
	DedupWindow       time.Duration
	DedupSize         int
	AdvertiseInterval time.Duration
	// OnError receives decode and transport errors. It runs on engine
	// goroutines and must not block.
	OnError func(error)
}

func DefaultConfig() Config {
	return Config{
		Vendor:            continuity.VendorApple,
		DecodeWorkers:     1,
		SubscriberBuffer:  64,
		DedupSize:         1024,
		AdvertiseInterval: 100 * time.Millisecond,
	}
}

const (
	workerQueue    = 64
	recentSessions = 16
	stopTimeout    = 5 * time.Second
)

type Engine struct {
	transport transport.Transport
	registry  *continuity.Registry
	identity  *identity.Manager
	cfg       Config
	dedup     *expirable.LRU[string, struct{}]

	subMu  sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	mu      sync.Mutex
	scan    *ScanSession
	adverts map[string]*AdvertiseSession
	recent  []SessionInfo
}

// New builds an engine. reg must be sealed or otherwise no longer mutated.
func New(t transport.Transport, reg *continuity.Registry, ids *identity.Manager, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.DecodeWorkers <= 0 {
		cfg.DecodeWorkers = def.DecodeWorkers
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if cfg.AdvertiseInterval <= 0 {
		cfg.AdvertiseInterval = def.AdvertiseInterval
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = def.DedupSize
	}
	e := &Engine{
		transport: t,
		registry:  reg,
		identity:  ids,
		cfg:       cfg,
		subs:      make(map[*Subscription]struct{}),
		adverts:   make(map[string]*AdvertiseSession),
	}
	if cfg.DedupWindow > 0 {
		e.dedup = expirable.NewLRU[string, struct{}](cfg.DedupSize, nil, cfg.DedupWindow)
	}
	logs.Debugf("engine.New vendor=0x%04x workers=%d dedup=%s", cfg.Vendor, cfg.DecodeWorkers, cfg.DedupWindow)
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Registry() *continuity.Registry {
	return e.registry
}

func (e *Engine) report(err error) {
	if err == nil || e.cfg.OnError == nil {
		return
	}
	e.cfg.OnError(err)
}
