// Package identity owns the ephemeral advertising address and contact digests.
//
// The current identity is an immutable snapshot behind an atomic pointer.
// Writers (Rotate, SetContacts) are serialized; readers never lock and never
// observe a partially written address.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/observability"
)

const (
	DefaultInterval    = 15 * time.Minute
	defaultMaxAttempts = 8
)

var ErrIdentityUnavailable = errors.New("identity: randomness unavailable")

// Identity is one address generation.
type Identity struct {
	Address  continuity.Address
	Rotated  time.Time
	Interval time.Duration
	Digests  []continuity.Digest
}

type Options struct {
	Interval time.Duration
	Rand     io.Reader
	Clock    func() time.Time
	// MaxAttempts bounds regeneration of rejected addresses per rotation.
	MaxAttempts int
}

type Manager struct {
	current atomic.Pointer[Identity]
	writeMu sync.Mutex

	rand        io.Reader
	clock       func() time.Time
	interval    time.Duration
	maxAttempts int
}

// New builds a manager and performs the initial rotation.
func New(opts Options) (*Manager, error) {
	m := &Manager{
		rand:        opts.Rand,
		clock:       opts.Clock,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
	}
	if m.rand == nil {
		m.rand = rand.Reader
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.interval == 0 {
		m.interval = DefaultInterval
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	if _, err := m.Rotate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the active snapshot.
func (m *Manager) Current() Identity {
	return *m.current.Load()
}

func (m *Manager) Interval() time.Duration {
	return m.interval
}

// Rotate replaces the address. On failure the previous identity stays current.
func (m *Manager) Rotate() (Identity, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	prev := m.current.Load()
	addr, err := m.generate(prev)
	observability.RecordRotation(err == nil)
	if err != nil {
		if prev != nil {
			logs.Warnf("identity.Manager.Rotate kept=%s err=%v", prev.Address, err)
			return *prev, err
		}
		return Identity{}, err
	}
	next := &Identity{
		Address:  addr,
		Rotated:  m.clock(),
		Interval: m.interval,
	}
	if prev != nil {
		next.Digests = prev.Digests
	}
	m.current.Store(next)
	logs.Debugf("identity.Manager.Rotate address=%s", addr)
	return *next, nil
}

// DigestFor hashes id to the wire digest width. The pre-image is not retained.
func (m *Manager) DigestFor(id []byte) continuity.Digest {
	return continuity.HashIdentifier(id)
}

// ContactDigests returns a copy of the current contact digests.
func (m *Manager) ContactDigests() []continuity.Digest {
	return append([]continuity.Digest(nil), m.Current().Digests...)
}

// SetContacts replaces the digest cache of the current identity.
func (m *Manager) SetContacts(ids ...[]byte) {
	digests := make([]continuity.Digest, 0, len(ids))
	for _, id := range ids {
		digests = append(digests, continuity.HashIdentifier(id))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	next := *m.current.Load()
	next.Digests = digests
	m.current.Store(&next)
	logs.Debugf("identity.Manager.SetContacts count=%d", len(digests))
}

// Run rotates on the configured interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = m.Rotate()
		}
	}
}

func (m *Manager) generate(prev *Identity) (continuity.Address, error) {
	var addr continuity.Address
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if _, err := io.ReadFull(m.rand, addr[:]); err != nil {
			return continuity.Address{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
		}
		addr[0] |= 0xC0
		if !validRandomPart(addr) {
			continue
		}
		if prev != nil && prev.Address == addr {
			continue
		}
		return addr, nil
	}
	return continuity.Address{}, fmt.Errorf("%w: no usable address after %d attempts", ErrIdentityUnavailable, m.maxAttempts)
}

// validRandomPart rejects static random addresses whose random bits are all
// zero or all one.
func validRandomPart(addr continuity.Address) bool {
	zero, ones := addr[0]&0x3F == 0, addr[0]&0x3F == 0x3F
	for _, b := range addr[1:] {
		zero = zero && b == 0x00
		ones = ones && b == 0xFF
	}
	return !zero && !ones
}
