package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/testutil/testlog"
)

// switchReader serves from r until failed is set.
type switchReader struct {
	mu     sync.Mutex
	r      io.Reader
	failed bool
}

func (s *switchReader) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return 0, errors.New("entropy source closed")
	}
	return s.r.Read(p)
}

func (s *switchReader) fail() {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

func TestRotateYieldsDistinctStaticRandomAddresses(t *testing.T) {
	testlog.Start(t)
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	first, err := m.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	second, err := m.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if first.Address == second.Address {
		t.Fatalf("expected distinct addresses, got %s twice", first.Address)
	}
	for _, id := range []Identity{first, second} {
		if !id.Address.IsStaticRandom() {
			t.Fatalf("expected static random address, got %s", id.Address)
		}
	}
	if m.Current().Address != second.Address {
		t.Fatalf("expected current %s, got %s", second.Address, m.Current().Address)
	}
}

func TestRotateFailureKeepsPreviousAddress(t *testing.T) {
	testlog.Start(t)
	src := &switchReader{r: bytes.NewReader([]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})}
	m, err := New(Options{Rand: src})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	before := m.Current()
	if before.Address != (continuity.Address{0xD1, 0x22, 0x33, 0x44, 0x55, 0x66}) {
		t.Fatalf("unexpected initial address %s", before.Address)
	}

	src.fail()
	kept, err := m.Rotate()
	if !errors.Is(err, ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
	if kept.Address != before.Address || m.Current().Address != before.Address {
		t.Fatalf("expected previous address to stay current, got %s", m.Current().Address)
	}
}

func TestNewFailsWithoutRandomness(t *testing.T) {
	testlog.Start(t)
	_, err := New(Options{Rand: bytes.NewReader(nil)})
	if !errors.Is(err, ErrIdentityUnavailable) {
		t.Fatalf("expected ErrIdentityUnavailable, got %v", err)
	}
}

func TestRotateRejectsDegenerateAndRepeatedAddresses(t *testing.T) {
	testlog.Start(t)
	seq := []byte{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // random part all zero
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // all one
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, // repeat of current
		0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}
	m, err := New(Options{Rand: bytes.NewReader(seq)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if got := m.Current().Address; got != (continuity.Address{0xC1, 0x02, 0x03, 0x04, 0x05, 0x06}) {
		t.Fatalf("unexpected first usable address %s", got)
	}
	next, err := m.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.Address != (continuity.Address{0xCA, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}) {
		t.Fatalf("unexpected rotated address %s", next.Address)
	}
}

func TestSnapshotSurvivesRotation(t *testing.T) {
	testlog.Start(t)
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	snap := m.Current()
	held := snap.Address
	if _, err := m.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if snap.Address != held {
		t.Fatalf("snapshot mutated by rotation")
	}
}

func TestSetContactsStoresDigestsOnly(t *testing.T) {
	testlog.Start(t)
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.SetContacts([]byte("abc"), []byte("+15550100"))
	id := m.Current()
	if len(id.Digests) != 2 || id.Digests[0] != (continuity.Digest{0xBA, 0x78}) {
		t.Fatalf("unexpected digests %v", id.Digests)
	}
	if m.DigestFor([]byte("abc")) != id.Digests[0] {
		t.Fatalf("expected DigestFor to match stored digest")
	}
	rotated, err := m.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if len(rotated.Digests) != 2 {
		t.Fatalf("expected digests to carry across rotation, got %v", rotated.Digests)
	}
}

func TestRunRotatesUntilCancelled(t *testing.T) {
	testlog.Start(t)
	m, err := New(Options{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	start := m.Current().Address

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for m.Current().Address == start {
		if time.Now().After(deadline) {
			t.Fatalf("expected rotation within deadline")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil from Run, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestContactDigestsReturnsCopy(t *testing.T) {
	testlog.Start(t)
	m, err := New(Options{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.SetContacts([]byte("abc"))
	got := m.ContactDigests()
	if len(got) != 1 || got[0] != (continuity.Digest{0xBA, 0x78}) {
		t.Fatalf("expected [ba78], got %v", got)
	}
	got[0] = continuity.Digest{}
	if again := m.ContactDigests(); again[0] != (continuity.Digest{0xBA, 0x78}) {
		t.Fatalf("expected stored digest unchanged, got %v", again[0])
	}
}
