package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
	"github.com/danmuck/continuityctl/internal/identity"
	"github.com/danmuck/continuityctl/internal/sink"
	"github.com/danmuck/continuityctl/internal/testutil/testlog"
	"github.com/danmuck/continuityctl/internal/transport/memtransport"
)

func newTestServer(t *testing.T, opts ...memtransport.Option) (*Server, *engine.Engine, *memtransport.Transport, *sink.Ring) {
	t.Helper()
	ids, err := identity.New(identity.Options{Interval: -1})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	tr := memtransport.New(opts...)
	eng := engine.New(tr, messages.NewRegistry(), ids, engine.DefaultConfig())
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	ring := sink.NewRing(8)
	return New(eng, ids, ring, Options{}), eng, tr, ring
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s, _, _, _ := newTestServer(t)

	if rr := do(t, s, http.MethodGet, "/health", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rr.Code)
	}
	s.SetReady(true)
	if rr := do(t, s, http.MethodGet, "/ready", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after ready, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/metrics", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rr.Code)
	}
}

func TestAdvertiseLifecycle(t *testing.T) {
	testlog.Start(t)
	s, eng, tr, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/advertise", AdvertiseRequest{Family: "airplay-source", Params: map[string]string{"flags": "0x01"}})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp AdvertiseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Payload != "4c000a0101" {
		t.Fatalf("expected payload 4c000a0101, got %s", resp.Payload)
	}
	if got := tr.Advertised(); len(got) != 1 || !got[0].Active {
		t.Fatalf("expected one active advertisement, got %+v", got)
	}

	rr = do(t, s, http.MethodGet, "/sessions", nil)
	var sessions struct {
		Sessions []engine.SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].ID != resp.ID {
		t.Fatalf("expected session %s listed, got %+v", resp.ID, sessions.Sessions)
	}

	if rr := do(t, s, http.MethodDelete, "/advertise/"+resp.ID, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on stop, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, s, http.MethodDelete, "/advertise/"+resp.ID, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second stop, got %d", rr.Code)
	}
	for _, info := range eng.Sessions() {
		if info.ID == resp.ID && info.State != engine.Idle {
			t.Fatalf("expected stopped session idle, got %s", info.State)
		}
	}
}

func TestAdvertiseRejections(t *testing.T) {
	testlog.Start(t)
	s, _, tr, _ := newTestServer(t, memtransport.WithMaxPayloadLen(10))

	if rr := do(t, s, http.MethodPost, "/advertise", AdvertiseRequest{Family: "handoff"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown family, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/advertise", AdvertiseRequest{Family: "airplay-source", Params: map[string]string{"bogus": "1"}}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown param, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/advertise", AdvertiseRequest{Family: "airplay-source", Duration: "later"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad duration, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/advertise", AdvertiseRequest{Family: "airdrop"}); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize payload, got %d", rr.Code)
	}
	if _, adverts := tr.Calls(); adverts != 0 {
		t.Fatalf("expected transport untouched, got %d advertise calls", adverts)
	}
}

func TestEventsAndRotate(t *testing.T) {
	testlog.Start(t)
	s, _, _, ring := newTestServer(t)

	addr := continuity.Address{0xC2, 0x00, 0x00, 0x00, 0x00, 0x01}
	_ = ring.Publish(context.Background(), continuity.Event{
		Address:   addr,
		RSSI:      -40,
		Timestamp: time.UnixMilli(1700000000000),
		Vendor:    continuity.VendorApple,
		Frame:     continuity.Frame{Records: []continuity.Record{continuity.NewRecord(&messages.Streaming{Role: messages.RoleSource})}},
	})
	rr := do(t, s, http.MethodGet, "/events", nil)
	var events struct {
		Events []sink.Document `json:"events"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) != 1 || events.Events[0].Address != addr.String() {
		t.Fatalf("expected one event for %s, got %+v", addr, events.Events)
	}

	before := s.ids.Current().Address
	rr = do(t, s, http.MethodPost, "/identity/rotate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on rotate, got %d", rr.Code)
	}
	if s.ids.Current().Address == before {
		t.Fatalf("expected address to change from %s", before)
	}
}
