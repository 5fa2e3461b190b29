// Package radio adapts tinygo.org/x/bluetooth to the transport boundary.
//
// On Linux the adapter talks to BlueZ over D-Bus. BlueZ chooses the
// advertising address itself; the requested address is kept on the handle for
// reporting only.
package radio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/transport"
)

const scanBuffer = 256

var ErrAdvertiseActive = errors.New("radio: adapter already advertising")

type Options struct {
	// LocalName is included in outgoing advertisements when set.
	LocalName     string
	MaxPayloadLen int
}

// Transport drives one host adapter. The adapter supports one scan and one
// advertisement at a time.
type Transport struct {
	adapter *bluetooth.Adapter
	opts    Options

	mu          sync.Mutex
	scanning    bool
	advertising bool
}

// Open enables the default adapter.
func Open(opts Options) (*Transport, error) {
	if opts.MaxPayloadLen <= 0 {
		opts.MaxPayloadLen = transport.DefaultMaxPayloadLen
	}
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, classify("enable", transport.KindAdapterUnavailable, err)
	}
	logs.Infof("radio.Open adapter=default max_payload=%d", opts.MaxPayloadLen)
	return &Transport{adapter: adapter, opts: opts}, nil
}

func (t *Transport) MaxPayloadLen() int {
	return t.opts.MaxPayloadLen
}

func (t *Transport) Scan(ctx context.Context) (transport.ScanHandle, error) {
	t.mu.Lock()
	if t.scanning {
		t.mu.Unlock()
		return nil, transport.NewError("scan", transport.KindUnsupported, errors.New("scan already active"))
	}
	t.scanning = true
	t.mu.Unlock()

	h := &scanHandle{
		owner: t,
		ch:    make(chan transport.RawAdvertisement, scanBuffer),
		done:  make(chan struct{}),
	}
	go h.run()
	return h, nil
}

func (t *Transport) Advertise(ctx context.Context, req transport.AdvertiseRequest) (transport.AdvertiseHandle, error) {
	vendor, data, err := continuity.SplitManufacturerData(req.Payload)
	if err != nil {
		return nil, transport.NewError("advertise", transport.KindFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advertising {
		return nil, transport.NewError("advertise", transport.KindUnsupported, ErrAdvertiseActive)
	}

	adv := t.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName: t.opts.LocalName,
		Interval:  bluetooth.NewDuration(req.Interval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: vendor, Data: data},
		},
	})
	if err != nil {
		return nil, classify("advertise.configure", transport.KindFailed, err)
	}
	if err := adv.Start(); err != nil {
		return nil, classify("advertise.start", transport.KindFailed, err)
	}
	t.advertising = true
	logs.Debugf("radio.Transport.Advertise requested_address=%s interval=%s len=%d", req.Address, req.Interval, len(req.Payload))
	return &advertiseHandle{owner: t, adv: adv, address: req.Address}, nil
}

type scanHandle struct {
	owner *Transport
	ch    chan transport.RawAdvertisement
	done  chan struct{}

	mu      sync.Mutex
	stopped bool
	err     error
}

func (h *scanHandle) Advertisements() <-chan transport.RawAdvertisement {
	return h.ch
}

func (h *scanHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// run blocks in Adapter.Scan until StopScan or a stack failure.
func (h *scanHandle) run() {
	defer func() {
		close(h.ch)
		close(h.done)
		h.owner.mu.Lock()
		h.owner.scanning = false
		h.owner.mu.Unlock()
	}()
	err := h.owner.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		raw, ok := toRaw(res)
		if !ok {
			return
		}
		// The callback runs on the stack's goroutine; a full buffer drops.
		select {
		case h.ch <- raw:
		default:
			logs.Tracef("radio.scanHandle.run dropped address=%s", raw.Address)
		}
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil && !h.stopped {
		h.err = classify("scan", transport.KindFailed, err)
	}
}

func (h *scanHandle) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	h.mu.Unlock()
	if err := h.owner.adapter.StopScan(); err != nil {
		return classify("scan.stop", transport.KindFailed, err)
	}
	<-h.done
	return nil
}

func toRaw(res bluetooth.ScanResult) (transport.RawAdvertisement, bool) {
	if res.AdvertisementPayload == nil {
		return transport.RawAdvertisement{}, false
	}
	elems := res.ManufacturerData()
	if len(elems) == 0 {
		return transport.RawAdvertisement{}, false
	}
	addr, err := continuity.ParseAddress(res.Address.String())
	if err != nil {
		return transport.RawAdvertisement{}, false
	}
	// The stack strips the company id; restore the wire form.
	el := elems[0]
	return transport.RawAdvertisement{
		Address:          addr,
		RSSI:             res.RSSI,
		ManufacturerData: continuity.JoinManufacturerData(el.CompanyID, el.Data),
		Timestamp:        time.Now(),
	}, true
}

type advertiseHandle struct {
	owner   *Transport
	adv     *bluetooth.Advertisement
	address continuity.Address
	once    sync.Once
	err     error
}

func (h *advertiseHandle) Stop(context.Context) error {
	h.once.Do(func() {
		if err := h.adv.Stop(); err != nil {
			h.err = classify("advertise.stop", transport.KindFailed, err)
		}
		h.owner.mu.Lock()
		h.owner.advertising = false
		h.owner.mu.Unlock()
	})
	return h.err
}

// classify maps stack error text onto transport kinds.
func classify(op string, fallback transport.ErrorKind, err error) *transport.Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "notpermitted"), strings.Contains(msg, "permission"), strings.Contains(msg, "notauthorized"):
		return transport.NewError(op, transport.KindPermissionDenied, err)
	case strings.Contains(msg, "notready"), strings.Contains(msg, "no such adapter"), strings.Contains(msg, "not powered"):
		return transport.NewError(op, transport.KindAdapterUnavailable, err)
	case strings.Contains(msg, "notsupported"), strings.Contains(msg, "not supported"):
		return transport.NewError(op, transport.KindUnsupported, err)
	}
	return transport.NewError(op, fallback, err)
}
