package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/danmuck/continuityctl/internal/testutil/testlog"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeMQTT struct {
	calls        []publishCall
	token        *fakeToken
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.calls = append(f.calls, publishCall{topic: topic, qos: qos, payload: payload.([]byte)})
	return f.token
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func TestMQTTTopicLayout(t *testing.T) {
	testlog.Start(t)
	client := &fakeMQTT{token: newToken(nil, true)}
	m := NewMQTT(client, "ble/", 1)
	if err := m.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.calls))
	}
	call := client.calls[0]
	if call.topic != "ble/airplay-source/C40102030405" || call.qos != 1 {
		t.Fatalf("unexpected publish %s qos=%d", call.topic, call.qos)
	}
	_ = m.Close()
	if !client.disconnected {
		t.Fatalf("expected disconnect on close")
	}
}

func TestMQTTPublishErrors(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("not connected")
	m := NewMQTT(&fakeMQTT{token: newToken(boom, true)}, "", 0)
	if err := m.Publish(context.Background(), testEvent()); !errors.Is(err, boom) {
		t.Fatalf("expected token error, got %v", err)
	}

	m = NewMQTT(&fakeMQTT{token: newToken(nil, false)}, "", 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Publish(ctx, testEvent()); !errors.Is(err, ErrMQTTTimeout) {
		t.Fatalf("expected ErrMQTTTimeout, got %v", err)
	}
}
