package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
)

var ErrMQTTTimeout = errors.New("sink: mqtt publish timed out")

// MQTTClient is the subset of mqtt.Client used by MQTT.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOptions struct {
	Broker   string
	ClientID string
	Prefix   string
	QoS      byte
	Username string
	Password string
}

// MQTT publishes event documents to <prefix>/<family>/<address>.
type MQTT struct {
	client  MQTTClient
	prefix  string
	qos     byte
	timeout time.Duration
}

// DialMQTT connects to the broker, retrying with backoff until ctx is done.
func DialMQTT(ctx context.Context, opts MQTTOptions) (*MQTT, error) {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetAutoReconnect(true)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		logs.Warnf("sink.MQTT connection lost broker=%s err=%v", opts.Broker, err)
	}
	client := mqtt.NewClient(co)

	backoff := 500 * time.Millisecond
	for {
		token := client.Connect()
		if token.Wait() && token.Error() == nil {
			break
		}
		logs.Warnf("sink.DialMQTT broker=%s err=%v retry=%s", opts.Broker, token.Error(), backoff)
		select {
		case <-time.After(backoff):
			if backoff < 10*time.Second {
				backoff *= 2
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("sink: mqtt connect %s: %w", opts.Broker, ctx.Err())
		}
	}
	logs.Infof("sink.DialMQTT broker=%s client_id=%s", opts.Broker, opts.ClientID)
	return NewMQTT(client, opts.Prefix, opts.QoS), nil
}

func NewMQTT(client MQTTClient, prefix string, qos byte) *MQTT {
	if prefix == "" {
		prefix = "continuity"
	}
	return &MQTT{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos, timeout: 5 * time.Second}
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Topic(doc Document) string {
	return fmt.Sprintf("%s/%s/%s", m.prefix, doc.Family(), strings.ReplaceAll(doc.Address, ":", ""))
}

func (m *MQTT) Publish(ctx context.Context, ev continuity.Event) error {
	doc := NewDocument(ev)
	b, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("sink: encode event: %w", err)
	}
	token := m.client.Publish(m.Topic(doc), m.qos, false, b)
	timeout := m.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return ErrMQTTTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: mqtt publish: %w", err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
