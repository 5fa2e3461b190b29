package sink

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"github.com/danmuck/continuityctl/internal/continuity"
	logs "github.com/danmuck/continuityctl/internal/logging"
)

const pubsubSource = "continuityctl"

// PubSub publishes event documents to a Pub/Sub topic.
type PubSub struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	ordering  bool
	owned     bool
}

// DialPubSub creates a client for project and wraps topic. Close also closes
// the client.
func DialPubSub(ctx context.Context, project, topic string, ordering bool) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("sink: pubsub client: %w", err)
	}
	p := NewPubSub(client, topic, ordering)
	p.owned = true
	return p, nil
}

// NewPubSub wraps topic on an existing client. ordering sets a per-address
// ordering key; the subscription must have ordering enabled.
func NewPubSub(client *pubsub.Client, topic string, ordering bool) *PubSub {
	pub := client.Publisher(topic)
	pub.PublishSettings.DelayThreshold = 50 * time.Millisecond
	pub.PublishSettings.Timeout = 10 * time.Second
	pub.EnableMessageOrdering = ordering
	logs.Infof("sink.NewPubSub topic=%s ordering=%v", topic, ordering)
	return &PubSub{client: client, publisher: pub, topic: topic, ordering: ordering}
}

func (p *PubSub) Name() string { return "pubsub" }

func (p *PubSub) Publish(ctx context.Context, ev continuity.Event) error {
	doc := NewDocument(ev)
	b, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("sink: encode event: %w", err)
	}
	msg := &pubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"source":  pubsubSource,
			"type":    doc.Family(),
			"address": doc.Address,
		},
	}
	if p.ordering {
		msg.OrderingKey = doc.Address
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if p.ordering {
			p.publisher.ResumePublish(doc.Address)
		}
		return fmt.Errorf("sink: pubsub publish: %w", err)
	}
	logs.Tracef("sink.PubSub.Publish topic=%s id=%s bytes=%d", p.topic, id, len(b))
	return nil
}

func (p *PubSub) Close() error {
	p.publisher.Stop()
	if p.owned {
		return p.client.Close()
	}
	return nil
}
