package config

import (
	"github.com/danmuck/continuityctl/internal/engine"
	"github.com/danmuck/continuityctl/internal/identity"
	"github.com/danmuck/continuityctl/internal/sink"
)

func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		Vendor:            uint16(c.Engine.Vendor),
		DecodeWorkers:     c.Engine.DecodeWorkers,
		SubscriberBuffer:  c.Engine.SubscriberBuffer,
		DedupWindow:       c.Engine.DedupWindow.Duration,
		DedupSize:         c.Engine.DedupSize,
		AdvertiseInterval: c.Engine.AdvertiseInterval.Duration,
	}
}

// IdentityOptions maps a zero rotation interval to "never rotate".
func (c Config) IdentityOptions() identity.Options {
	interval := c.Identity.RotationInterval.Duration
	if interval == 0 {
		interval = -1
	}
	return identity.Options{Interval: interval}
}

// ContactIDs returns the configured contact identifiers as byte slices.
func (c Config) ContactIDs() [][]byte {
	out := make([][]byte, 0, len(c.Identity.Contacts))
	for _, id := range c.Identity.Contacts {
		out = append(out, []byte(id))
	}
	return out
}

func (c Config) MQTTOptions() sink.MQTTOptions {
	m := c.Sinks.MQTT
	return sink.MQTTOptions{
		Broker:   m.Broker,
		ClientID: m.ClientID,
		Prefix:   m.Topic,
		QoS:      byte(m.QoS),
		Username: m.Username,
		Password: m.Password,
	}
}
