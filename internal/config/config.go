// Package config loads continuityctl TOML files onto defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	TransportRadio  = "radio"
	TransportReplay = "replay"
)

// Duration decodes TOML strings such as "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Identity  IdentityConfig  `toml:"identity"`
	Transport TransportConfig `toml:"transport"`
	Server    ServerConfig    `toml:"server"`
	Sinks     SinksConfig     `toml:"sinks"`
}

type EngineConfig struct {
	Vendor            int      `toml:"vendor"`
	DecodeWorkers     int      `toml:"decode_workers"`
	SubscriberBuffer  int      `toml:"subscriber_buffer"`
	DedupWindow       Duration `toml:"dedup_window"`
	DedupSize         int      `toml:"dedup_size"`
	AdvertiseInterval Duration `toml:"advertise_interval"`
}

type IdentityConfig struct {
	RotationInterval Duration `toml:"rotation_interval"`
	// Contacts are identifiers hashed into airdrop digests. They are never
	// logged.
	Contacts []string `toml:"contacts"`
}

type TransportConfig struct {
	Kind          string `toml:"kind"`
	ReplayFile    string `toml:"replay_file"`
	MaxPayloadLen int    `toml:"max_payload_len"`
	LocalName     string `toml:"local_name"`
}

type ServerConfig struct {
	// Addr is empty when the status server is disabled.
	Addr         string   `toml:"addr"`
	CorsOrigins  []string `toml:"cors_origins"`
	RecentEvents int      `toml:"recent_events"`
}

type SinksConfig struct {
	Console ConsoleSink `toml:"console"`
	PubSub  PubSubSink  `toml:"pubsub"`
	Kafka   KafkaSink   `toml:"kafka"`
	MQTT    MQTTSink    `toml:"mqtt"`
}

type ConsoleSink struct {
	Enabled bool `toml:"enabled"`
	JSON    bool `toml:"json"`
	NoColor bool `toml:"no_color"`
}

type PubSubSink struct {
	Enabled  bool   `toml:"enabled"`
	Project  string `toml:"project"`
	Topic    string `toml:"topic"`
	Ordering bool   `toml:"ordering"`
}

type KafkaSink struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	DLQTopic string   `toml:"dlq_topic"`
}

type MQTTSink struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
	QoS      int    `toml:"qos"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func Default() Config {
	return Config{
		Engine: EngineConfig{
			Vendor:            int(continuity.VendorApple),
			DecodeWorkers:     1,
			SubscriberBuffer:  64,
			DedupSize:         1024,
			AdvertiseInterval: Duration{100 * time.Millisecond},
		},
		Identity: IdentityConfig{
			RotationInterval: Duration{15 * time.Minute},
		},
		Transport: TransportConfig{
			Kind:          TransportRadio,
			MaxPayloadLen: transport.DefaultMaxPayloadLen,
		},
		Server: ServerConfig{
			RecentEvents: 256,
		},
		Sinks: SinksConfig{
			Console: ConsoleSink{Enabled: true},
			MQTT:    MQTTSink{ClientID: "continuityctl", Topic: "continuity"},
		},
	}
}

// Load decodes path onto Default. A sink section without an explicit
// enabled key is enabled by its presence. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	for _, name := range []string{"pubsub", "kafka", "mqtt"} {
		if meta.IsDefined("sinks", name) && !meta.IsDefined("sinks", name, "enabled") {
			switch name {
			case "pubsub":
				cfg.Sinks.PubSub.Enabled = true
			case "kafka":
				cfg.Sinks.Kafka.Enabled = true
			case "mqtt":
				cfg.Sinks.MQTT.Enabled = true
			}
		}
	}
	if meta.IsDefined("transport", "replay_file") && !meta.IsDefined("transport", "kind") {
		cfg.Transport.Kind = TransportReplay
	}
	cfg.Identity.Contacts = normalizeList(cfg.Identity.Contacts)
	cfg.Sinks.Kafka.Brokers = normalizeList(cfg.Sinks.Kafka.Brokers)
	cfg.Server.CorsOrigins = normalizeList(cfg.Server.CorsOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Engine.Vendor < 0 || c.Engine.Vendor > 0xFFFF {
		add("engine.vendor %d out of range", c.Engine.Vendor)
	}
	if c.Engine.DecodeWorkers < 1 {
		add("engine.decode_workers must be >= 1")
	}
	if c.Engine.SubscriberBuffer < 1 {
		add("engine.subscriber_buffer must be >= 1")
	}
	if c.Engine.DedupWindow.Duration < 0 {
		add("engine.dedup_window must not be negative")
	}
	if c.Engine.DedupWindow.Duration > 0 && c.Engine.DedupSize < 1 {
		add("engine.dedup_size must be >= 1 when dedup is enabled")
	}
	if c.Engine.AdvertiseInterval.Duration < 20*time.Millisecond {
		add("engine.advertise_interval must be >= 20ms")
	}
	if c.Identity.RotationInterval.Duration < 0 {
		add("identity.rotation_interval must not be negative")
	}

	switch c.Transport.Kind {
	case TransportRadio:
	case TransportReplay:
		if strings.TrimSpace(c.Transport.ReplayFile) == "" {
			add("transport.replay_file is required for replay")
		}
	default:
		add("transport.kind %q must be radio or replay", c.Transport.Kind)
	}
	if c.Transport.MaxPayloadLen < continuity.VendorIDLen+2 || c.Transport.MaxPayloadLen > 0xFF {
		add("transport.max_payload_len %d out of range", c.Transport.MaxPayloadLen)
	}

	if c.Server.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			add("server.addr %q: %v", c.Server.Addr, err)
		}
	}

	if p := c.Sinks.PubSub; p.Enabled && (p.Project == "" || p.Topic == "") {
		add("sinks.pubsub requires project and topic")
	}
	if k := c.Sinks.Kafka; k.Enabled && (len(k.Brokers) == 0 || k.Topic == "") {
		add("sinks.kafka requires brokers and topic")
	}
	if m := c.Sinks.MQTT; m.Enabled {
		if m.Broker == "" {
			add("sinks.mqtt requires broker")
		}
		if m.QoS < 0 || m.QoS > 2 {
			add("sinks.mqtt.qos %d must be 0, 1 or 2", m.QoS)
		}
	}
	return errors.Join(errs...)
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
