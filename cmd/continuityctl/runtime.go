package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/continuityctl/internal/config"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/sink"
	"github.com/danmuck/continuityctl/internal/transport"
	"github.com/danmuck/continuityctl/internal/transport/memtransport"
	"github.com/danmuck/continuityctl/internal/transport/radio"
)

const closeTimeout = 5 * time.Second

// openTransport opens the configured transport. A replay file argument
// forces the replay transport.
func openTransport(cfg config.Config, replay string) (transport.Transport, error) {
	if replay != "" {
		cfg.Transport.Kind = config.TransportReplay
		cfg.Transport.ReplayFile = replay
	}
	switch cfg.Transport.Kind {
	case config.TransportReplay:
		advs, err := memtransport.LoadCaptureFile(cfg.Transport.ReplayFile)
		if err != nil {
			return nil, err
		}
		logs.Infof("continuityctl.openTransport kind=replay file=%s count=%d", cfg.Transport.ReplayFile, len(advs))
		return memtransport.New(
			memtransport.WithReplay(advs),
			memtransport.WithMaxPayloadLen(cfg.Transport.MaxPayloadLen),
		), nil
	case config.TransportRadio:
		return radio.Open(radio.Options{
			LocalName:     cfg.Transport.LocalName,
			MaxPayloadLen: cfg.Transport.MaxPayloadLen,
		})
	default:
		return nil, fmt.Errorf("%w: transport.kind %q", config.ErrInvalidConfig, cfg.Transport.Kind)
	}
}

// openSinks dials every enabled sink. A ring is appended when the status
// server is configured.
func openSinks(ctx context.Context, cfg config.Config, out io.Writer) ([]sink.Sink, *sink.Ring, error) {
	var sinks []sink.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}

	if c := cfg.Sinks.Console; c.Enabled {
		sinks = append(sinks, sink.NewConsole(out, c.JSON, c.NoColor))
	}
	if p := cfg.Sinks.PubSub; p.Enabled {
		ps, err := sink.DialPubSub(ctx, p.Project, p.Topic, p.Ordering)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, ps)
	}
	if k := cfg.Sinks.Kafka; k.Enabled {
		sinks = append(sinks, sink.DialKafka(k.Brokers, k.Topic, k.DLQTopic))
	}
	if cfg.Sinks.MQTT.Enabled {
		m, err := sink.DialMQTT(ctx, cfg.MQTTOptions())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, m)
	}

	var ring *sink.Ring
	if cfg.Server.Addr != "" {
		ring = sink.NewRing(cfg.Server.RecentEvents)
		sinks = append(sinks, ring)
	}
	if len(sinks) == 0 {
		return nil, nil, errors.New("no sinks enabled")
	}
	return sinks, ring, nil
}
