// Package sink forwards decoded events to outputs.
//
// Sinks are best-effort: a failed publish is logged and counted, and the
// dispatcher moves on. Nothing a sink writes is read back by the engine.
package sink

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/engine"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/observability"
)

type Sink interface {
	Name() string
	Publish(ctx context.Context, ev continuity.Event) error
	Close() error
}

// ErrorSink is implemented by sinks that also accept decode failures.
type ErrorSink interface {
	PublishError(ctx context.Context, de *engine.DecodeError) error
}

const (
	errorBuffer    = 128
	publishTimeout = 5 * time.Second
)

// Dispatcher drains an engine subscription into a fixed set of sinks.
type Dispatcher struct {
	sinks []Sink
	errs  chan *engine.DecodeError
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
		errs:  make(chan *engine.DecodeError, errorBuffer),
	}
}

func (d *Dispatcher) Sinks() []Sink {
	return d.sinks
}

// ReportError queues decode errors for error sinks. It never blocks and is
// suitable as engine.Config.OnError.
func (d *Dispatcher) ReportError(err error) {
	var de *engine.DecodeError
	if !errors.As(err, &de) {
		logs.Warnf("sink.Dispatcher.ReportError err=%v", err)
		return
	}
	select {
	case d.errs <- de:
	default:
		logs.Debugf("sink.Dispatcher.ReportError dropped address=%s", de.Address)
	}
}

// Run forwards events until ctx is done or sub is closed.
func (d *Dispatcher) Run(ctx context.Context, sub *engine.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			d.publish(ctx, ev)
		case de := <-d.errs:
			d.publishError(ctx, de)
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev continuity.Event) {
	for _, s := range d.sinks {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.Publish(pctx, ev)
		cancel()
		observability.RecordSinkPublish(s.Name(), err == nil)
		if err != nil {
			logs.Warnf("sink.Dispatcher.publish sink=%s address=%s err=%v", s.Name(), ev.Address, err)
		}
	}
}

func (d *Dispatcher) publishError(ctx context.Context, de *engine.DecodeError) {
	for _, s := range d.sinks {
		es, ok := s.(ErrorSink)
		if !ok {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := es.PublishError(pctx, de)
		cancel()
		if err != nil {
			logs.Warnf("sink.Dispatcher.publishError sink=%s err=%v", s.Name(), err)
		}
	}
}

// Close closes every sink.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
