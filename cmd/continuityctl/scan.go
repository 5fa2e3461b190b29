package main

import (
	"context"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
	"github.com/danmuck/continuityctl/internal/identity"
	logs "github.com/danmuck/continuityctl/internal/logging"
	"github.com/danmuck/continuityctl/internal/server"
	"github.com/danmuck/continuityctl/internal/sink"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "decode nearby advertisements into the configured sinks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "replay", Usage: "replay a capture `FILE` instead of the radio"},
			&cli.BoolFlag{Name: "json", Usage: "console output as JSON lines"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after `DURATION` (0 runs until interrupted)"},
		},
		Action: runScan,
	}
}

func runScan(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		cfg.Sinks.Console.Enabled = true
		cfg.Sinks.Console.JSON = true
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	if d := c.Duration("duration"); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ids, err := identity.New(cfg.IdentityOptions())
	if err != nil {
		return err
	}
	ids.SetContacts(cfg.ContactIDs()...)

	tr, err := openTransport(cfg, c.String("replay"))
	if err != nil {
		return err
	}
	sinks, ring, err := openSinks(ctx, cfg, c.App.Writer)
	if err != nil {
		return err
	}
	dispatcher := sink.NewDispatcher(sinks...)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logs.Warnf("continuityctl.scan close sinks err=%v", err)
		}
	}()

	ecfg := cfg.EngineConfig()
	ecfg.OnError = dispatcher.ReportError
	eng := engine.New(tr, messages.NewRegistry(), ids, ecfg)
	sub := eng.Subscribe()

	sess, err := eng.StartScan(ctx)
	if err != nil {
		return err
	}
	logs.Infof("continuityctl.scan session=%s sinks=%d", sess.ID(), len(sinks))

	g, gctx := errgroup.WithContext(ctx)
	// Drains until the engine closes the subscription so buffered events
	// still reach the sinks on shutdown.
	g.Go(func() error {
		return dispatcher.Run(context.WithoutCancel(gctx), sub)
	})
	g.Go(func() error {
		return ids.Run(gctx)
	})
	if cfg.Server.Addr != "" {
		srv := server.New(eng, ids, ring, server.Options{CorsOrigins: cfg.Server.CorsOrigins, Sessions: gctx})
		srv.SetReady(true)
		g.Go(func() error {
			return srv.Serve(gctx, cfg.Server.Addr)
		})
	}
	g.Go(func() error {
		select {
		case <-sess.Done():
		case <-gctx.Done():
		}
		scanErr := sess.Stop()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer closeCancel()
		closeErr := eng.Close(closeCtx)
		cancel()
		if scanErr != nil {
			return scanErr
		}
		return closeErr
	})

	err = g.Wait()
	logs.Infof("continuityctl.scan done session=%s dropped=%d", sess.ID(), sub.Dropped())
	return err
}
