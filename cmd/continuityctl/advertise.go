package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
	"github.com/danmuck/continuityctl/internal/identity"
	"github.com/danmuck/continuityctl/internal/server"
)

var errUsage = errors.New("usage")

// contactParams are filled from --contact in order when absent.
var contactParams = []string{"appleid", "phone", "email", "email2"}

func advertiseCommand() *cli.Command {
	return &cli.Command{
		Name:      "advertise",
		Usage:     "broadcast one message until interrupted or the duration elapses",
		ArgsUsage: "<" + strings.Join(messages.Families(), "|") + ">",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "message parameter `KEY=VALUE`"},
			&cli.StringSliceFlag{Name: "contact", Usage: "contact `ID` hashed into airdrop digests"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after `DURATION` (0 runs until interrupted)"},
			&cli.DurationFlag{Name: "interval", Usage: "advertising `INTERVAL` (defaults to engine.advertise_interval)"},
			&cli.StringFlag{Name: "replay", Usage: "use the in-memory transport with a capture `FILE`"},
		},
		Action: runAdvertise,
	}
}

func runAdvertise(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: advertise <family>", errUsage)
	}
	family := c.Args().First()
	params, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return err
	}
	contacts := c.StringSlice("contact")
	if len(contacts) > 0 {
		if strings.ToLower(family) != "airdrop" {
			return fmt.Errorf("%w: --contact applies to airdrop only", errUsage)
		}
		fillContacts(params, contacts)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ids, err := identity.New(cfg.IdentityOptions())
	if err != nil {
		return err
	}
	ids.SetContacts(cfg.ContactIDs()...)

	req, err := messages.BuildRequest(family, params, ids)
	if err != nil {
		return err
	}

	tr, err := openTransport(cfg, c.String("replay"))
	if err != nil {
		return err
	}
	eng := engine.New(tr, messages.NewRegistry(), ids, cfg.EngineConfig())

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	sess, err := eng.Advertise(ctx, engine.AdvertiseOptions{
		Messages: []continuity.Message{req.Message},
		Address:  req.Address,
		Interval: c.Duration("interval"),
		Duration: c.Duration("duration"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "advertising session=%s address=%s interval=%s payload=%s\n",
		sess.ID(), sess.Address(), sess.Interval(), hex.EncodeToString(sess.Payload()))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Addr != "" {
		srv := server.New(eng, ids, nil, server.Options{CorsOrigins: cfg.Server.CorsOrigins, Sessions: gctx})
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
		stopCtx, stopCancel := context.WithTimeout(context.Background(), closeTimeout)
		defer stopCancel()
		stopErr := sess.Stop(stopCtx)
		closeErr := eng.Close(stopCtx)
		cancel()
		if stopErr != nil {
			return stopErr
		}
		return closeErr
	})
	return g.Wait()
}

func parseParams(raw []string) (map[string]string, error) {
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --param %q must be key=value", errUsage, kv)
		}
		params[strings.ToLower(key)] = strings.TrimSpace(value)
	}
	return params, nil
}

func fillContacts(params map[string]string, contacts []string) {
	i := 0
	for _, key := range contactParams {
		if i >= len(contacts) {
			return
		}
		if _, ok := params[key]; ok {
			continue
		}
		params[key] = contacts[i]
		i++
	}
}
