package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/sink"
)

func decodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "decode a manufacturer-data or record hex string",
		ArgsUsage: "<hex>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "records", Usage: "input has no vendor id prefix"},
			&cli.BoolFlag{Name: "json", Usage: "print a JSON document"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
		},
		Action: runDecode,
	}
}

func runDecode(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("%w: decode <hex>", errUsage)
	}
	b, err := parseHex(strings.Join(c.Args().Slice(), ""))
	if err != nil {
		return err
	}

	reg := messages.NewRegistry()
	ev := continuity.Event{Timestamp: time.Now(), Vendor: continuity.VendorApple, Registry: reg}
	var decodeErr error
	if c.Bool("records") {
		ev.Frame, decodeErr = reg.DecodeFrame(b)
	} else {
		ev.Frame, decodeErr = continuity.ParseManufacturerData(reg, continuity.VendorApple, b)
		if errors.Is(decodeErr, continuity.ErrVendorMismatch) || errors.Is(decodeErr, continuity.ErrShortManufacturerData) {
			return decodeErr
		}
	}

	out := sink.NewConsole(c.App.Writer, c.Bool("json"), c.Bool("no-color"))
	if err := out.Publish(c.Context, ev); err != nil {
		return err
	}
	if len(ev.Frame.Malformed()) > 0 {
		decodeErr = errors.Join(append([]error{decodeErr}, ev.Frame.Malformed()...)...)
	}
	return decodeErr
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(strings.ToLower(s)), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	return b, nil
}
