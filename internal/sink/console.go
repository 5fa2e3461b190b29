package sink

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/danmuck/continuityctl/internal/continuity"
	"github.com/danmuck/continuityctl/internal/continuity/messages"
	"github.com/danmuck/continuityctl/internal/engine"
)

// Console writes one line per event, colored or as JSON lines.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	json bool

	addr   *color.Color
	family *color.Color
	warn   *color.Color
}

func NewConsole(w io.Writer, jsonLines, noColor bool) *Console {
	c := &Console{
		w:      w,
		json:   jsonLines,
		addr:   color.New(color.FgCyan),
		family: color.New(color.FgGreen, color.Bold),
		warn:   color.New(color.FgYellow),
	}
	if noColor {
		c.addr.DisableColor()
		c.family.DisableColor()
		c.warn.DisableColor()
	} else {
		c.addr.EnableColor()
		c.family.EnableColor()
		c.warn.EnableColor()
	}
	return c
}

func (c *Console) Name() string { return "console" }

func (c *Console) Publish(_ context.Context, ev continuity.Event) error {
	var line string
	if c.json {
		b, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		line = string(b)
	} else {
		line = c.format(ev)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, line)
	return err
}

func (c *Console) PublishError(_ context.Context, de *engine.DecodeError) error {
	if c.json {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "%s %s\n", c.addr.Sprint(de.Address.String()), c.warn.Sprintf("decode: %v", de.Err))
	return err
}

func (c *Console) Close() error { return nil }

func (c *Console) format(ev continuity.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %4ddBm", ev.Timestamp.Format("15:04:05.000"), c.addr.Sprint(ev.Address.String()), ev.RSSI)
	for _, rec := range ev.Frame.Records {
		b.WriteString(" | ")
		b.WriteString(c.family.Sprint(rec.Tag.String()))
		if rec.Err != nil {
			b.WriteString(" ")
			b.WriteString(c.warn.Sprint("malformed"))
			continue
		}
		b.WriteString(formatFields(messages.Fields(rec.Message)))
	}
	return b.String()
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
