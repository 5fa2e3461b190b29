package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/danmuck/continuityctl/internal/engine"
)

const controlTimeout = 10 * time.Second

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Usage:   "control API base `URL`",
		Value:   defaultServer,
		EnvVars: []string{"CONTINUITY_SERVER"},
	}
}

func stopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "stop advertise sessions on a running instance",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{Name: "id", Usage: "session `ID` (all advertise sessions when empty)"},
		},
		Action: func(c *cli.Context) error {
			api := newControlClient(c.String("server"))
			ids := []string{c.String("id")}
			if ids[0] == "" {
				sessions, err := api.sessions(c.Context)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, s := range sessions {
					if s.Kind == engine.KindAdvertise && s.State == engine.Advertising {
						ids = append(ids, s.ID)
					}
				}
			}
			for _, id := range ids {
				if err := api.do(c.Context, http.MethodDelete, "/advertise/"+id, nil, nil); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "stopped %s\n", id)
			}
			if len(ids) == 0 {
				fmt.Fprintln(c.App.Writer, "no advertise sessions")
			}
			return nil
		},
	}
}

func rotateCommand() *cli.Command {
	return &cli.Command{
		Name:  "rotate",
		Usage: "rotate the advertising address of a running instance",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			var out struct {
				Address string    `json:"address"`
				Rotated time.Time `json:"rotated"`
			}
			api := newControlClient(c.String("server"))
			if err := api.do(c.Context, http.MethodPost, "/identity/rotate", nil, &out); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "address=%s rotated=%s\n", out.Address, out.Rotated.Format(time.RFC3339))
			return nil
		},
	}
}

type controlClient struct {
	base string
	http *http.Client
}

func newControlClient(base string) *controlClient {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &controlClient{base: base, http: &http.Client{Timeout: controlTimeout}}
}

func (c *controlClient) sessions(ctx context.Context) ([]engine.SessionInfo, error) {
	var out struct {
		Sessions []engine.SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *controlClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("control %s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("control %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
