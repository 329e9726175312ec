package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsherman999/sentryhub/internal/config"
)

type globals struct {
	cfgPath string
	server  string
}

func Main() {
	g := &globals{}

	root := &cobra.Command{
		Use:   "sentryhub",
		Short: "Sentryhub CLI",
	}
	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file (yaml)")
	root.PersistentFlags().StringVar(&g.server, "server", "", "hub base URL (default: http://<api.listen>)")

	root.AddCommand(pushFrameCmd(g))
	root.AddCommand(postDetectionCmd(g))
	root.AddCommand(watchCmd(g))
	root.AddCommand(exportCmd(g))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (g *globals) config() (*config.Config, error) {
	return config.Load(g.cfgPath)
}

// baseURL resolves --server, falling back to the configured listen address.
func (g *globals) baseURL() (string, error) {
	if g.server != "" {
		return strings.TrimRight(g.server, "/"), nil
	}
	cfg, err := g.config()
	if err != nil {
		return "", err
	}
	return "http://" + cfg.API.Listen, nil
}

// wsURL maps an http(s) base URL onto the hub's WebSocket endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/stream"
	return u.String(), nil
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// doRequest sends body to the hub and decodes a JSON reply into out. Non-2xx
// replies become errors carrying the server's message.
func doRequest(ctx context.Context, method, u, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Message != "" {
			return fmt.Errorf("%s %s: %d %s", method, u, resp.StatusCode, e.Message)
		}
		return fmt.Errorf("%s %s: %d", method, u, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = raw
		return nil
	}
	return json.Unmarshal(raw, out)
}
