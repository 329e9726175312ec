package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type envelope struct {
	Type        string  `json:"type"`
	StreamID    string  `json:"streamId"`
	Data        string  `json:"data"`
	ContentType string  `json:"contentType"`
	EventID     int64   `json:"eventId"`
	EntityType  string  `json:"entityType"`
	Confidence  float64 `json:"confidence"`
	Timestamp   string  `json:"timestamp"`
	Message     string  `json:"message"`
	ImageData   string  `json:"imageData"`
}

func watchCmd(g *globals) *cobra.Command {
	var stream string
	var alertsOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a stream and print frames and alerts as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := g.baseURL()
			if err != nil {
				return err
			}
			u, err := wsURL(base)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, u, stream, alertsOnly, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "default", "stream id to subscribe to")
	cmd.Flags().BoolVar(&alertsOnly, "alerts-only", false, "do not subscribe to frames")
	return cmd
}

// watch prints one line per envelope until ctx is done or the server closes
// the connection.
func watch(ctx context.Context, u, stream string, alertsOnly bool, out io.Writer) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	if !alertsOnly {
		sub, _ := json.Marshal(map[string]string{"type": "subscribe", "streamId": stream})
		if err := ws.WriteMessage(websocket.TextMessage, sub); err != nil {
			return err
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fmt.Fprintf(out, "unparsable message: %s\n", data)
			continue
		}
		fmt.Fprintln(out, describe(env))
	}
}

func describe(env envelope) string {
	switch env.Type {
	case "frame":
		return fmt.Sprintf("frame stream=%s type=%s bytes=%d", env.StreamID, env.ContentType, len(env.Data)*3/4)
	case "alert":
		return fmt.Sprintf("alert event_id=%d entity=%s confidence=%.2f at=%s image=%t: %s",
			env.EventID, env.EntityType, env.Confidence, env.Timestamp, env.ImageData != "", env.Message)
	default:
		if env.Message != "" {
			return fmt.Sprintf("%s: %s", env.Type, env.Message)
		}
		return env.Type
	}
}
