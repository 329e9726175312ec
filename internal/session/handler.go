package session

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jsherman999/sentryhub/internal/hub"
)

// Hub is what the lifecycle handler needs from the hub.
type Hub interface {
	Subscriptions
	Connect(conn hub.Conn)
	Disconnect(conn hub.Conn)
}

// Handler upgrades requests to WebSocket and runs one control loop per
// connection.
type Handler struct {
	hub        Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	opts       Options
	log        zerolog.Logger
}

func NewHandler(h Hub, opts Options, allowedOrigins []string, log zerolog.Logger) *Handler {
	log = log.With().Str("component", "session").Logger()
	return &Handler{
		hub:        h,
		dispatcher: NewDispatcher(h, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		opts: opts.withDefaults(),
		log:  log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	c := newClient(ws, h.opts, h.log)
	h.hub.Connect(c)
	h.log.Info().Str("conn", c.ID()).Str("remote", r.RemoteAddr).Msg("connection established")

	_ = c.Send(hub.ConnectedMessage())
	go c.writePump()

	c.readPump(func(mt int, data []byte) {
		switch mt {
		case websocket.TextMessage:
			h.dispatcher.Handle(c, data)
		case websocket.BinaryMessage:
			h.log.Debug().Str("conn", c.ID()).Int("bytes", len(data)).Msg("binary message ignored")
		}
	})

	h.hub.Disconnect(c)
	c.Close()
	h.log.Info().Str("conn", c.ID()).Msg("connection closed")
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		set[strings.ToLower(o)] = struct{}{}
	}

	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
