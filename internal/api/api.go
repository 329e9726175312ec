package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jsherman999/sentryhub/internal/alert"
	"github.com/jsherman999/sentryhub/internal/config"
	"github.com/jsherman999/sentryhub/internal/hub"
	"github.com/jsherman999/sentryhub/internal/store"
	"github.com/jsherman999/sentryhub/internal/webui"
)

// Store is the persistence collaborator. store.Store (Postgres) and
// store.Memory both satisfy it.
type Store interface {
	SaveEvent(ctx context.Context, ev *store.DetectionEvent) (int64, error)
	SaveFrame(ctx context.Context, f *store.Frame) (int64, error)
	ListEvents(ctx context.Context, limit int) ([]store.DetectionEvent, error)
	ListUnprocessed(ctx context.Context, limit int) ([]store.DetectionEvent, error)
	ListByType(ctx context.Context, entityType string, limit int) ([]store.DetectionEvent, error)
	GetEvent(ctx context.Context, id int64) (*store.DetectionEvent, error)
	MarkProcessed(ctx context.Context, id int64) error
	ListFrames(ctx context.Context, limit int) ([]store.Frame, error)
	GetFrame(ctx context.Context, id int64) (*store.Frame, error)
	Ping(ctx context.Context) error
}

// Broadcaster is the frame side of the hub.
type Broadcaster interface {
	BroadcastToTopic(topic string, payload []byte, contentType string) int
	Stats() hub.Stats
}

// Debouncer is the alert side of the hub.
type Debouncer interface {
	OnDetection(det alert.Detection, img *alert.Image) bool
	Reset()
	Snapshot() alert.Snapshot
}

type API struct {
	cfg   *config.Config
	store Store
	hub   Broadcaster
	alert Debouncer
	ws    http.Handler
	log   zerolog.Logger

	recent *recentEvents
}

func New(cfg *config.Config, st Store, h Broadcaster, deb Debouncer, ws http.Handler, log zerolog.Logger) *API {
	return &API{
		cfg:   cfg,
		store: st,
		hub:   h,
		alert: deb,
		ws:    ws,
		log:   log.With().Str("component", "api").Logger(),

		recent: newRecentEvents(cfg.API.DedupeWindow),
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/api", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "UP",
			"message":   "sentryhub is running",
			"endpoints": "/api/events, /api/frames, /api/stream, /api/alerts, /ws/stream",
		})
	})

	r.Route("/api/events", func(r chi.Router) {
		r.Post("/", a.handlePostDetection)
		r.Get("/", a.handleListEvents)
		r.Get("/unprocessed", a.handleListUnprocessed)
		r.Get("/export", a.handleExportEvents)
		r.Get("/type/{entityType}", a.handleListByType)
		r.Get("/{id}", a.handleGetEvent)
		r.Patch("/{id}/process", a.handleMarkProcessed)
	})

	r.Route("/api/frames", func(r chi.Router) {
		r.Get("/", a.handleListFrames)
		r.Get("/{id}", a.handleGetFrame)
	})

	r.Route("/api/stream", func(r chi.Router) {
		r.Get("/health", a.handleStreamHealth)
		r.Post("/{streamId}/frame", a.handlePushFrame)
		r.Get("/{streamId}/stats", a.handleStreamStats)
	})

	r.Route("/api/alerts", func(r chi.Router) {
		r.Get("/state", a.handleAlertState)
		r.Post("/reset", a.handleAlertReset)
	})

	if a.ws != nil {
		r.Handle("/ws/stream", a.ws)
	}

	// Live viewer
	ui, uiErr := webui.Handler()
	if uiErr == nil {
		r.Handle("/*", ui)
	} else {
		a.log.Warn().Err(uiErr).Msg("web ui unavailable")
	}

	return r
}
