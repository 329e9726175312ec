package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jsherman999/sentryhub/internal/alert"
	"github.com/jsherman999/sentryhub/internal/api"
	"github.com/jsherman999/sentryhub/internal/config"
	"github.com/jsherman999/sentryhub/internal/db"
	"github.com/jsherman999/sentryhub/internal/hub"
	"github.com/jsherman999/sentryhub/internal/logging"
	"github.com/jsherman999/sentryhub/internal/session"
	"github.com/jsherman999/sentryhub/internal/store"
	"github.com/jsherman999/sentryhub/internal/worker"
)

func Main() {
	var cfgPath string

	root := &cobra.Command{Use: "sentryhubd", Short: "Sentryhub daemon (API + WebSocket hub)"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")

	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return errors.New("db.dsn is not set")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			dbConn, err := db.Open(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
			if err != nil {
				return err
			}
			defer dbConn.Close()
			return db.ApplyMigrations(ctx, dbConn)
		},
	}
}

// openStore returns the Postgres store when a DSN is configured and the
// in-memory store otherwise. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (api.Store, func(), error) {
	if cfg.DB.DSN == "" {
		log.Warn().Int("max_rows", cfg.Store.MemoryMax).Msg("db.dsn not set; using in-memory store")
		return store.NewMemory(cfg.Store.MemoryMax), func() {}, nil
	}
	dbConn, err := db.Open(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := db.ApplyMigrations(ctx, dbConn); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	return store.New(dbConn), dbConn.Close, nil
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and WebSocket hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg)

			ctx := context.Background()
			st, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			h := hub.New(log)
			deb := alert.New(alert.NewState(), h,
				alert.WithThreshold(cfg.Alerts.QuietThreshold),
				alert.WithLogger(log),
			)
			ws := session.NewHandler(h, session.Options{
				SendBuffer:      cfg.WS.SendBuffer,
				WriteWait:       cfg.WS.WriteWait,
				PongWait:        cfg.WS.PongWait,
				MaxMessageBytes: cfg.WS.MaxMessageBytes,
			}, cfg.WS.AllowedOrigins, log)

			a := api.New(cfg, st, h, deb, ws, log)
			srv := &http.Server{
				Addr:              cfg.API.Listen,
				Handler:           a.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			bgCtx, bgCancel := context.WithCancel(context.Background())
			defer bgCancel()

			// Debounce state decay
			go worker.NewQuietTicker(deb, cfg.Alerts.CheckInterval, log).Run(bgCtx)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("listen", cfg.API.Listen).Msg("sentryhubd listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-stop:
			case err := <-errCh:
				return fmt.Errorf("listen: %w", err)
			}
			log.Info().Msg("shutting down")
			bgCancel()

			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}
