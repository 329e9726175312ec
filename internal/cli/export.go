package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsherman999/sentryhub/internal/db"
	"github.com/jsherman999/sentryhub/internal/exporter"
	"github.com/jsherman999/sentryhub/internal/store"
)

func exportCmd(g *globals) *cobra.Command {
	var format string
	var outPath string
	var limit int
	var fromDB bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export detection events as json or csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q (use json|csv)", format)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			var b []byte
			var err error
			if fromDB {
				b, err = exportFromDB(ctx, g, format, limit)
			} else {
				b, err = exportFromServer(ctx, g, format, limit)
			}
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, _ = os.Stdout.Write(b)
				return nil
			}
			return os.WriteFile(outPath, b, 0644)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format: json|csv")
	cmd.Flags().StringVar(&outPath, "out", "-", "output path (or - for stdout)")
	cmd.Flags().IntVar(&limit, "limit", 10000, "max events")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "read straight from db.dsn instead of the running hub")
	return cmd
}

func exportFromServer(ctx context.Context, g *globals, format string, limit int) ([]byte, error) {
	base, err := g.baseURL()
	if err != nil {
		return nil, err
	}
	q := url.Values{"format": {format}, "limit": {strconv.Itoa(limit)}}
	var b []byte
	err = doRequest(ctx, http.MethodGet, base+"/api/events/export?"+q.Encode(), "", nil, &b)
	return b, err
}

func exportFromDB(ctx context.Context, g *globals, format string, limit int) ([]byte, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("--from-db needs db.dsn")
	}
	dbConn, err := db.Open(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, err
	}
	defer dbConn.Close()

	if err := db.ApplyMigrations(ctx, dbConn); err != nil {
		return nil, err
	}
	b, _, err := exporter.Export(ctx, store.New(dbConn), format, limit)
	return b, err
}
