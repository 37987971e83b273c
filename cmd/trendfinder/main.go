package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"trendfinder/internal/config"
	"trendfinder/internal/contract"
	"trendfinder/internal/engine"
	"trendfinder/internal/logging"
	"trendfinder/internal/metrics"
	"trendfinder/internal/migrate"
	"trendfinder/internal/server"
	"trendfinder/internal/store"
	trendfindersdk "trendfinder/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "trendfinder",
	Short: "Trendfinder event API",
	Long: `Trendfinder serves a paginated, filterable read API over the events dataset.
Configuration comes from the environment (DB_*, TABLE_NAME, MAX_PAGE_SIZE, DEBUG_KEYS, ...),
with an optional local config file (CONFIG_PATH, default config.ini) for laptop runs.`,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(invokeCmd())
	rootCmd.AddCommand(queryCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger := logging.New(cfg.LogLevel)
			slog.SetDefault(logger)

			h := store.NewHandle(cfg.DB)
			defer h.Close()
			if err := prepareLocal(cmd.Context(), cfg, h); err != nil {
				return err
			}

			rec := metrics.NewRecorder(cfg.MetricsEnabled, cfg.MetricsStage)
			e := engine.New(cfg, h, rec, logger)

			srvCfg := server.Config{Engine: e, CORS: cfg.CORSEnabled}
			if cfg.MetricsEnabled {
				srvCfg.Metrics = metrics.Handler()
			}
			srv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.New(srvCfg)}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving", "addr", cfg.HTTPAddr, "driver", cfg.DB.Driver, "table", cfg.Table)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func invokeCmd() *cobra.Command {
	var rawQuery, debugKey, corrID string
	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run one request through the pipeline locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawQuery == "" {
				return fmt.Errorf("--query required")
			}
			cfg := config.Load()
			logger := logging.New(cfg.LogLevel)

			h := store.NewHandle(cfg.DB)
			defer h.Close()
			if err := prepareLocal(cmd.Context(), cfg, h); err != nil {
				return err
			}

			e := engine.New(cfg, h, nil, logger)
			if corrID == "" {
				corrID = fmt.Sprintf("local-%d", time.Now().Unix())
			}
			res := e.Handle(cmd.Context(), engine.Request{
				Params:        contract.FromRawQuery(rawQuery),
				RawQuery:      rawQuery,
				Path:          "/trendfinder",
				CorrelationID: corrID,
				DebugKey:      debugKey,
			})
			fmt.Println("status:", res.Status)
			return printJSON(res.Body)
		},
	}
	cmd.Flags().StringVar(&rawQuery, "query", "", "raw query string, e.g. 'country=Kenya&start_date=2025-01-01&end_date=2025-09-01'")
	cmd.Flags().StringVar(&debugKey, "debug-key", "", "debug key")
	cmd.Flags().StringVar(&corrID, "correlation-id", "", "correlation id")
	return cmd
}

func queryCmd() *cobra.Command {
	var serverURL, debugKey string
	var asJSON bool
	p := trendfindersdk.Params{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a running server and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := trendfindersdk.New(serverURL)
			client.DebugKey = debugKey
			env, err := client.Query(cmd.Context(), p)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(env)
			}
			renderTable(env)
			fmt.Printf("page %d/%d, %d rows of %d total\n",
				env.Meta.Page, env.Meta.TotalPages, len(env.Data), env.Meta.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&debugKey, "debug-key", "", "debug key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.Flags().StringVar(&p.Country, "country", "", "country filter (required by the API)")
	cmd.Flags().StringVar(&p.StartDate, "start", "", "start date YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&p.EndDate, "end", "", "end date YYYY-MM-DD (exclusive)")
	cmd.Flags().IntVar(&p.Page, "page", 0, "page number")
	cmd.Flags().IntVar(&p.PageSize, "page-size", 0, "page size")
	cmd.Flags().StringVar(&p.SortBy, "sort-by", "", "sort column")
	cmd.Flags().StringVar(&p.SortDir, "sort-dir", "", "sort direction")
	cmd.Flags().StringVar(&p.Q, "q", "", "free-text search")
	cmd.Flags().StringVar(&p.EventType, "event-type", "", "event type filter")
	cmd.Flags().StringVar(&p.SubEventType, "sub-event-type", "", "sub event type filter")
	cmd.Flags().StringVar(&p.Actor1, "actor1", "", "actor1 filter")
	cmd.Flags().StringVar(&p.Actor2, "actor2", "", "actor2 filter")
	return cmd
}

// prepareLocal applies the embedded schema for sqlite runs so a fresh
// local database works out of the box. MySQL schemas are managed out of
// band; connections stay lazy there.
func prepareLocal(ctx context.Context, cfg *config.Config, h *store.Handle) error {
	if cfg.DB.Driver != "sqlite" {
		return nil
	}
	db, err := h.Acquire(ctx)
	if err != nil {
		return err
	}
	return migrate.Migrate(db)
}

var resultColumns = []string{
	"event_id", "event_date", "country", "admin1", "event_type",
	"sub_event_type", "actor1", "actor2", "fatalities", "latitude", "longitude",
}

func renderTable(env *trendfindersdk.Envelope) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	header := table.Row{}
	for _, c := range resultColumns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, row := range env.Data {
		r := table.Row{}
		for _, c := range resultColumns {
			r = append(r, row[c])
		}
		t.AppendRow(r)
	}
	t.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
