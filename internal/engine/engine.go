// Package engine runs the request pipeline: validate, compile, execute,
// assemble. Stages are strictly sequential; there is no retry and no
// cancellation beyond what the driver's own timeouts provide.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"trendfinder/internal/config"
	"trendfinder/internal/contract"
	"trendfinder/internal/metrics"
	"trendfinder/internal/query"
	"trendfinder/internal/store"
)

// Engine wires the pipeline to its collaborators. The store handle is
// owned by the hosting process and injected here, not reached through
// ambient globals.
type Engine struct {
	Cfg     *config.Config
	Store   *store.Handle
	Metrics *metrics.Recorder
	Log     *slog.Logger
}

func New(cfg *config.Config, h *store.Handle, rec *metrics.Recorder, log *slog.Logger) Engine {
	if log == nil {
		log = slog.Default()
	}
	return Engine{Cfg: cfg, Store: h, Metrics: rec, Log: log}
}

// Request is one normalized inbound invocation, transport already peeled
// off by the caller.
type Request struct {
	// Params is the flat name -> first-value map from the normalizer.
	Params map[string]string
	// RawQuery and Path are kept for logging only.
	RawQuery string
	Path     string

	CorrelationID string
	// DebugKey is the supplied shared secret, empty when absent.
	DebugKey string
}

// Result is the structured response handed back to the transport layer.
type Result struct {
	Status        int
	Body          any
	CorrelationID string
}

const previewCap = 64

// Handle runs one request through the pipeline. Validation failures come
// back as a 400 with the full violation list; everything after validation
// collapses to a generic 500 with detail going only to logs and metrics.
func (e Engine) Handle(ctx context.Context, req Request) Result {
	start := time.Now()
	e.Metrics.MarkColdStart()

	if req.Params == nil {
		req.Params = map[string]string{}
	}
	debugOn := e.Cfg.DebugAllowed(req.DebugKey)
	verbose := e.Cfg.Verbose || debugOn
	log := e.Log.With("correlation_id", req.CorrelationID)

	log.Info("request_received",
		"path", req.Path,
		"raw_query", req.RawQuery,
		"debug_on", debugOn)

	tValidate := time.Now()
	q, violations := contract.Validate(req.Params, contract.Defaults{
		PageSize:    e.Cfg.DefaultPageSize,
		MaxPageSize: e.Cfg.MaxPageSize,
	})
	e.Metrics.ObserveValidation(time.Since(tValidate).Seconds())
	if len(violations) > 0 {
		e.Metrics.RequestRejected()
		log.Info("request_rejected_validation", "violations", violations)
		return Result{
			Status: http.StatusBadRequest,
			Body: ErrorBody{
				Error:         "bad_request",
				Message:       "Request did not match the API contract",
				Details:       violations,
				CorrelationID: req.CorrelationID,
			},
			CorrelationID: req.CorrelationID,
		}
	}
	e.Metrics.ObservePageSize(q.PageSize)

	c := query.Compile(q, e.Cfg.Table, e.Cfg.DateField)
	if verbose {
		log.Debug("sql_planned",
			"where_sql", c.WhereSQL,
			"order_sql", c.OrderSQL,
			"params_preview", previewArgs(c.Args),
			"page", q.Page,
			"page_size", q.PageSize,
			"offset", c.Offset)
	}

	tConnect := time.Now()
	if _, err := e.Store.Acquire(ctx); err != nil {
		return e.fail(log, req, start, "db_connect", err)
	}
	e.Metrics.ObserveConnect(time.Since(tConnect).Seconds())

	tCount := time.Now()
	total, err := e.Store.Count(ctx, c.CountSQL, c.Args)
	if err != nil {
		return e.fail(log, req, start, "sql_count", err)
	}
	e.Metrics.ObserveCount(time.Since(tCount).Seconds())

	tSelect := time.Now()
	rows, err := e.Store.Select(ctx, c.SelectSQL, c.SelectArgs())
	if err != nil {
		return e.fail(log, req, start, "sql_select", err)
	}
	e.Metrics.ObserveSelect(time.Since(tSelect).Seconds())

	// The store already capped the page at page_size; the debug cap only
	// bites when it is smaller than that.
	if debugOn && len(rows) > e.Cfg.DebugMaxRows {
		rows = rows[:e.Cfg.DebugMaxRows]
	}
	if rows == nil {
		rows = []store.Row{}
	}
	totalPages := (total + int64(q.PageSize) - 1) / int64(q.PageSize)
	e.Metrics.ObserveRows(len(rows), total)

	var dbg *Debug
	if debugOn {
		dbg = &Debug{
			WhereSQL:      c.WhereSQL,
			OrderSQL:      c.OrderSQL,
			ParamsPreview: previewArgs(c.Args),
			Limits:        Limits{PageSize: q.PageSize, HardCap: e.Cfg.MaxPageSize},
			Runtime: RuntimeInfo{
				Function:  e.Cfg.Runtime.Function,
				MemoryMB:  e.Cfg.Runtime.MemoryMB,
				LogStream: e.Cfg.Runtime.LogStream,
			},
			Validation: "ok",
		}
	}

	e.Metrics.ObserveHandler(time.Since(start).Seconds())
	log.Info("request_completed",
		"country", q.Country,
		"sort_by", q.SortBy,
		"sort_dir", q.SortDir,
		"rows", len(rows),
		"total", total,
		"duration_ms", time.Since(start).Milliseconds())

	return Result{
		Status: http.StatusOK,
		Body: Envelope{
			Meta: Meta{
				Page:          q.Page,
				PageSize:      q.PageSize,
				Total:         total,
				TotalPages:    totalPages,
				Sort:          Sort{By: q.SortBy, Dir: q.SortDir},
				Filters:       req.Params,
				CorrelationID: req.CorrelationID,
				Debug:         dbg,
			},
			Data: rows,
		},
		CorrelationID: req.CorrelationID,
	}
}

func (e Engine) fail(log *slog.Logger, req Request, start time.Time, stage string, err error) Result {
	e.Metrics.RequestFailed()
	e.Metrics.ObserveHandler(time.Since(start).Seconds())
	log.Error("request_failed", "stage", stage, "error", err)
	return Result{
		Status: http.StatusInternalServerError,
		Body: ErrorBody{
			Error:         "internal_error",
			Message:       "An unexpected error occurred",
			CorrelationID: req.CorrelationID,
		},
		CorrelationID: req.CorrelationID,
	}
}

// previewArgs stringifies bound parameters for diagnostics, capping each
// value so large search terms cannot bloat logs or the debug block.
func previewArgs(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		s := fmt.Sprint(a)
		if len(s) > previewCap {
			s = s[:previewCap]
		}
		out = append(out, s)
	}
	return out
}
