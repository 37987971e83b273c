package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"trendfinder/internal/config"
	"trendfinder/internal/contract"
	"trendfinder/internal/migrate"
	"trendfinder/internal/store"
)

// newTestEngine boots an engine over a seeded sqlite store:
// 10 Kenya rows inside 2025-01-01..2025-09-01, one Kenya row exactly on
// the exclusive upper bound, and two Sudan rows.
func newTestEngine(t *testing.T) (Engine, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		DB: config.DB{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "trendfinder.db"),
		},
		Table:           "events",
		DateField:       "event_date",
		DefaultPageSize: 50,
		MaxPageSize:     500,
		DebugKeys:       map[string]struct{}{"sesame": {}},
		DebugMaxRows:    50,
		Runtime:         config.Runtime{Function: "trendfinder-test", MemoryMB: "128"},
	}

	h := store.NewHandle(cfg.DB)
	t.Cleanup(func() { h.Close() })
	ctx := context.Background()
	db, err := h.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := migrate.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		eventType, title := "Protests", "Protest over tax"
		if i%2 == 1 {
			eventType, title = "Riots", "Road blockade"
		}
		seed(t, db, i+1, base.AddDate(0, 0, i*20).Format(contract.DateLayout),
			"Kenya", eventType, title, i)
	}
	seed(t, db, 100, "2025-09-01", "Kenya", "Protests", "Boundary day march", 0)
	seed(t, db, 200, "2025-03-01", "Sudan", "Battles", "Clash near border", 4)
	seed(t, db, 201, "2025-04-01", "Sudan", "Battles", "Second clash", 2)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, h, nil, quiet), cfg
}

func seed(t *testing.T, db *sql.DB, id int, date, country, eventType, title string, fatalities int) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO events(event_id, event_date, country, admin1, event_type, sub_event_type,
		 actor1, actor2, fatalities, latitude, longitude, title, notes)
		 VALUES (?, ?, ?, 'Nairobi', ?, 'Generic', 'Crowd', 'Police', ?, -1.28, 36.82, ?, ?)`,
		id, date, country, eventType, fatalities, title, title+" notes")
	if err != nil {
		t.Fatalf("seed row %d: %v", id, err)
	}
}

func kenyaParams() map[string]string {
	return map[string]string{
		"country":    "Kenya",
		"start_date": "2025-01-01",
		"end_date":   "2025-09-01",
	}
}

func handle(t *testing.T, e Engine, params map[string]string, debugKey string) Result {
	t.Helper()
	return e.Handle(context.Background(), Request{
		Params:        params,
		Path:          "/trendfinder",
		CorrelationID: "test-corr",
		DebugKey:      debugKey,
	})
}

func envelope(t *testing.T, res Result) Envelope {
	t.Helper()
	env, ok := res.Body.(Envelope)
	if !ok {
		t.Fatalf("body is %T: %+v", res.Body, res.Body)
	}
	return env
}

func errorBody(t *testing.T, res Result) ErrorBody {
	t.Helper()
	body, ok := res.Body.(ErrorBody)
	if !ok {
		t.Fatalf("body is %T: %+v", res.Body, res.Body)
	}
	return body
}

func TestHandlePaginatedScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	params := kenyaParams()
	params["page_size"] = "5"
	res := handle(t, e, params, "")
	if res.Status != 200 {
		t.Fatalf("status = %d, body %+v", res.Status, res.Body)
	}
	env := envelope(t, res)
	if env.Meta.Total != 10 || env.Meta.TotalPages != 2 {
		t.Errorf("total/pages = %d/%d, want 10/2", env.Meta.Total, env.Meta.TotalPages)
	}
	if len(env.Data) != 5 {
		t.Errorf("len(data) = %d", len(env.Data))
	}
	if env.Meta.Page != 1 || env.Meta.PageSize != 5 {
		t.Errorf("page/page_size = %d/%d", env.Meta.Page, env.Meta.PageSize)
	}
	if env.Meta.Sort.By != "event_date" || env.Meta.Sort.Dir != "desc" {
		t.Errorf("sort = %+v", env.Meta.Sort)
	}
	if env.Meta.Debug != nil {
		t.Error("debug must be absent without a key")
	}
	if env.Meta.CorrelationID != "test-corr" {
		t.Errorf("correlation_id = %q", env.Meta.CorrelationID)
	}
	// Newest Kenya row inside the window comes first.
	if env.Data[0]["event_date"] != "2025-07-01" {
		t.Errorf("data[0] date = %v", env.Data[0]["event_date"])
	}
}

func TestHandleEndDateExclusive(t *testing.T) {
	e, _ := newTestEngine(t)

	res := handle(t, e, kenyaParams(), "")
	if total := envelope(t, res).Meta.Total; total != 10 {
		t.Errorf("total = %d, the boundary-day row must be excluded", total)
	}

	params := kenyaParams()
	params["end_date"] = "2025-09-02"
	res = handle(t, e, params, "")
	if total := envelope(t, res).Meta.Total; total != 11 {
		t.Errorf("total = %d, want 11 once the bound moves past the boundary day", total)
	}
}

func TestHandleValidationFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, map[string]string{"start_date": "2025-01-01", "end_date": "2025-02-01"}, "")
	if res.Status != 400 {
		t.Fatalf("status = %d", res.Status)
	}
	body := errorBody(t, res)
	if body.Error != "bad_request" || body.Message != "Request did not match the API contract" {
		t.Errorf("error body = %+v", body)
	}
	found := false
	for _, v := range body.Details {
		if v.Field == "country" && v.Constraint == "required" {
			found = true
		}
	}
	if !found {
		t.Errorf("no country violation in %+v", body.Details)
	}
	if body.CorrelationID != "test-corr" {
		t.Errorf("correlation_id = %q", body.CorrelationID)
	}
}

func TestHandlePageSizeOverCap(t *testing.T) {
	e, _ := newTestEngine(t)
	params := kenyaParams()
	params["page_size"] = "9999"
	res := handle(t, e, params, "")
	if res.Status != 400 {
		t.Fatalf("status = %d, oversized page_size must be rejected, not clamped", res.Status)
	}
}

func TestHandleDebugBlock(t *testing.T) {
	e, cfg := newTestEngine(t)

	res := handle(t, e, kenyaParams(), "sesame")
	dbg := envelope(t, res).Meta.Debug
	if dbg == nil {
		t.Fatal("debug block missing with a valid key")
	}
	if dbg.WhereSQL == "" || dbg.OrderSQL == "" {
		t.Errorf("debug sql = %+v", dbg)
	}
	if len(dbg.ParamsPreview) != 3 {
		t.Errorf("params_preview = %v", dbg.ParamsPreview)
	}
	if dbg.Limits.HardCap != cfg.MaxPageSize {
		t.Errorf("hard_cap = %d", dbg.Limits.HardCap)
	}
	if dbg.Runtime.Function != "trendfinder-test" {
		t.Errorf("runtime = %+v", dbg.Runtime)
	}
	if dbg.Validation != "ok" {
		t.Errorf("validation = %q", dbg.Validation)
	}

	if envelope(t, handle(t, e, kenyaParams(), "SESAME")).Meta.Debug != nil {
		t.Error("key comparison must be exact")
	}

	cfg.DebugKeys = nil
	if envelope(t, handle(t, e, kenyaParams(), "sesame")).Meta.Debug != nil {
		t.Error("empty allow-list must make debug unreachable")
	}
}

func TestHandleDebugRowCap(t *testing.T) {
	e, cfg := newTestEngine(t)
	cfg.DebugMaxRows = 3
	params := kenyaParams()
	params["page_size"] = "5"
	env := envelope(t, handle(t, e, params, "sesame"))
	if len(env.Data) != 3 {
		t.Errorf("len(data) = %d, want the debug cap", len(env.Data))
	}
	if env.Meta.Total != 10 {
		t.Errorf("total = %d, the cap must not touch the count", env.Meta.Total)
	}

	// Without the key the same request pages normally.
	env = envelope(t, handle(t, e, params, ""))
	if len(env.Data) != 5 {
		t.Errorf("len(data) = %d without debug", len(env.Data))
	}
}

func TestHandlePageBeyondData(t *testing.T) {
	e, _ := newTestEngine(t)
	params := kenyaParams()
	params["page"] = "9"
	env := envelope(t, handle(t, e, params, ""))
	if env.Data == nil {
		t.Error("data must be an empty array, not null")
	}
	if len(env.Data) != 0 {
		t.Errorf("len(data) = %d", len(env.Data))
	}
	if env.Meta.Total != 10 {
		t.Errorf("total = %d", env.Meta.Total)
	}
}

func TestHandleReversedRangeIsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	params := map[string]string{
		"country":    "Kenya",
		"start_date": "2025-09-01",
		"end_date":   "2025-01-01",
	}
	res := handle(t, e, params, "")
	if res.Status != 200 {
		t.Fatalf("status = %d, a reversed range is valid, just empty", res.Status)
	}
	env := envelope(t, res)
	if env.Meta.Total != 0 || env.Meta.TotalPages != 0 || len(env.Data) != 0 {
		t.Errorf("meta = %+v, data = %d", env.Meta, len(env.Data))
	}
}

func TestHandleFiltersEchoRawParams(t *testing.T) {
	e, _ := newTestEngine(t)
	params := kenyaParams()
	params["x-debug-key"] = "sesame"
	params["utm_source"] = "newsletter"
	env := envelope(t, handle(t, e, params, "sesame"))
	if env.Meta.Filters["x-debug-key"] != "sesame" || env.Meta.Filters["utm_source"] != "newsletter" {
		t.Errorf("filters echo = %v", env.Meta.Filters)
	}
}

func TestHandleEqualityAndSearchFilters(t *testing.T) {
	e, _ := newTestEngine(t)

	params := kenyaParams()
	params["event_type"] = "Riots"
	if total := envelope(t, handle(t, e, params, "")).Meta.Total; total != 5 {
		t.Errorf("event_type total = %d, want 5", total)
	}

	params = kenyaParams()
	params["q"] = "tax"
	if total := envelope(t, handle(t, e, params, "")).Meta.Total; total != 5 {
		t.Errorf("search total = %d, want 5", total)
	}

	params = kenyaParams()
	params["country"] = "Sudan"
	params["start_date"] = "2025-01-01"
	params["end_date"] = "2025-12-31"
	if total := envelope(t, handle(t, e, params, "")).Meta.Total; total != 2 {
		t.Errorf("sudan total = %d, want 2", total)
	}
}

func TestHandleSortAscending(t *testing.T) {
	e, _ := newTestEngine(t)
	params := kenyaParams()
	params["sort_by"] = "fatalities"
	params["sort_dir"] = "asc"
	env := envelope(t, handle(t, e, params, ""))
	if env.Data[0]["fatalities"] != int64(0) {
		t.Errorf("data[0] fatalities = %v", env.Data[0]["fatalities"])
	}
	last := env.Data[len(env.Data)-1]
	if last["fatalities"] != int64(9) {
		t.Errorf("last fatalities = %v", last["fatalities"])
	}
}

func TestHandleRepeatIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	first := envelope(t, handle(t, e, kenyaParams(), ""))
	second := envelope(t, handle(t, e, kenyaParams(), ""))
	if first.Meta.Total != second.Meta.Total || len(first.Data) != len(second.Data) {
		t.Errorf("repeat drifted: %+v vs %+v", first.Meta, second.Meta)
	}
	if fmt.Sprint(first.Data[0]) != fmt.Sprint(second.Data[0]) {
		t.Error("repeat returned different first rows")
	}
}
