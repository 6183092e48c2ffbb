package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"sidbot/internal/domain/models"
	"sidbot/internal/repository"
	"sidbot/internal/service/ratelimit"
	"sidbot/internal/usecase"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

type staticReport struct {
	html string
	err  error
}

func (s staticReport) Latest(context.Context) (string, error) { return s.html, s.err }

type recordingTrigger struct{ jobs []string }

func (r *recordingTrigger) Trigger(_ context.Context, job string) (string, error) {
	if job == "report" {
		return "", errors.New("queue down")
	}
	r.jobs = append(r.jobs, job)
	return "msg-1", nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*echo.Echo, *recordingTrigger) {
	t.Helper()
	cfg, err := config.Parse([]byte("alpaca:\n  key_id: k\n  secret_key: s\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	store := repository.NewMemorySignalStore()
	bars := repository.NewMemoryBarStore()
	ctx := context.Background()
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for _, s := range []models.Signal{
		{Symbol: "AAA", Direction: models.Long, MarketScore: 3, LastUpdated: day},
		{Symbol: "BBB", Direction: models.Short, IsReady: true, MarketScore: 1, LastUpdated: day},
		{Symbol: "CCC", Direction: models.Long, IsReady: true, IsActive: true, StopLoss: util.Some(95.0), LastUpdated: day},
	} {
		if err := store.Upsert(ctx, s); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	var series []models.Bar
	for i := 0; i < 20; i++ {
		series = append(series, models.Bar{Symbol: "AAA", Timeframe: models.TF1d, Timestamp: day.AddDate(0, 0, i-20), Close: 100 + float64(i)})
	}
	if err := bars.UpsertBars(ctx, series); err != nil {
		t.Fatalf("seed bars: %v", err)
	}

	trig := &recordingTrigger{}
	h := NewSignalsHandler(applogger.Nop(), usecase.NewQueries(cfg.Strategy, store, bars),
		staticReport{html: "<h1>Signal report</h1>"}, trig, ratelimit.New(1, 1))
	e := echo.New()
	h.RegisterRoutes(e)
	return e, trig
}

func do(t *testing.T, e *echo.Echo, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode: %v", method, target, err)
		}
	}
	return rec, env
}

func TestListSignalsByState(t *testing.T) {
	e, _ := newTestServer(t)
	cases := map[string]int{"": 3, "all": 3, "staged": 1, "ready": 1, "active": 1}
	for state, want := range cases {
		rec, env := do(t, e, http.MethodGet, "/api/signals?state="+state)
		if rec.Code != http.StatusOK {
			t.Fatalf("state %q: status %d", state, rec.Code)
		}
		var list struct {
			Rows  []models.Signal `json:"rows"`
			Total int64           `json:"total"`
		}
		if err := json.Unmarshal(env.Data, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list.Rows) != want || list.Total != int64(want) {
			t.Fatalf("state %q: got %d rows, want %d", state, len(list.Rows), want)
		}
	}
	if rec, _ := do(t, e, http.MethodGet, "/api/signals?state=closed"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown state should be rejected, got %d", rec.Code)
	}
}

func TestGetSignal(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := do(t, e, http.MethodGet, "/api/signals/ccc")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var got struct {
		Symbol string                `json:"symbol"`
		State  models.LifecycleState `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Symbol != "CCC" || got.State != models.StateActive {
		t.Fatalf("unexpected signal %+v", got)
	}
	if rec, _ := do(t, e, http.MethodGet, "/api/signals/ZZZ"); rec.Code != http.StatusNotFound {
		t.Fatalf("untracked symbol should 404, got %d", rec.Code)
	}
}

func TestBarsCarryRSI(t *testing.T) {
	e, _ := newTestServer(t)
	rec, env := do(t, e, http.MethodGet, "/api/signals/AAA/bars?n=15")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Count int `json:"count"`
		Bars  []struct {
			Close float64  `json:"close"`
			RSI   *float64 `json:"rsi"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Count != 15 || len(res.Bars) != 15 {
		t.Fatalf("want 15 bars, got %d", res.Count)
	}
	if res.Bars[0].RSI != nil || res.Bars[14].RSI == nil || *res.Bars[14].RSI != 100 {
		t.Fatalf("RSI should warm up then read 100 on a steady rise")
	}
	if rec, _ := do(t, e, http.MethodGet, "/api/signals/AAA/bars?n=5000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized n should be rejected, got %d", rec.Code)
	}
}

func TestReportIsHTML(t *testing.T) {
	e, _ := newTestServer(t)
	rec, _ := do(t, e, http.MethodGet, "/api/report")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Signal report") {
		t.Fatalf("unexpected report response %d %q", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML) {
		t.Fatalf("report should be served as HTML")
	}
}

func TestTriggerJob(t *testing.T) {
	e, trig := newTestServer(t)
	rec, _ := do(t, e, http.MethodPost, "/api/jobs/prep")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	if len(trig.jobs) != 1 || trig.jobs[0] != "prep" {
		t.Fatalf("job not queued: %v", trig.jobs)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/jobs/prep"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger in the same minute should be limited, got %d", rec.Code)
	}
}

func TestTriggerJobValidation(t *testing.T) {
	e, trig := newTestServer(t)
	if rec, _ := do(t, e, http.MethodPost, "/api/jobs/liquidate"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown job should be rejected, got %d", rec.Code)
	}
	if rec, _ := do(t, e, http.MethodPost, "/api/jobs/report"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("queue failure should be 503, got %d", rec.Code)
	}
	if len(trig.jobs) != 0 {
		t.Fatalf("nothing should be queued, got %v", trig.jobs)
	}
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	if rec, _ := do(t, e, http.MethodGet, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}
