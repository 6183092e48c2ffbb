package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/tidwall/pretty"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/internal/service/mailer"
	"sidbot/internal/services/signals"
	"sidbot/pkg/cache"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
)

const (
	reportCacheKey  = "report:latest"
	defaultExchange = "NYSE"
)

// ReportRow is one signal as shown in the intelligence report.
type ReportRow struct {
	Symbol       string
	ChartURL     string
	Direction    models.Direction
	Score        int
	DailyRSI     string
	WeeklyRSI    string
	MACD         string
	Preferred    bool
	StopStrategy models.StopStrategy
	ExitStrategy models.ExitStrategy
	Earnings     string
	Blackout     bool
	Trail        string
}

type Report struct {
	GeneratedAt time.Time
	Active      []ReportRow
	Ready       []ReportRow
	Staged      []ReportRow
}

// Reporter renders the signal book as HTML, caches it and mails it when a sender is set up.
type Reporter struct {
	env      Env
	strategy config.Strategy
	store    drepo.SignalStore
	ref      drepo.ReferenceData
	cache    cache.Service
	ttl      time.Duration
	mail     mailer.Sender
}

func NewReporter(env Env, strategy config.Strategy, cfg config.Report, store drepo.SignalStore,
	ref drepo.ReferenceData, c cache.Service, mail mailer.Sender) *Reporter {
	return &Reporter{
		env:      env,
		strategy: strategy,
		store:    store,
		ref:      ref,
		cache:    c,
		ttl:      cfg.CacheTTL,
		mail:     mail,
	}
}

// Run builds a fresh report, replaces the cached copy and emails it.
func (r *Reporter) Run(ctx context.Context) error {
	rep, err := r.Build(ctx)
	if err != nil {
		return err
	}
	html, err := RenderReport(rep)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, reportCacheKey, html, r.ttl); err != nil {
		r.env.Log.Warn("report cache write failed", applogger.Error(err))
	}
	if r.mail == nil {
		return nil
	}
	subject := fmt.Sprintf("Signal report %s: %d ready, %d staged", rep.GeneratedAt.Format("Jan 2"), len(rep.Ready), len(rep.Staged))
	err = r.mail.Send(ctx, subject, html)
	if errors.Is(err, mailer.ErrDisabled) {
		r.env.Log.Debug("report email not configured")
		return nil
	}
	if err != nil {
		return fmt.Errorf("report: email: %w", err)
	}
	return nil
}

// Latest serves the cached report, rendering a live one on a miss.
func (r *Reporter) Latest(ctx context.Context) (string, error) {
	var html string
	if err := r.cache.Get(ctx, reportCacheKey, &html); err == nil {
		return html, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.env.Log.Warn("report cache read failed", applogger.Error(err))
	}
	rep, err := r.Build(ctx)
	if err != nil {
		return "", err
	}
	return RenderReport(rep)
}

func (r *Reporter) Build(ctx context.Context) (Report, error) {
	sigs, err := r.store.List(ctx, models.SignalFilter{OrderByScore: true})
	if err != nil {
		return Report{}, fmt.Errorf("report: list signals: %w", err)
	}
	now := r.env.Now()
	rep := Report{GeneratedAt: now}
	for _, s := range sigs {
		row := r.row(ctx, s, now)
		switch s.State() {
		case models.StateActive, models.StateActivePartial:
			rep.Active = append(rep.Active, row)
		case models.StateReady:
			rep.Ready = append(rep.Ready, row)
		default:
			rep.Staged = append(rep.Staged, row)
		}
	}
	return rep, nil
}

func (r *Reporter) row(ctx context.Context, s models.Signal, now time.Time) ReportRow {
	exchange := defaultExchange
	if ex, err := r.ref.Exchange(ctx, s.Symbol); err != nil {
		r.env.Log.Debug("exchange lookup failed", applogger.Symbol(s.Symbol), applogger.Error(err))
	} else if v, ok := ex.Get(); ok {
		exchange = v
	}
	row := ReportRow{
		Symbol:       s.Symbol,
		ChartURL:     fmt.Sprintf("https://www.tradingview.com/chart/?symbol=%s:%s", exchange, s.Symbol),
		Direction:    s.Direction,
		Score:        s.MarketScore,
		DailyRSI:     trailString(s.LogicTrail, "d_rsi_slope"),
		WeeklyRSI:    trailString(s.LogicTrail, "w_rsi_slope"),
		MACD:         trailString(s.LogicTrail, "macd_slope"),
		Preferred:    s.Flags.Preferred,
		StopStrategy: s.StopLossStrategy,
		ExitStrategy: s.ExitStrategy,
		Earnings:     "-",
		Trail:        prettyTrail(s.LogicTrail),
	}
	blackout, days := signals.EarningsBlackout(s.NextEarnings, now, r.strategy.EarningsBlackoutDays)
	if d, ok := days.Get(); ok {
		row.Earnings = fmt.Sprintf("%dd", d)
		row.Blackout = blackout
	}
	return row
}

func trailString(t models.LogicTrail, key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return "-"
}

func prettyTrail(t models.LogicTrail) string {
	if len(t) == 0 {
		return "{}"
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "{}"
	}
	return string(pretty.PrettyOptions(b, &pretty.Options{Width: 80, Indent: "  ", SortKeys: true}))
}

// RenderReport executes the HTML template over rep.
func RenderReport(rep Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, rep); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

type reportSection struct {
	Title string
	Rows  []ReportRow
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"section": func(title string, rows []ReportRow) reportSection {
		return reportSection{Title: title, Rows: rows}
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Signal report</title>
<style>
body { font-family: -apple-system, Helvetica, Arial, sans-serif; font-size: 13px; color: #222; }
table { border-collapse: collapse; margin-bottom: 24px; width: 100%; }
th, td { border: 1px solid #ddd; padding: 4px 8px; text-align: left; vertical-align: top; }
th { background: #f4f4f4; }
.LONG { color: #1a7f37; font-weight: bold; }
.SHORT { color: #cf222e; font-weight: bold; }
.blackout { background: #fff1c2; font-weight: bold; }
pre { margin: 0; font-size: 11px; }
</style>
</head>
<body>
<h2>Signal report</h2>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
{{template "table" (section "Open positions" .Active)}}
{{template "table" (section "Ready" .Ready)}}
{{template "table" (section "Staged" .Staged)}}
</body>
</html>
{{define "table"}}
<h3>{{.Title}} ({{len .Rows}})</h3>
{{if .Rows}}
<table>
<tr><th>Symbol</th><th>Dir</th><th>Score</th><th>D-RSI</th><th>W-RSI</th><th>MACD</th><th>Pref</th><th>Stop / Exit</th><th>Earnings</th><th>Logic</th></tr>
{{range .Rows}}
<tr>
<td><a href="{{.ChartURL}}">{{.Symbol}}</a></td>
<td class="{{.Direction}}">{{.Direction}}</td>
<td>{{.Score}}</td>
<td>{{.DailyRSI}}</td>
<td>{{.WeeklyRSI}}</td>
<td>{{.MACD}}</td>
<td>{{if .Preferred}}&#9733;{{end}}</td>
<td>{{.StopStrategy}} / {{.ExitStrategy}}</td>
<td{{if .Blackout}} class="blackout"{{end}}>{{.Earnings}}</td>
<td><pre>{{.Trail}}</pre></td>
</tr>
{{end}}
</table>
{{else}}
<p>None.</p>
{{end}}
{{end}}`))
