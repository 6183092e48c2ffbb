package usecase

import (
	"context"
	"errors"
	"time"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

// Clock returns the current time in the exchange time zone.
type Clock func() time.Time

// NewClock reads the wall clock in loc.
func NewClock(loc *time.Location) Clock {
	return func() time.Time { return time.Now().In(loc) }
}

// outcome is what happened to one symbol inside a batch pass.
type outcome string

const (
	outcomeDone    outcome = "done"
	outcomeSkipped outcome = "skipped"
	outcomeDeleted outcome = "deleted"
)

// Env bundles what every stage needs besides its own ports.
type Env struct {
	Log     *applogger.Logger
	Metrics drepo.Metrics
	Events  drepo.EventPublisher
	Now     Clock
}

// runBatch applies fn to every symbol in isolation, logging each failure with its op and
// recording the pass totals.
func runBatch(ctx context.Context, env Env, op string, symbols []string, fn func(ctx context.Context, symbol string) (outcome, error)) util.BatchResult[outcome] {
	res := util.MapIsolated(ctx, symbols, fn)
	for _, f := range res.Failed {
		fields := []applogger.Field{
			applogger.String("op", op),
			applogger.Symbol(f.ID),
			applogger.Error(f.Err),
		}
		var pe *util.PanicError
		if errors.As(f.Err, &pe) {
			fields = append(fields, applogger.String("stack", string(pe.Stack)))
		}
		env.Log.Error("symbol failed", fields...)
	}
	env.Metrics.RecordBatch(op, len(res.Succeeded), len(res.Failed))
	return res
}

func count(res util.BatchResult[outcome], want outcome) int {
	n := 0
	for _, s := range res.Succeeded {
		if s.Value == want {
			n++
		}
	}
	return n
}

// publish is best-effort: a failed delivery is logged and counted, never returned.
func publish(ctx context.Context, env Env, ev models.SignalEvent) {
	env.Metrics.RecordEvent(ev.Type)
	if env.Events == nil {
		return
	}
	if err := env.Events.Publish(ctx, ev); err != nil {
		env.Metrics.RecordError("publish")
		env.Log.Warn("event publish failed",
			applogger.String("type", string(ev.Type)),
			applogger.Symbol(ev.Symbol),
			applogger.Error(err),
		)
	}
}

func symbolsOf(sigs []models.Signal) []string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.Symbol
	}
	return out
}

func bySymbol(sigs []models.Signal) map[string]models.Signal {
	out := make(map[string]models.Signal, len(sigs))
	for _, s := range sigs {
		out[s.Symbol] = s
	}
	return out
}
