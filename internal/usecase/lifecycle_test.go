package usecase

import (
	"context"
	"testing"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/internal/repository"
	"sidbot/internal/services/signals"
	"sidbot/pkg/util"
)

func TestDiscoveryStagesTouchesAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	env, pub := testEnv()
	bars := repository.NewMemoryBarStore()
	store := repository.NewMemorySignalStore()
	seedBars(t, bars, "DOWN", trend(30, 130, -1))
	seedBars(t, bars, "UP", trend(30, 100, 1))
	seedBars(t, bars, "THIN", trend(10, 130, -1))
	seedBars(t, bars, "HELD", trend(30, 130, -1))
	seedSignal(t, store, models.Signal{Symbol: "HELD", Direction: models.Short, IsActive: true})
	ref := &repository.MemoryReferenceData{Universe: []string{"DOWN", "UP", "THIN", "HELD", "BROKEN"}}

	d := NewDiscovery(env, cfg.Strategy, failingBars{MemoryBarStore: bars, symbol: "BROKEN"}, store, ref)
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	down := mustSignal(t, store, "DOWN")
	if down.Direction != models.Long || down.ExtremePrice.OrElse(0) != 100 || down.IsReady {
		t.Fatalf("unexpected LONG setup %+v", down)
	}
	if down.LogicTrail["event"] != signals.EventInitialTouch || down.StopLossStrategy != cfg.Strategy.StopLossStrategy {
		t.Fatalf("touch metadata missing: %+v", down)
	}
	up := mustSignal(t, store, "UP")
	if up.Direction != models.Short || up.ExtremePrice.OrElse(0) != 130 {
		t.Fatalf("unexpected SHORT setup %+v", up)
	}
	assertGone(t, store, "THIN")
	if held := mustSignal(t, store, "HELD"); held.Direction != models.Short || !held.IsActive {
		t.Fatalf("an open position must not be overwritten: %+v", held)
	}
	if n := countType(pub, models.EventDiscovered); n != 2 {
		t.Fatalf("want 2 discovered events, got %d", n)
	}

	// A second pass over the same bars changes nothing material.
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	again := mustSignal(t, store, "DOWN")
	if again.Direction != down.Direction || again.ExtremePrice != down.ExtremePrice {
		t.Fatalf("discovery is not idempotent: %+v vs %+v", again, down)
	}
}

func TestExtremeTrackerOnlyMovesAdversely(t *testing.T) {
	ctx := context.Background()
	env, pub := testEnv()
	bars := repository.NewMemoryBarStore()
	store := repository.NewMemorySignalStore()
	seedBars(t, bars, "LOW", []float64{49})
	seedBars(t, bars, "HIGH", []float64{90})
	seedSignal(t, store, models.Signal{Symbol: "LOW", Direction: models.Long, ExtremePrice: util.Some(50.0)})
	seedSignal(t, store, models.Signal{Symbol: "HIGH", Direction: models.Short, ExtremePrice: util.Some(100.0)})
	seedSignal(t, store, models.Signal{Symbol: "NEW", Direction: models.Long})

	if err := NewExtremeTracker(env, bars, store).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := mustSignal(t, store, "LOW").ExtremePrice.OrElse(0); got != 48 {
		t.Fatalf("LONG extreme should drop to the new low 48, got %v", got)
	}
	if got := mustSignal(t, store, "HIGH").ExtremePrice.OrElse(0); got != 100 {
		t.Fatalf("SHORT extreme must not fall, got %v", got)
	}
	if mustSignal(t, store, "NEW").ExtremePrice.IsPresent() {
		t.Fatalf("no bars means nothing to track")
	}
	if n := countType(pub, models.EventExtremeUpdated); n != 1 {
		t.Fatalf("want 1 extreme_updated event, got %d", n)
	}
}

// aligningCloses declines for 19 weeks then rallies for one full week, which turns daily RSI,
// weekly RSI and the MACD line up while daily RSI stays near 31.
func aligningCloses() []float64 {
	return append(trend(95, 200, -1), trend(5, 107, 1)...)
}

func TestGatePromotesAlignedSignal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	env, pub := testEnv()
	bars := repository.NewMemoryBarStore()
	store := repository.NewMemorySignalStore()
	seedBars(t, bars, "ALN", aligningCloses())
	seedSignal(t, store, models.Signal{Symbol: "ALN", Direction: models.Long})
	ref := &repository.MemoryReferenceData{
		Earnings: map[string][]time.Time{"ALN": {time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)}},
	}

	if err := NewGate(env, cfg.Strategy, bars, store, ref).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sig := mustSignal(t, store, "ALN")
	if !sig.IsReady {
		t.Fatalf("aligned signal should be ready, trail %v", sig.LogicTrail)
	}
	if sig.LogicTrail["event"] != signals.EventAlignmentsConfirmed || sig.LogicTrail["w_rsi_slope"] != "UP" {
		t.Fatalf("unexpected trail %v", sig.LogicTrail)
	}
	if d, ok := sig.NextEarnings.Get(); !ok || d.Month() != time.August {
		t.Fatalf("next earnings should be stored, got %v", sig.NextEarnings)
	}
	if countType(pub, models.EventReady) != 1 {
		t.Fatalf("ready event missing: %v", pub.Types())
	}
}

func TestGateSkipsAndInvalidates(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	env, pub := testEnv()
	bars := repository.NewMemoryBarStore()
	store := repository.NewMemorySignalStore()
	seedBars(t, bars, "SOON", aligningCloses())
	seedBars(t, bars, "THIN", trend(40, 100, -1))
	seedBars(t, bars, "RAN", trend(100, 100, 1))
	for _, s := range []string{"SOON", "THIN", "RAN"} {
		seedSignal(t, store, models.Signal{Symbol: s, Direction: models.Long})
	}
	ref := &repository.MemoryReferenceData{
		Earnings: map[string][]time.Time{"SOON": {testNow.AddDate(0, 0, 14)}},
	}

	if err := NewGate(env, cfg.Strategy, bars, store, ref).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := mustSignal(t, store, "SOON"); s.IsReady {
		t.Fatalf("earnings inside the blackout window must block readiness")
	}
	if s := mustSignal(t, store, "THIN"); s.IsReady {
		t.Fatalf("short history must be skipped")
	}
	assertGone(t, store, "RAN")
	if countType(pub, models.EventInvalidated) != 1 {
		t.Fatalf("invalidated event missing: %v", pub.Types())
	}
}

func TestScorerPersistsScoreAndFlags(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Strategy.PreferredSymbols = []string{"pick"}
	env, pub := testEnv()
	bars := repository.NewMemoryBarStore()
	store := repository.NewMemorySignalStore()
	seedBars(t, bars, "PICK", trend(60, 160, -1))
	seedBars(t, bars, "SPY", trend(60, 400, 1))
	seedBars(t, bars, "XLK", trend(60, 200, -1))
	seedSignal(t, store, models.Signal{Symbol: "PICK", Direction: models.Long, IsReady: true})
	ref := &repository.MemoryReferenceData{Sectors: map[string]string{"PICK": "XLK"}}

	if err := NewScorer(env, cfg.Strategy, bars, store, ref).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sig := mustSignal(t, store, "PICK")
	if !sig.Flags.Preferred || !sig.Flags.SPYAlignment || sig.Flags.SectorAlignment || sig.Flags.MACDCross {
		t.Fatalf("unexpected flags %+v", sig.Flags)
	}
	if sig.MarketScore != 3 {
		t.Fatalf("preferred (2) + index (1) = 3, got %d", sig.MarketScore)
	}
	if !sig.IsReady {
		t.Fatalf("scoring must not touch readiness")
	}
	if countType(pub, models.EventScored) != 1 {
		t.Fatalf("scored event missing")
	}
}

func TestMaintenanceExpiresStaleSetups(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	env, pub := testEnv()
	store := repository.NewMemorySignalStore()
	old := testNow.AddDate(0, 0, -61)
	seedSignal(t, store, models.Signal{Symbol: "OLD", Direction: models.Long, RSITouchDate: old})
	seedSignal(t, store, models.Signal{Symbol: "OPEN", Direction: models.Long, RSITouchDate: old, IsActive: true})
	seedSignal(t, store, models.Signal{Symbol: "FRESH", Direction: models.Short, RSITouchDate: testNow.AddDate(0, 0, -10)})

	if err := NewMaintenance(env, cfg.Strategy, store).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertGone(t, store, "OLD")
	mustSignal(t, store, "OPEN")
	mustSignal(t, store, "FRESH")
	if countType(pub, models.EventExpired) != 1 {
		t.Fatalf("expired event missing: %v", pub.Types())
	}
}
