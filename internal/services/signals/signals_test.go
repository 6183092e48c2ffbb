package signals

import (
	"math"
	"testing"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/pkg/config"
	"sidbot/pkg/util"
)

func strategy(t *testing.T) config.Strategy {
	t.Helper()
	c, err := config.Parse([]byte("alpaca:\n  key_id: k\n  secret_key: s\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return c.Strategy
}

// series builds daily bars from closes starting on Tuesday 2024-01-02, one per calendar day.
func series(closes ...float64) []models.Bar {
	start := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol:    "TEST",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Timeframe: models.TF1d,
		}
	}
	return bars
}

func linear(n int, from, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func TestDetectTouch(t *testing.T) {
	s := strategy(t)

	long, ok := DetectTouch(series(linear(30, 100, -1)...), s)
	if !ok || long.Direction != models.Long {
		t.Fatalf("falling series should touch LONG, got %+v %v", long, ok)
	}
	if long.Extreme != 70 {
		t.Fatalf("LONG extreme should be the touch-bar low, got %v", long.Extreme)
	}

	short, ok := DetectTouch(series(linear(30, 100, 1)...), s)
	if !ok || short.Direction != models.Short || short.Extreme != 130 {
		t.Fatalf("rising series should touch SHORT at the bar high, got %+v %v", short, ok)
	}

	chop := make([]float64, 30)
	for i := range chop {
		chop[i] = 100 + float64(i%2)
	}
	if _, ok := DetectTouch(series(chop...), s); ok {
		t.Fatalf("choppy series should not touch")
	}

	if _, ok := DetectTouch(series(linear(14, 100, -1)...), s); ok {
		t.Fatalf("fewer than 15 bars must be skipped")
	}
}

func TestApplyTouch(t *testing.T) {
	s := strategy(t)
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	touch := Touch{Direction: models.Long, RSI: 27.123456, Extreme: 10, Close: 10.5}

	fresh, ok := ApplyTouch(util.None[models.Signal](), "ABC", touch, s, now)
	if !ok {
		t.Fatalf("fresh touch should upsert")
	}
	if fresh.RSITouchValue != 27.1235 || fresh.IsReady || fresh.LogicTrail["event"] != EventInitialTouch {
		t.Fatalf("unexpected fresh signal %+v", fresh)
	}
	if fresh.StopLossStrategy != s.StopLossStrategy || fresh.ExitStrategy != s.ExitStrategy {
		t.Fatalf("strategies should come from configuration")
	}

	stored := fresh
	stored.ExtremePrice = util.Some(9.0)
	stored.IsReady = true
	stored.MarketScore = 3
	again, ok := ApplyTouch(util.Some(stored), "ABC", touch, s, now.Add(time.Hour))
	if !ok {
		t.Fatalf("re-touch should upsert")
	}
	if v, _ := again.ExtremePrice.Get(); v != 9 {
		t.Fatalf("re-touch must keep the more extreme low, got %v", v)
	}
	if again.IsReady {
		t.Fatalf("re-touch must reset readiness")
	}
	if again.MarketScore != 3 {
		t.Fatalf("same-direction re-touch keeps the score, got %d", again.MarketScore)
	}

	deeper := touch
	deeper.Extreme = 8
	moved, _ := ApplyTouch(util.Some(stored), "ABC", deeper, s, now)
	if v, _ := moved.ExtremePrice.Get(); v != 8 {
		t.Fatalf("lower touch low should win, got %v", v)
	}

	flip := Touch{Direction: models.Short, RSI: 75, Extreme: 12, Close: 11.5}
	flipped, _ := ApplyTouch(util.Some(stored), "ABC", flip, s, now)
	if v, _ := flipped.ExtremePrice.Get(); flipped.Direction != models.Short || v != 12 || flipped.MarketScore != 0 {
		t.Fatalf("opposite touch should re-seed, got %+v", flipped)
	}

	active := stored
	active.IsActive = true
	if _, ok := ApplyTouch(util.Some(active), "ABC", touch, s, now); ok {
		t.Fatalf("active signals must never be overwritten")
	}
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	s := strategy(t)
	bars := series(linear(30, 100, -1)...)
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)

	touch, ok := DetectTouch(bars, s)
	if !ok {
		t.Fatalf("expected touch")
	}
	first, _ := ApplyTouch(util.None[models.Signal](), "ABC", touch, s, now)
	second, _ := ApplyTouch(util.Some(first), "ABC", touch, s, now.Add(24*time.Hour))
	a, _ := first.ExtremePrice.Get()
	b, _ := second.ExtremePrice.Get()
	if first.Direction != second.Direction || a != b {
		t.Fatalf("rerun changed state: %v/%v -> %v/%v", first.Direction, a, second.Direction, b)
	}
}

func TestTrackExtremeIsMonotonic(t *testing.T) {
	lows := []float64{10, 11, 9, 9.5, 8}
	stored := util.None[float64]()
	prev := math.Inf(1)
	for _, l := range lows {
		v, _ := TrackExtreme(models.OrientLong, stored, models.Bar{Low: l, High: l + 2})
		if v > prev {
			t.Fatalf("LONG extreme rose from %v to %v", prev, v)
		}
		prev, stored = v, util.Some(v)
	}
	if prev != 8 {
		t.Fatalf("LONG extreme = %v, want 8", prev)
	}

	stored = util.Some(20.0)
	if v, changed := TrackExtreme(models.OrientShort, stored, models.Bar{Low: 17, High: 19}); changed || v != 20 {
		t.Fatalf("lower high must not move SHORT extreme, got %v %v", v, changed)
	}
	if v, changed := TrackExtreme(models.OrientShort, stored, models.Bar{Low: 18, High: 21}); !changed || v != 21 {
		t.Fatalf("higher high should move SHORT extreme, got %v %v", v, changed)
	}
}

func TestEvaluateAlignment(t *testing.T) {
	s := strategy(t)

	// 99 falling days then a sharp up day: every slope turns up.
	longBars := series(append(linear(99, 200, -1), 122)...)
	a := EvaluateAlignment(longBars, models.OrientLong, s)
	if !a.All() {
		t.Fatalf("expected full LONG alignment, got %+v", a)
	}
	if trail := a.Trail(); trail["event"] != EventAlignmentsConfirmed || trail["macd_slope"] != "UP" {
		t.Fatalf("unexpected trail %v", trail)
	}
	if b := EvaluateAlignment(longBars, models.OrientShort, s); b.DailyRSI || b.WeeklyRSI || b.MACD {
		t.Fatalf("mirrored orientation should fail every slope, got %+v", b)
	}

	shortBars := series(append(linear(99, 100, 1), 178)...)
	if a := EvaluateAlignment(shortBars, models.OrientShort, s); !a.All() {
		t.Fatalf("expected full SHORT alignment, got %+v", a)
	}

	// Only ~8 weekly points: daily and MACD agree, weekly cannot.
	partial := EvaluateAlignment(series(append(linear(49, 200, -1), 172)...), models.OrientLong, s)
	if !partial.DailyRSI || !partial.MACD || partial.WeeklyRSI || partial.All() {
		t.Fatalf("expected partial alignment without weekly, got %+v", partial)
	}
}

func TestAlignmentIsConjunctive(t *testing.T) {
	for _, a := range []Alignment{
		{DailyRSI: false, WeeklyRSI: true, MACD: true},
		{DailyRSI: true, WeeklyRSI: false, MACD: true},
		{DailyRSI: true, WeeklyRSI: true, MACD: false},
	} {
		if a.All() {
			t.Fatalf("%+v must not pass the gate", a)
		}
	}
}

func TestEarningsBlackout(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	date := func(m time.Month, d int) util.Optional[time.Time] {
		return util.Some(time.Date(2024, m, d, 0, 0, 0, 0, time.UTC))
	}
	cases := []struct {
		next    util.Optional[time.Time]
		blocked bool
	}{
		{date(3, 15), true},
		{date(3, 1), true},
		{date(3, 16), false},
		{date(2, 29), false},
		{util.None[time.Time](), false},
	}
	for _, c := range cases {
		if got, _ := EarningsBlackout(c.next, now, 14); got != c.blocked {
			t.Fatalf("EarningsBlackout(%v) = %v, want %v", c.next, got, c.blocked)
		}
	}
}

func TestMomentumExhausted(t *testing.T) {
	s := strategy(t)
	cases := []struct {
		o    models.Orientation
		rsi  float64
		want bool
	}{
		{models.OrientLong, 45, false},
		{models.OrientLong, 45.1, true},
		{models.OrientShort, 55, false},
		{models.OrientShort, 54.9, true},
		{models.OrientLong, math.NaN(), false},
	}
	for _, c := range cases {
		if got := MomentumExhausted(c.o, c.rsi, s); got != c.want {
			t.Fatalf("MomentumExhausted(%d, %v) = %v, want %v", c.o, c.rsi, got, c.want)
		}
	}
}

func TestMACDCrossed(t *testing.T) {
	s := strategy(t)
	up := append(linear(50, 100, -0.5), 76, 78, 81)
	if !MACDCrossed(up, models.OrientLong, s) {
		t.Fatalf("expected bullish crossover")
	}
	if MACDCrossed(up, models.OrientShort, s) {
		t.Fatalf("bullish crossover must not score SHORT")
	}
	down := append(linear(50, 100, 0.5), 124, 122, 119)
	if !MACDCrossed(down, models.OrientShort, s) {
		t.Fatalf("expected bearish crossover")
	}
	if MACDCrossed(linear(53, 100, -0.5), models.OrientLong, s) {
		t.Fatalf("a persistent state is not a crossover")
	}
	if MACDCrossed([]float64{1, 2, 3, 4}, models.OrientLong, s) {
		t.Fatalf("fewer than five closes cannot cross")
	}
}

func TestDoublePattern(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 120
	}
	bars := series(closes...)
	bars[25].Low = 100 // prior trough
	bars[55].Low = 101 // recent trough, 1% away
	if !DoublePattern(bars, models.OrientLong, 0.015) {
		t.Fatalf("expected double bottom")
	}
	bars[55].Low = 95
	if DoublePattern(bars, models.OrientLong, 0.015) {
		t.Fatalf("5%% apart is not a double bottom")
	}

	bars = series(closes...)
	bars[30].High = 150
	bars[52].High = 151
	if !DoublePattern(bars, models.OrientShort, 0.015) {
		t.Fatalf("expected double top")
	}
	if DoublePattern(series(1, 2, 3), models.OrientLong, 0.015) {
		t.Fatalf("too few bars")
	}
}

func TestAligned(t *testing.T) {
	if !Aligned([]float64{100, 101}, models.OrientLong) || Aligned([]float64{100, 101}, models.OrientShort) {
		t.Fatalf("up day aligns LONG only")
	}
	if Aligned([]float64{100, 100}, models.OrientLong) || Aligned([]float64{100, 100}, models.OrientShort) {
		t.Fatalf("unchanged close aligns nothing")
	}
	if Aligned([]float64{100}, models.OrientLong) {
		t.Fatalf("one close cannot align")
	}
}

func TestScoreSumsWeights(t *testing.T) {
	s := strategy(t)
	s.PreferredSymbols = []string{"ABC"}
	in := ScoreInput{
		Symbol:       "ABC",
		Orientation:  models.OrientLong,
		Bars:         series(append(linear(50, 100, -0.5), 76, 78, 81)...),
		IndexCloses:  []float64{400, 402},
		SectorCloses: util.Some([]float64{50, 49}),
	}
	total, flags := Score(in, s)
	if !flags.Preferred || !flags.MACDCross || !flags.SPYAlignment || flags.SectorAlignment {
		t.Fatalf("unexpected flags %+v", flags)
	}
	want := s.Weights.Preferred + s.Weights.MACDCross + s.Weights.IndexAlignment
	if flags.PatternConfirmed {
		want += s.Weights.ReversalPattern
	}
	if total != want {
		t.Fatalf("total = %d, want %d", total, want)
	}

	in.SectorCloses = util.None[[]float64]()
	in.Symbol = "XYZ"
	_, flags = Score(in, s)
	if flags.SectorAlignment || flags.Preferred {
		t.Fatalf("absent sector mapping and non-preferred symbol add nothing: %+v", flags)
	}
}
