package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"sidbot/internal/domain/models"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRSIWarmupAndBounds(t *testing.T) {
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}
	r := RSI(rising, 14)
	for i := 0; i < 13; i++ {
		if !math.IsNaN(r[i]) {
			t.Fatalf("index %d should be warming up, got %v", i, r[i])
		}
	}
	if r[13] != 100 || r[19] != 100 {
		t.Fatalf("monotonic rise should read 100, got %v / %v", r[13], r[19])
	}
	f := RSI(falling, 14)
	if v, ok := Last(f); !ok || v != 0 {
		t.Fatalf("monotonic fall should read 0, got %v", v)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	r := RSI([]float64{1, 2, 1}, 2)
	if !math.IsNaN(r[0]) {
		t.Fatalf("first value should be NaN")
	}
	if r[1] != 100 {
		t.Fatalf("no down move yet, want 100, got %v", r[1])
	}
	// avgUp=0.25 avgDn=0.5 -> 100 - 100/1.5
	if !near(r[2], 100-100/1.5) {
		t.Fatalf("got %v", r[2])
	}
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{2, 4, 6}, 3, 0)
	want := []float64{2, 3, 4.5}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Fatalf("EMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	warm := EMA([]float64{2, 4, 6}, 3, 2)
	if !math.IsNaN(warm[0]) || !near(warm[1], 3) {
		t.Fatalf("minPeriods not honoured: %v", warm)
	}
	skip := EMA([]float64{math.NaN(), 2, 4}, 3, 0)
	if !math.IsNaN(skip[0]) || !near(skip[1], 2) || !near(skip[2], 3) {
		t.Fatalf("leading NaN should be skipped: %v", skip)
	}
}

func TestMACDLineIsSpread(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 50 + math.Sin(float64(i)/3)*5
	}
	m := MACD(closes, 12, 26, 9, false)
	ef := EMA(closes, 12, 0)
	es := EMA(closes, 26, 0)
	for i := range closes {
		if !near(m.Line[i], ef[i]-es[i]) {
			t.Fatalf("line[%d] mismatch", i)
		}
	}
	w := MACD(closes, 12, 26, 9, true)
	if !math.IsNaN(w.Line[24]) || math.IsNaN(w.Line[25]) {
		t.Fatalf("warmup line should start at index 25")
	}
	if !math.IsNaN(w.Signal[32]) || math.IsNaN(w.Signal[33]) {
		t.Fatalf("warmup signal should start at index 33")
	}
}

func TestATR(t *testing.T) {
	highs := []float64{10, 11, 15}
	lows := []float64{8, 9, 10}
	closes := []float64{9, 10, 14}
	atr, err := ATR(highs, lows, closes, 2)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	if !math.IsNaN(atr[0]) || !near(atr[1], 2) || !near(atr[2], 3.5) {
		t.Fatalf("unexpected ATR %v", atr)
	}
	if _, err := ATR(highs[:2], lows[:2], closes[:2], 2); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestWeeklyClosesMondayAnchored(t *testing.T) {
	day := func(d int, c float64) models.Bar {
		return models.Bar{Timestamp: time.Date(2024, 1, d, 5, 0, 0, 0, time.UTC), Close: c}
	}
	// 2024-01-01 is a Monday.
	bars := []models.Bar{day(1, 1), day(2, 2), day(5, 3), day(8, 4), day(9, 5)}
	got := WeeklyCloses(bars)
	want := []float64{1, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestTailAndSlope(t *testing.T) {
	s := []float64{math.NaN(), 1, 3}
	if d, ok := Slope(s); !ok || d != 2 {
		t.Fatalf("Slope = %v, %v", d, ok)
	}
	if _, ok := Tail(s, 3); ok {
		t.Fatalf("Tail over NaN must fail")
	}
	if _, ok := Slope([]float64{1}); ok {
		t.Fatalf("Slope of one value must fail")
	}
}
