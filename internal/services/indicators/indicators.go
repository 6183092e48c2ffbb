package indicators

import (
	"errors"
	"math"
	"sort"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/pkg/util"
)

// ErrInsufficientData is returned when a series is shorter than the indicator window.
var ErrInsufficientData = errors.New("insufficient data")

// RSI computes Wilder's relative strength index. Values before index period-1 are NaN.
// A window with no down moves reads 100.
func RSI(closes []float64, period int) []float64 {
	out := nanSeries(len(closes))
	if period < 1 || len(closes) == 0 {
		return out
	}
	alpha := 1 / float64(period)
	var avgUp, avgDn float64
	for i := range closes {
		var up, dn float64
		if i > 0 {
			d := closes[i] - closes[i-1]
			if d > 0 {
				up = d
			} else if d < 0 {
				dn = -d
			}
		}
		if i == 0 {
			avgUp, avgDn = up, dn
		} else {
			avgUp = alpha*up + (1-alpha)*avgUp
			avgDn = alpha*dn + (1-alpha)*avgDn
		}
		if i < period-1 {
			continue
		}
		if avgDn == 0 {
			out[i] = 100
			continue
		}
		out[i] = 100 - 100/(1+avgUp/avgDn)
	}
	return out
}

// EMA is an exponential moving average with alpha 2/(span+1), seeded with the first
// observation. NaN inputs are skipped. Outputs before minPeriods observations are NaN.
func EMA(values []float64, span, minPeriods int) []float64 {
	out := nanSeries(len(values))
	if span < 1 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	var mean float64
	seen := 0
	for i, v := range values {
		if math.IsNaN(v) {
			if seen >= minPeriods && seen > 0 {
				out[i] = mean
			}
			continue
		}
		if seen == 0 {
			mean = v
		} else {
			mean = alpha*v + (1-alpha)*mean
		}
		seen++
		if seen >= minPeriods {
			out[i] = mean
		}
	}
	return out
}

type MACDSeries struct {
	Line   []float64
	Signal []float64
}

// MACD builds the fast-slow EMA spread and its signal line. With warmup set, each EMA
// stays NaN until its window is full; without it every point is populated.
func MACD(closes []float64, fast, slow, signal int, warmup bool) MACDSeries {
	minF, minS, minSig := 0, 0, 0
	if warmup {
		minF, minS, minSig = fast, slow, signal
	}
	ef := EMA(closes, fast, minF)
	es := EMA(closes, slow, minS)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = ef[i] - es[i]
	}
	return MACDSeries{Line: line, Signal: EMA(line, signal, minSig)}
}

// ATR is Wilder's average true range. The first value sits at index period-1 and is the
// simple mean of the first period true ranges; earlier entries are NaN.
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nil, errors.New("atr: mismatched series lengths")
	}
	if period < 1 || n < period+1 {
		return nil, ErrInsufficientData
	}
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		tr[i] = highs[i] - lows[i]
		if i == 0 {
			continue
		}
		pc := closes[i-1]
		tr[i] = math.Max(tr[i], math.Max(math.Abs(highs[i]-pc), math.Abs(lows[i]-pc)))
	}
	out := nanSeries(n)
	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out, nil
}

// WeeklyCloses resamples daily bars into weeks closing on Monday (Tuesday through Monday)
// and returns each week's last close. Empty weeks produce nothing.
func WeeklyCloses(bars []models.Bar) []float64 {
	type week struct {
		end   time.Time
		last  time.Time
		close float64
	}
	byEnd := make(map[time.Time]*week)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		end := util.WeekEndingMonday(ts)
		w, ok := byEnd[end]
		if !ok {
			byEnd[end] = &week{end: end, last: ts, close: b.Close}
			continue
		}
		if !ts.Before(w.last) {
			w.last, w.close = ts, b.Close
		}
	}
	weeks := make([]*week, 0, len(byEnd))
	for _, w := range byEnd {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].end.Before(weeks[j].end) })
	out := make([]float64, len(weeks))
	for i, w := range weeks {
		out[i] = w.close
	}
	return out
}

// Last returns the final value when it is a number.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 || math.IsNaN(series[len(series)-1]) {
		return math.NaN(), false
	}
	return series[len(series)-1], true
}

// Tail returns the last n values, oldest first, only when all of them are numbers.
func Tail(series []float64, n int) ([]float64, bool) {
	if n < 1 || len(series) < n {
		return nil, false
	}
	t := series[len(series)-n:]
	for _, v := range t {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	return t, true
}

// Slope is the change between the last two values.
func Slope(series []float64) (float64, bool) {
	t, ok := Tail(series, 2)
	if !ok {
		return 0, false
	}
	return t[1] - t[0], true
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
