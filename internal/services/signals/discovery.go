package signals

import (
	"math"
	"time"

	"sidbot/internal/domain/models"
	"sidbot/internal/services/indicators"
	"sidbot/pkg/config"
	"sidbot/pkg/util"
)

const EventInitialTouch = "Initial RSI Extreme Hit"

// Touch is an RSI extreme observed on the latest bar.
type Touch struct {
	Direction models.Direction
	RSI       float64
	Extreme   float64
	Close     float64
}

// DetectTouch reads the latest RSI: at or below oversold is a LONG setup, at or above
// overbought a SHORT one. Short or warming-up series never touch.
func DetectTouch(bars []models.Bar, s config.Strategy) (Touch, bool) {
	if len(bars) < MinDiscoveryBars {
		return Touch{}, false
	}
	rsi, ok := indicators.Last(indicators.RSI(models.Closes(bars), s.RSIPeriod))
	if !ok {
		return Touch{}, false
	}
	last := bars[len(bars)-1]
	switch {
	case rsi <= s.RSIOversold:
		return Touch{Direction: models.Long, RSI: rsi, Extreme: last.Low, Close: last.Close}, true
	case rsi >= s.RSIOverbought:
		return Touch{Direction: models.Short, RSI: rsi, Extreme: last.High, Close: last.Close}, true
	default:
		return Touch{}, false
	}
}

// ApplyTouch builds the record to upsert for a touch. It returns false when the existing
// record is an open position, which discovery never overwrites.
//
// A same-direction re-touch keeps the more extreme of the stored and touch-bar extremes and
// the previous score; an opposite-direction touch starts over.
func ApplyTouch(existing util.Optional[models.Signal], symbol string, t Touch, s config.Strategy, now time.Time) (models.Signal, bool) {
	o, err := t.Direction.Orientation()
	if err != nil {
		return models.Signal{}, false
	}
	next := models.Signal{
		Symbol:           symbol,
		Direction:        t.Direction,
		RSITouchValue:    round(t.RSI, 4),
		RSITouchDate:     now,
		ExtremePrice:     util.Some(t.Extreme),
		StopLossStrategy: s.StopLossStrategy,
		ExitStrategy:     s.ExitStrategy,
		LogicTrail: models.LogicTrail{
			"event":          EventInitialTouch,
			"rsi_at_touch":   round(t.RSI, 2),
			"price_at_touch": t.Close,
		},
		LastUpdated: now,
	}
	prev, ok := existing.Get()
	if !ok {
		return next, true
	}
	if prev.IsActive {
		return models.Signal{}, false
	}
	if prev.Direction == t.Direction {
		if stored, ok := prev.ExtremePrice.Get(); ok && !o.MoreExtreme(t.Extreme, stored) {
			next.ExtremePrice = util.Some(stored)
		}
		next.MarketScore = prev.MarketScore
		next.Flags = prev.Flags
		next.NextEarnings = prev.NextEarnings
	}
	return next, true
}

// TrackExtreme folds the latest bar into the running adverse extreme: the lowest low for
// LONG, the highest high for SHORT. The second result reports a change.
func TrackExtreme(o models.Orientation, stored util.Optional[float64], bar models.Bar) (float64, bool) {
	candidate := bar.Low
	if o == models.OrientShort {
		candidate = bar.High
	}
	cur, ok := stored.Get()
	if !ok {
		return candidate, true
	}
	if o.MoreExtreme(candidate, cur) {
		return candidate, true
	}
	return cur, false
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
