package risk

import (
	"fmt"
	"math"

	"sidbot/internal/domain/models"
	"sidbot/internal/services/indicators"
)

// FixedWholeStop places the stop at the next whole price beyond the tracked extreme:
// LONG floors the lowest low, SHORT ceils the highest high, and an already whole extreme
// moves one full unit further away.
func FixedWholeStop(extreme float64, o models.Orientation) (float64, error) {
	if math.IsNaN(extreme) || math.IsInf(extreme, 0) {
		return 0, fmt.Errorf("fixed stop: invalid extreme %v", extreme)
	}
	integral := extreme == math.Trunc(extreme)
	switch o {
	case models.OrientLong:
		if integral {
			return extreme - 1, nil
		}
		return math.Floor(extreme), nil
	case models.OrientShort:
		if integral {
			return extreme + 1, nil
		}
		return math.Ceil(extreme), nil
	default:
		return 0, fmt.Errorf("fixed stop: %w", models.ErrInvalidDirection)
	}
}

// ATRTrailStop offsets the latest close by ATR x multiplier against the trade, rounded
// to cents.
func ATRTrailStop(bars []models.Bar, o models.Orientation, period int, multiplier float64) (float64, error) {
	if o != models.OrientLong && o != models.OrientShort {
		return 0, fmt.Errorf("atr stop: %w", models.ErrInvalidDirection)
	}
	atr, err := indicators.ATR(models.Highs(bars), models.Lows(bars), models.Closes(bars), period)
	if err != nil {
		return 0, fmt.Errorf("atr stop: %w", err)
	}
	last, ok := indicators.Last(atr)
	if !ok {
		return 0, fmt.Errorf("atr stop: %w", indicators.ErrInsufficientData)
	}
	lastClose := bars[len(bars)-1].Close
	return roundCents(lastClose - float64(o)*last*multiplier), nil
}

// PositionSize risks equity*riskPerTrade over the per-share distance to the stop.
// A zero distance yields zero shares.
func PositionSize(equity, riskPerTrade, entry, stop float64) int64 {
	perShare := math.Abs(entry - stop)
	if perShare == 0 || math.IsNaN(perShare) {
		return 0
	}
	qty := math.Floor(equity * riskPerTrade / perShare)
	if qty <= 0 || math.IsNaN(qty) {
		return 0
	}
	return int64(qty)
}

// Ratchet keeps whichever stop is tighter in the trade's favor: the higher for LONG,
// the lower for SHORT. A NaN candidate never replaces the stored stop.
func Ratchet(o models.Orientation, stored, candidate float64) float64 {
	if math.IsNaN(candidate) {
		return stored
	}
	if o.Favors(candidate - stored) {
		return candidate
	}
	return stored
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
