package signals

import (
	"time"

	"sidbot/internal/domain/models"
	"sidbot/internal/services/indicators"
	"sidbot/pkg/config"
	"sidbot/pkg/util"
)

const EventAlignmentsConfirmed = "Alignments Confirmed"

// Alignment holds the three slope checks of the validation gate. Each is true when the
// latest reading moved toward the exit target relative to the one before.
type Alignment struct {
	DailyRSI  bool
	WeeklyRSI bool
	MACD      bool
}

// All is the conjunctive gate.
func (a Alignment) All() bool { return a.DailyRSI && a.WeeklyRSI && a.MACD }

func (a Alignment) Trail() models.LogicTrail {
	return models.LogicTrail{
		"event":       EventAlignmentsConfirmed,
		"d_rsi_slope": upDown(a.DailyRSI),
		"w_rsi_slope": upDown(a.WeeklyRSI),
		"macd_slope":  upDown(a.MACD),
	}
}

// EvaluateAlignment computes the daily RSI, weekly RSI and daily MACD-line slopes.
// Fewer weekly points than the RSI period leaves the weekly check false.
func EvaluateAlignment(bars []models.Bar, o models.Orientation, s config.Strategy) Alignment {
	closes := models.Closes(bars)
	var a Alignment
	a.DailyRSI = turning(indicators.RSI(closes, s.RSIPeriod), o)

	if weekly := indicators.WeeklyCloses(bars); len(weekly) >= s.RSIPeriod {
		a.WeeklyRSI = turning(indicators.RSI(weekly, s.RSIPeriod), o)
	}

	macd := indicators.MACD(closes, s.MACDFast, s.MACDSlow, s.MACDSignal, true)
	a.MACD = turning(macd.Line, o)
	return a
}

// EarningsBlackout reports whether the next report date falls within the blackout window
// from today, along with the day count when a date is known.
func EarningsBlackout(next util.Optional[time.Time], now time.Time, windowDays int) (bool, util.Optional[int]) {
	date, ok := next.Get()
	if !ok {
		return false, util.None[int]()
	}
	days := util.DaysUntil(now, date)
	return days >= 0 && days <= windowDays, util.Some(days)
}

// MomentumExhausted reports that RSI has already drifted too close to the exit target for
// the setup to be worth entering. NaN never exhausts.
func MomentumExhausted(o models.Orientation, rsi float64, s config.Strategy) bool {
	switch o {
	case models.OrientLong:
		return rsi > s.MomentumRoomLong
	case models.OrientShort:
		return rsi < s.MomentumRoomShort
	default:
		return false
	}
}

// CurrentRSI is the latest daily RSI over bars.
func CurrentRSI(bars []models.Bar, s config.Strategy) (float64, bool) {
	return indicators.Last(indicators.RSI(models.Closes(bars), s.RSIPeriod))
}

func turning(series []float64, o models.Orientation) bool {
	d, ok := indicators.Slope(series)
	return ok && o.Favors(d)
}

func upDown(b bool) string {
	if b {
		return "UP"
	}
	return "DOWN"
}
