package models

import (
	"time"

	"sidbot/pkg/util"
)

// LogicTrail is the structured explanation of the last decision taken on a signal.
type LogicTrail map[string]interface{}

// Signal is the persistent record carried between every stage of the lifecycle.
// Exactly one exists per symbol.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`

	RSITouchValue float64                  `json:"rsi_touch_value"`
	RSITouchDate  time.Time                `json:"rsi_touch_date"`
	ExtremePrice  util.Optional[float64]   `json:"extreme_price"`
	IsReady       bool                     `json:"is_ready"`
	NextEarnings  util.Optional[time.Time] `json:"next_earnings"`
	MarketScore   int                      `json:"market_score"`
	Flags         ScoreFlags               `json:"flags"`
	LogicTrail    LogicTrail               `json:"logic_trail,omitempty"`

	StopLossStrategy StopStrategy           `json:"stop_loss_strategy"`
	ExitStrategy     ExitStrategy           `json:"exit_strategy"`
	StopLoss         util.Optional[float64] `json:"stop_loss"`
	FillPrice        util.Optional[float64] `json:"fill_price"`
	PartialExitDone  bool                   `json:"partial_exit_done"`

	IsActive    bool      `json:"is_active"`
	LastUpdated time.Time `json:"last_updated"`
}

// ScoreFlags are the individual conviction checks that contributed to MarketScore.
type ScoreFlags struct {
	Preferred        bool `json:"preferred"`
	MACDCross        bool `json:"macd_cross"`
	PatternConfirmed bool `json:"pattern_confirmed"`
	SPYAlignment     bool `json:"spy_alignment"`
	SectorAlignment  bool `json:"sector_alignment"`
}

// LifecycleState is derived from the signal's flags.
type LifecycleState string

const (
	StateStaged        LifecycleState = "STAGED"
	StateReady         LifecycleState = "READY"
	StateActive        LifecycleState = "ACTIVE"
	StateActivePartial LifecycleState = "ACTIVE_PARTIAL"
)

func (s Signal) State() LifecycleState {
	switch {
	case s.IsActive && s.PartialExitDone:
		return StateActivePartial
	case s.IsActive:
		return StateActive
	case s.IsReady:
		return StateReady
	default:
		return StateStaged
	}
}

// SignalFilter narrows a List call. Absent fields do not filter.
type SignalFilter struct {
	Ready        util.Optional[bool]
	Active       util.Optional[bool]
	OrderByScore bool // market_score descending, then symbol
}

// Matches applies the filter to a single signal.
func (f SignalFilter) Matches(s Signal) bool {
	if v, ok := f.Ready.Get(); ok && s.IsReady != v {
		return false
	}
	if v, ok := f.Active.Get(); ok && s.IsActive != v {
		return false
	}
	return true
}

// SignalUpdate is a partial field set applied by symbol. Each setter records the column it
// touches so that SQL stores and in-memory stores apply exactly the same change.
type SignalUpdate struct {
	sets []fieldSet
}

type fieldSet struct {
	column string
	value  interface{}
	apply  func(*Signal)
}

func NewSignalUpdate() *SignalUpdate { return &SignalUpdate{} }

func (u *SignalUpdate) add(column string, value interface{}, apply func(*Signal)) *SignalUpdate {
	u.sets = append(u.sets, fieldSet{column: column, value: value, apply: apply})
	return u
}

func (u *SignalUpdate) ExtremePrice(v float64) *SignalUpdate {
	return u.add("extreme_price", v, func(s *Signal) { s.ExtremePrice = util.Some(v) })
}

func (u *SignalUpdate) Ready(v bool) *SignalUpdate {
	return u.add("is_ready", v, func(s *Signal) { s.IsReady = v })
}

func (u *SignalUpdate) NextEarnings(v util.Optional[time.Time]) *SignalUpdate {
	return u.add("next_earnings", v.Ptr(), func(s *Signal) { s.NextEarnings = v })
}

func (u *SignalUpdate) Score(total int, flags ScoreFlags) *SignalUpdate {
	u.add("market_score", total, func(s *Signal) { s.MarketScore = total })
	u.add("preferred", flags.Preferred, func(s *Signal) { s.Flags.Preferred = flags.Preferred })
	u.add("macd_cross", flags.MACDCross, func(s *Signal) { s.Flags.MACDCross = flags.MACDCross })
	u.add("pattern_confirmed", flags.PatternConfirmed, func(s *Signal) { s.Flags.PatternConfirmed = flags.PatternConfirmed })
	u.add("spy_alignment", flags.SPYAlignment, func(s *Signal) { s.Flags.SPYAlignment = flags.SPYAlignment })
	return u.add("sector_alignment", flags.SectorAlignment, func(s *Signal) { s.Flags.SectorAlignment = flags.SectorAlignment })
}

func (u *SignalUpdate) Trail(t LogicTrail) *SignalUpdate {
	return u.add("logic_trail", t, func(s *Signal) { s.LogicTrail = t })
}

func (u *SignalUpdate) Strategies(stop StopStrategy, exit ExitStrategy) *SignalUpdate {
	u.add("stop_loss_strategy", string(stop), func(s *Signal) { s.StopLossStrategy = stop })
	return u.add("exit_strategy", string(exit), func(s *Signal) { s.ExitStrategy = exit })
}

func (u *SignalUpdate) StopLoss(v float64) *SignalUpdate {
	return u.add("stop_loss", v, func(s *Signal) { s.StopLoss = util.Some(v) })
}

func (u *SignalUpdate) FillPrice(v float64) *SignalUpdate {
	return u.add("fill_price", v, func(s *Signal) { s.FillPrice = util.Some(v) })
}

func (u *SignalUpdate) PartialExitDone(v bool) *SignalUpdate {
	return u.add("partial_exit_done", v, func(s *Signal) { s.PartialExitDone = v })
}

func (u *SignalUpdate) Active(v bool) *SignalUpdate {
	return u.add("is_active", v, func(s *Signal) { s.IsActive = v })
}

// Empty reports whether no field is set.
func (u *SignalUpdate) Empty() bool { return u == nil || len(u.sets) == 0 }

// Columns lists touched columns in the order they were set.
func (u *SignalUpdate) Columns() []string {
	cols := make([]string, len(u.sets))
	for i, f := range u.sets {
		cols[i] = f.column
	}
	return cols
}

// Values lists bind values aligned with Columns.
func (u *SignalUpdate) Values() []interface{} {
	vals := make([]interface{}, len(u.sets))
	for i, f := range u.sets {
		vals[i] = f.value
	}
	return vals
}

// Apply mutates s in place. Callers keep their in-memory copy in sync with what was persisted.
func (u *SignalUpdate) Apply(s *Signal) {
	for _, f := range u.sets {
		f.apply(s)
	}
}
