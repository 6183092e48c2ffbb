package exits

import (
	"fmt"

	"sidbot/internal/domain/models"
	"sidbot/pkg/util"
)

type Action string

const (
	Hold         Action = "HOLD"
	ClosePartial Action = "CLOSE_PARTIAL"
	CloseAll     Action = "CLOSE_ALL"
)

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonEarlyReversal    Reason = "early_reversal"
	ReasonTargetReached    Reason = "target_reached"
	ReasonMomentumReversal Reason = "momentum_reversal"
)

// Input is one open position with its shadow state for a single monitoring cycle.
type Input struct {
	Orientation models.Orientation
	Qty         int64
	// RSI holds the two prior readings and the current one, oldest first.
	RSI        [3]float64
	Target     float64
	EarlyExit  bool
	HasSignal  bool
	Exit       models.ExitStrategy
	Stop       models.StopStrategy
	StoredStop util.Optional[float64]
	FillPrice  util.Optional[float64]
	Partial    bool
}

// Decision is what the monitor must do for the position this cycle.
type Decision struct {
	Action Action
	Reason Reason
	// Qty is the share count to close. A partial decision may carry zero, in which case
	// no order is sent but the bookkeeping still happens.
	Qty int64
	// BreakEven is the new stop after a first partial exit. Absent when the fill price
	// is unknown.
	BreakEven   util.Optional[float64]
	MarkPartial bool
	// Ratchet asks the caller to recompute the volatility stop and keep the tighter one.
	Ratchet bool
}

// Evaluate runs the exit rules in precedence order: early reversal, then the strategy's
// target rules, then the stop ratchet for positions that stay open.
func Evaluate(in Input) (Decision, error) {
	o := in.Orientation
	if o != models.OrientLong && o != models.OrientShort {
		return Decision{Action: Hold}, fmt.Errorf("exit: %w", models.ErrInvalidDirection)
	}
	prev2, prev, curr := in.RSI[0], in.RSI[1], in.RSI[2]
	atTarget := float64(o)*(curr-in.Target) >= 0

	d := Decision{Action: Hold}
	switch {
	case in.EarlyExit && !atTarget && !in.Partial && o.Against(curr-prev) && o.Against(prev-prev2):
		d = Decision{Action: CloseAll, Reason: ReasonEarlyReversal, Qty: in.Qty}
	default:
		strategy := in.Exit
		if !in.HasSignal {
			strategy = models.ExitFixed
		}
		switch strategy {
		case models.ExitFixed:
			if atTarget {
				d = Decision{Action: CloseAll, Reason: ReasonTargetReached, Qty: in.Qty}
			}
		case models.ExitMomentum:
			switch {
			case !in.Partial && atTarget:
				d = Decision{
					Action:      ClosePartial,
					Reason:      ReasonTargetReached,
					Qty:         in.Qty / 2,
					BreakEven:   in.FillPrice,
					MarkPartial: true,
				}
			case in.Partial && atTarget && o.Against(curr-prev):
				d = Decision{Action: CloseAll, Reason: ReasonMomentumReversal, Qty: in.Qty}
			}
		default:
			return Decision{Action: Hold}, fmt.Errorf("exit: unknown exit strategy %q", in.Exit)
		}
	}

	d.Ratchet = d.Action != CloseAll && in.HasSignal && in.Stop == models.StopATRTrail && in.StoredStop.IsPresent()
	return d, nil
}
