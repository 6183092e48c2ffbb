package exits

import (
	"math"
	"testing"

	"sidbot/internal/domain/models"
	"sidbot/pkg/util"
)

func base(o models.Orientation, exit models.ExitStrategy, rsi ...float64) Input {
	return Input{
		Orientation: o,
		Qty:         101,
		RSI:         [3]float64{rsi[0], rsi[1], rsi[2]},
		Target:      50,
		HasSignal:   true,
		Exit:        exit,
		Stop:        models.StopFixedWhole,
		FillPrice:   util.Some(42.5),
	}
}

func mustEvaluate(t *testing.T, in Input) Decision {
	t.Helper()
	d, err := Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return d
}

func TestFixedExit(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want Action
	}{
		{"long below target", base(models.OrientLong, models.ExitFixed, 40, 45, 49.9), Hold},
		{"long at target", base(models.OrientLong, models.ExitFixed, 40, 45, 50), CloseAll},
		{"long through target", base(models.OrientLong, models.ExitFixed, 40, 45, 58), CloseAll},
		{"short above target", base(models.OrientShort, models.ExitFixed, 60, 55, 50.1), Hold},
		{"short at target", base(models.OrientShort, models.ExitFixed, 60, 55, 50), CloseAll},
		{"warming up", base(models.OrientLong, models.ExitFixed, math.NaN(), math.NaN(), math.NaN()), Hold},
	}
	for _, c := range cases {
		d := mustEvaluate(t, c.in)
		if d.Action != c.want {
			t.Fatalf("%s: got %s, want %s", c.name, d.Action, c.want)
		}
		if d.Action == CloseAll && d.Qty != 101 {
			t.Fatalf("%s: full close must use the whole quantity, got %d", c.name, d.Qty)
		}
	}
}

func TestMomentumPhaseOne(t *testing.T) {
	d := mustEvaluate(t, base(models.OrientLong, models.ExitMomentum, 44, 48, 51))
	if d.Action != ClosePartial || d.Qty != 50 || !d.MarkPartial {
		t.Fatalf("unexpected phase one decision %+v", d)
	}
	if v, ok := d.BreakEven.Get(); !ok || v != 42.5 {
		t.Fatalf("break-even should be the fill price, got %v", d.BreakEven)
	}

	in := base(models.OrientLong, models.ExitMomentum, 44, 48, 51)
	in.Qty = 1
	in.FillPrice = util.None[float64]()
	d = mustEvaluate(t, in)
	if d.Action != ClosePartial || d.Qty != 0 || !d.MarkPartial || d.BreakEven.IsPresent() {
		t.Fatalf("degraded phase one should still mark partial: %+v", d)
	}

	if d := mustEvaluate(t, base(models.OrientLong, models.ExitMomentum, 40, 44, 49)); d.Action != Hold {
		t.Fatalf("below target holds, got %s", d.Action)
	}
}

func TestMomentumPhaseTwoNeedsReversal(t *testing.T) {
	in := base(models.OrientLong, models.ExitMomentum, 50, 55, 60)
	in.Partial = true
	if d := mustEvaluate(t, in); d.Action != Hold {
		t.Fatalf("rising RSI past target must keep holding, got %s", d.Action)
	}

	in.RSI = [3]float64{55, 60, 57}
	if d := mustEvaluate(t, in); d.Action != CloseAll || d.Reason != ReasonMomentumReversal || d.Qty != 101 {
		t.Fatalf("reversal above target should close all, got %+v", d)
	}

	in.RSI = [3]float64{55, 52, 48}
	if d := mustEvaluate(t, in); d.Action != Hold {
		t.Fatalf("falling back below target is not a phase two exit, got %s", d.Action)
	}

	short := base(models.OrientShort, models.ExitMomentum, 45, 40, 43)
	short.Partial = true
	if d := mustEvaluate(t, short); d.Action != CloseAll {
		t.Fatalf("SHORT mirror: RSI rising while below target should close, got %s", d.Action)
	}
	short.RSI = [3]float64{45, 43, 40}
	if d := mustEvaluate(t, short); d.Action != Hold {
		t.Fatalf("SHORT still falling holds, got %s", d.Action)
	}
}

func TestPhaseTwoNeverBeforePartial(t *testing.T) {
	in := base(models.OrientLong, models.ExitMomentum, 55, 60, 57)
	d := mustEvaluate(t, in)
	if d.Action != ClosePartial {
		t.Fatalf("first time at target is always phase one, got %s", d.Action)
	}
}

func TestEarlyExitPrecedence(t *testing.T) {
	in := base(models.OrientLong, models.ExitMomentum, 30, 28, 25)
	in.EarlyExit = true
	d := mustEvaluate(t, in)
	if d.Action != CloseAll || d.Reason != ReasonEarlyReversal {
		t.Fatalf("two falling readings should trigger early exit, got %+v", d)
	}

	in.EarlyExit = false
	if d := mustEvaluate(t, in); d.Action != Hold {
		t.Fatalf("early exit is opt-in, got %s", d.Action)
	}

	in.EarlyExit = true
	in.Partial = true
	if d := mustEvaluate(t, in); d.Action == CloseAll && d.Reason == ReasonEarlyReversal {
		t.Fatalf("early exit never applies after a partial exit")
	}

	short := base(models.OrientShort, models.ExitFixed, 70, 72, 75)
	short.EarlyExit = true
	if d := mustEvaluate(t, short); d.Reason != ReasonEarlyReversal {
		t.Fatalf("SHORT mirror of early exit, got %+v", d)
	}
}

func TestRatchetFlag(t *testing.T) {
	in := base(models.OrientLong, models.ExitFixed, 40, 42, 44)
	in.Stop = models.StopATRTrail
	in.StoredStop = util.Some(40.0)
	if d := mustEvaluate(t, in); !d.Ratchet {
		t.Fatalf("open ATR_TRAIL position with a stop should ratchet")
	}

	in.RSI = [3]float64{40, 45, 52}
	if d := mustEvaluate(t, in); d.Ratchet {
		t.Fatalf("a position just closed must not ratchet")
	}

	in.RSI = [3]float64{40, 42, 44}
	in.StoredStop = util.None[float64]()
	if d := mustEvaluate(t, in); d.Ratchet {
		t.Fatalf("no stored stop, no ratchet")
	}

	in.StoredStop = util.Some(40.0)
	in.HasSignal = false
	in.Exit = models.ExitMomentum
	in.RSI = [3]float64{40, 45, 52}
	d := mustEvaluate(t, in)
	if d.Ratchet || d.Action != CloseAll {
		t.Fatalf("untracked position runs FIXED without ratchet, got %+v", d)
	}
}

func TestInvalidInputs(t *testing.T) {
	in := base(models.Orientation(0), models.ExitFixed, 40, 45, 55)
	if d, err := Evaluate(in); err == nil || d.Action != Hold {
		t.Fatalf("invalid orientation must hold with an error")
	}
	in = base(models.OrientLong, models.ExitStrategy("SOMETIMES"), 40, 45, 55)
	if d, err := Evaluate(in); err == nil || d.Action != Hold {
		t.Fatalf("unknown strategy must hold with an error")
	}
}
