package signals

import (
	"math"

	"sidbot/internal/domain/models"
	"sidbot/internal/services/indicators"
	"sidbot/pkg/config"
	"sidbot/pkg/util"
)

// ScoreInput is everything the conviction scorer looks at for one symbol.
type ScoreInput struct {
	Symbol       string
	Orientation  models.Orientation
	Bars         []models.Bar
	IndexCloses  []float64
	SectorCloses util.Optional[[]float64]
}

// Score sums the configured weight of every check that passes. It never gates readiness.
func Score(in ScoreInput, s config.Strategy) (int, models.ScoreFlags) {
	var flags models.ScoreFlags
	flags.Preferred = s.IsPreferred(in.Symbol)
	flags.MACDCross = MACDCrossed(models.Closes(in.Bars), in.Orientation, s)
	flags.PatternConfirmed = DoublePattern(in.Bars, in.Orientation, s.PatternTolerance)
	flags.SPYAlignment = Aligned(in.IndexCloses, in.Orientation)
	if sector, ok := in.SectorCloses.Get(); ok {
		flags.SectorAlignment = Aligned(sector, in.Orientation)
	}

	w := s.Weights
	total := 0
	for _, c := range []struct {
		hit    bool
		weight int
	}{
		{flags.Preferred, w.Preferred},
		{flags.MACDCross, w.MACDCross},
		{flags.PatternConfirmed, w.ReversalPattern},
		{flags.SPYAlignment, w.IndexAlignment},
		{flags.SectorAlignment, w.SectorAlignment},
	} {
		if c.hit {
			total += c.weight
		}
	}
	return total, flags
}

// MACDCrossed is a true crossover: the line sat on the wrong side of its signal five bars
// back and is on the trade's side on at least one of the last three bars.
func MACDCrossed(closes []float64, o models.Orientation, s config.Strategy) bool {
	if len(closes) < 5 {
		return false
	}
	m := indicators.MACD(closes, s.MACDFast, s.MACDSlow, s.MACDSignal, false)
	n := len(closes)
	if !o.Against(m.Line[n-5] - m.Signal[n-5]) {
		return false
	}
	for i := n - 3; i < n; i++ {
		if o.Favors(m.Line[i] - m.Signal[i]) {
			return true
		}
	}
	return false
}

// DoublePattern compares the adverse extreme of the last 10 bars with that of the 30 bars
// before them (double bottom for LONG, double top for SHORT).
func DoublePattern(bars []models.Bar, o models.Orientation, tolerance float64) bool {
	n := len(bars)
	if n <= 10 {
		return false
	}
	start := n - 40
	if start < 0 {
		start = 0
	}
	recent := adverseExtreme(bars[n-10:], o)
	prior := adverseExtreme(bars[start:n-10], o)
	if prior == 0 || math.IsNaN(prior) || math.IsNaN(recent) {
		return false
	}
	return math.Abs(recent-prior)/math.Abs(prior) <= tolerance
}

// Aligned reports whether the last close moved in the trade's favor versus the prior one.
// An unchanged close is not aligned.
func Aligned(closes []float64, o models.Orientation) bool {
	d, ok := indicators.Slope(closes)
	return ok && o.Favors(d)
}

func adverseExtreme(bars []models.Bar, o models.Orientation) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	pick := func(b models.Bar) float64 {
		if o == models.OrientShort {
			return b.High
		}
		return b.Low
	}
	ext := pick(bars[0])
	for _, b := range bars[1:] {
		if v := pick(b); o.MoreExtreme(v, ext) {
			ext = v
		}
	}
	return ext
}
