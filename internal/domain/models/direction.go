package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDirection = errors.New("invalid direction")

// Direction is the side of a setup.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Orientation is +1 for LONG and -1 for SHORT. Every rule that is mirrored between the two
// directions is written once in terms of it: a delta "favors" the trade when its product
// with the orientation is positive.
type Orientation int

const (
	OrientLong  Orientation = 1
	OrientShort Orientation = -1
)

// ParseDirection accepts LONG/SHORT in any case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

func (d Direction) Orientation() (Orientation, error) {
	switch d {
	case Long:
		return OrientLong, nil
	case Short:
		return OrientShort, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, string(d))
	}
}

func (o Orientation) Direction() Direction {
	if o == OrientShort {
		return Short
	}
	return Long
}

// Favors reports whether a signed move of delta is in the trade's favor.
func (o Orientation) Favors(delta float64) bool { return float64(o)*delta > 0 }

// Against reports whether a signed move of delta goes against the trade.
func (o Orientation) Against(delta float64) bool { return float64(o)*delta < 0 }

// EntrySide is the order side that opens a position.
func (o Orientation) EntrySide() Side {
	if o == OrientShort {
		return SideSell
	}
	return SideBuy
}

// ExitSide is the order side that reduces a position.
func (o Orientation) ExitSide() Side {
	if o == OrientShort {
		return SideBuy
	}
	return SideSell
}

// MoreExtreme reports whether candidate is further in the adverse direction than current:
// lower for LONG (tracking lows), higher for SHORT (tracking highs).
func (o Orientation) MoreExtreme(candidate, current float64) bool {
	return o.Against(candidate - current)
}

// StopStrategy selects how the protective stop is placed.
type StopStrategy string

const (
	StopFixedWhole StopStrategy = "FIXED_WHOLE"
	StopATRTrail   StopStrategy = "ATR_TRAIL"
)

func (s StopStrategy) IsValid() bool { return s == StopFixedWhole || s == StopATRTrail }

// ExitStrategy selects the exit rule set.
type ExitStrategy string

const (
	ExitFixed    ExitStrategy = "FIXED"
	ExitMomentum ExitStrategy = "MOMENTUM"
)

func (s ExitStrategy) IsValid() bool { return s == ExitFixed || s == ExitMomentum }
