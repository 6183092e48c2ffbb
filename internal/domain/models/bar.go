package models

import "time"

// Timeframe is a bar resolution.
type Timeframe string

const (
	TF1d Timeframe = "1d"
	TF1w Timeframe = "1w"
)

// IsValid reports whether tf is a stored resolution.
func (tf Timeframe) IsValid() bool {
	switch tf {
	case TF1d, TF1w:
		return true
	default:
		return false
	}
}

// Bar is one OHLCV record. Bars are immutable once written and ordered by Timestamp
// ascending per (Symbol, Timeframe).
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    uint64    `json:"volume"`
	Timeframe Timeframe `json:"timeframe"`
}

// Closes extracts the close series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
