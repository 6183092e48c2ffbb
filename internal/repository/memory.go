package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sidbot/internal/domain/models"
	domrepo "sidbot/internal/domain/repository"
	"sidbot/pkg/util"
)

// MemorySignalStore is an in-process SignalStore for tests and dry runs.
type MemorySignalStore struct {
	mu   sync.RWMutex
	rows map[string]models.Signal
	now  func() time.Time
}

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{rows: make(map[string]models.Signal), now: time.Now}
}

func (s *MemorySignalStore) Upsert(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.LastUpdated.IsZero() {
		sig.LastUpdated = s.now().UTC()
	}
	s.rows[sig.Symbol] = cloneSignal(sig)
	return nil
}

func (s *MemorySignalStore) Get(_ context.Context, symbol string) (util.Optional[models.Signal], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.rows[symbol]
	if !ok {
		return util.None[models.Signal](), nil
	}
	return util.Some(cloneSignal(sig)), nil
}

func (s *MemorySignalStore) List(_ context.Context, filter models.SignalFilter) ([]models.Signal, error) {
	s.mu.RLock()
	out := make([]models.Signal, 0, len(s.rows))
	for _, sig := range s.rows {
		if filter.Matches(sig) {
			out = append(out, cloneSignal(sig))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if filter.OrderByScore && out[i].MarketScore != out[j].MarketScore {
			return out[i].MarketScore > out[j].MarketScore
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (s *MemorySignalStore) Update(_ context.Context, symbol string, u *models.SignalUpdate) error {
	if u.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.rows[symbol]
	if !ok {
		return fmt.Errorf("update signal %s: %w", symbol, domrepo.ErrNotFound)
	}
	u.Apply(&sig)
	sig.LastUpdated = s.now().UTC()
	s.rows[symbol] = sig
	return nil
}

func (s *MemorySignalStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	delete(s.rows, symbol)
	s.mu.Unlock()
	return nil
}

func cloneSignal(sig models.Signal) models.Signal {
	if sig.LogicTrail != nil {
		t := make(models.LogicTrail, len(sig.LogicTrail))
		for k, v := range sig.LogicTrail {
			t[k] = v
		}
		sig.LogicTrail = t
	}
	return sig
}

// MemoryBarStore keeps bars per (symbol, timeframe) sorted by timestamp.
type MemoryBarStore struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar
}

func NewMemoryBarStore() *MemoryBarStore {
	return &MemoryBarStore{bars: make(map[string][]models.Bar)}
}

func (s *MemoryBarStore) Init(context.Context) error { return nil }

func (s *MemoryBarStore) LatestBars(_ context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.bars[barKey(symbol, tf)]
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]models.Bar, len(series))
	copy(out, series)
	return out, nil
}

// UpsertBars replaces bars with an equal timestamp.
func (s *MemoryBarStore) UpsertBars(_ context.Context, bars []models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := make(map[string]struct{})
	for _, b := range bars {
		k := barKey(b.Symbol, b.Timeframe)
		series := s.bars[k]
		replaced := false
		for i := range series {
			if series[i].Timestamp.Equal(b.Timestamp) {
				series[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			series = append(series, b)
		}
		s.bars[k] = series
		touched[k] = struct{}{}
	}
	for k := range touched {
		series := s.bars[k]
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	}
	return nil
}

func barKey(symbol string, tf models.Timeframe) string { return symbol + "|" + string(tf) }

// MemoryReferenceData serves a fixed universe.
type MemoryReferenceData struct {
	Universe []string
	Sectors  map[string]string
	Venues   map[string]string
	Earnings map[string][]time.Time
}

func (r *MemoryReferenceData) Symbols(context.Context) ([]string, error) {
	out := make([]string, len(r.Universe))
	copy(out, r.Universe)
	return out, nil
}

func (r *MemoryReferenceData) SectorProxy(_ context.Context, symbol string) (util.Optional[string], error) {
	return lookup(r.Sectors, symbol), nil
}

func (r *MemoryReferenceData) Exchange(_ context.Context, symbol string) (util.Optional[string], error) {
	return lookup(r.Venues, symbol), nil
}

func (r *MemoryReferenceData) NextEarnings(_ context.Context, symbol string, from time.Time) (util.Optional[time.Time], error) {
	day := util.StartOfDay(from)
	best := util.None[time.Time]()
	for _, d := range r.Earnings[symbol] {
		if d.Before(day) {
			continue
		}
		if cur, ok := best.Get(); !ok || d.Before(cur) {
			best = util.Some(d)
		}
	}
	return best, nil
}

func lookup(m map[string]string, k string) util.Optional[string] {
	if v, ok := m[k]; ok && v != "" {
		return util.Some(v)
	}
	return util.None[string]()
}

var (
	_ domrepo.SignalStore   = (*MemorySignalStore)(nil)
	_ domrepo.BarStore      = (*MemoryBarStore)(nil)
	_ domrepo.ReferenceData = (*MemoryReferenceData)(nil)
)
