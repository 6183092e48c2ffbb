package repository

import (
	"context"
	"time"

	domrepo "sidbot/internal/domain/repository"
	"sidbot/pkg/cache"
	"sidbot/pkg/util"
)

// CachedReferenceData is a read-through cache in front of a ReferenceData source.
// Reference rows change at most daily, so entries live for ttl.
type CachedReferenceData struct {
	next  domrepo.ReferenceData
	cache cache.Service
	ttl   time.Duration
}

func NewCachedReferenceData(next domrepo.ReferenceData, c cache.Service, ttl time.Duration) *CachedReferenceData {
	return &CachedReferenceData{next: next, cache: c, ttl: ttl}
}

func (r *CachedReferenceData) Symbols(ctx context.Context) ([]string, error) {
	return cache.GetOrLoad(ctx, r.cache, cache.Key("ref", "symbols"), r.ttl, r.next.Symbols)
}

func (r *CachedReferenceData) SectorProxy(ctx context.Context, symbol string) (util.Optional[string], error) {
	return cache.GetOrLoad(ctx, r.cache, cache.Key("ref", "sector", symbol), r.ttl, func(ctx context.Context) (util.Optional[string], error) {
		return r.next.SectorProxy(ctx, symbol)
	})
}

func (r *CachedReferenceData) Exchange(ctx context.Context, symbol string) (util.Optional[string], error) {
	return cache.GetOrLoad(ctx, r.cache, cache.Key("ref", "exchange", symbol), r.ttl, func(ctx context.Context) (util.Optional[string], error) {
		return r.next.Exchange(ctx, symbol)
	})
}

// NextEarnings is keyed by the calendar day of from.
func (r *CachedReferenceData) NextEarnings(ctx context.Context, symbol string, from time.Time) (util.Optional[time.Time], error) {
	key := cache.Key("ref", "earnings", symbol, from.Format("2006-01-02"))
	return cache.GetOrLoad(ctx, r.cache, key, r.ttl, func(ctx context.Context) (util.Optional[time.Time], error) {
		return r.next.NextEarnings(ctx, symbol, from)
	})
}

var _ domrepo.ReferenceData = (*CachedReferenceData)(nil)
