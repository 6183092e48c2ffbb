package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"sidbot/internal/domain/models"
	drepo "sidbot/internal/domain/repository"
	"sidbot/pkg/config"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/util"
)

// MarketSync pulls today's daily bar for the universe, the market index and every sector
// proxy, and upserts them into the bar store.
type MarketSync struct {
	env       Env
	strategy  config.Strategy
	batchSize int
	bars      drepo.BarStore
	ref       drepo.ReferenceData
	market    drepo.MarketData
}

func NewMarketSync(env Env, strategy config.Strategy, schedule config.Schedule, bars drepo.BarStore,
	ref drepo.ReferenceData, market drepo.MarketData) *MarketSync {
	return &MarketSync{
		env:       env,
		strategy:  strategy,
		batchSize: schedule.SyncBatchSize,
		bars:      bars,
		ref:       ref,
		market:    market,
	}
}

func (s *MarketSync) Run(ctx context.Context) error {
	symbols, err := s.symbols(ctx)
	if err != nil {
		return err
	}
	batches := util.Chunk(symbols, s.batchSize)
	ids := make([]string, len(batches))
	for i := range batches {
		ids[i] = strconv.Itoa(i)
	}
	written := 0
	res := runBatch(ctx, s.env, "sync", ids, func(ctx context.Context, id string) (outcome, error) {
		i, _ := strconv.Atoi(id)
		n, err := s.syncBatch(ctx, batches[i])
		written += n
		if err != nil {
			return "", err
		}
		return outcomeDone, nil
	})
	s.env.Log.Info("market sync complete",
		applogger.Int("symbols", len(symbols)),
		applogger.Int("batches", len(batches)),
		applogger.Int("failed_batches", len(res.Failed)),
		applogger.Int("bars", written),
	)
	return nil
}

func (s *MarketSync) syncBatch(ctx context.Context, symbols []string) (int, error) {
	snaps, err := s.market.DailySnapshots(ctx, symbols)
	if err != nil {
		return 0, fmt.Errorf("daily snapshots: %w", err)
	}
	bars := make([]models.Bar, 0, len(snaps))
	for _, sym := range symbols {
		b, ok := snaps[sym]
		if !ok {
			continue
		}
		b.Symbol = sym
		b.Timeframe = models.TF1d
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := s.bars.UpsertBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("upsert bars: %w", err)
	}
	return len(bars), nil
}

// symbols is the sorted, de-duplicated set of everything the prep stages read bars for.
func (s *MarketSync) symbols(ctx context.Context) ([]string, error) {
	universe, err := s.ref.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list universe: %w", err)
	}
	set := make(map[string]struct{}, len(universe)+1)
	add := func(sym string) {
		if sym = util.NormalizeSymbol(sym); sym != "" {
			set[sym] = struct{}{}
		}
	}
	add(s.strategy.MarketIndex)
	for _, sym := range universe {
		add(sym)
		proxy, err := s.ref.SectorProxy(ctx, sym)
		if err != nil {
			s.env.Log.Warn("sector proxy lookup failed", applogger.Symbol(sym), applogger.Error(err))
			continue
		}
		if etf, ok := proxy.Get(); ok {
			add(etf)
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}
