package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sidbot/internal/domain/models"
	domrepo "sidbot/internal/domain/repository"
	pkgch "sidbot/pkg/clickhouse"
	applogger "sidbot/pkg/logger"
)

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	chunk int
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, l *applogger.Logger, chunk int) *CHBarStore {
	if chunk <= 0 {
		chunk = 500
	}
	return &CHBarStore{
		ch:    ch,
		db:    ch.DB(),
		table: ch.Database() + "." + pkgch.BarsTable,
		chunk: chunk,
		l:     l,
	}
}

func (s *CHBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pkgch.BarsSchema(s.ch.Database()))
}

func (s *CHBarStore) LatestBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT symbol, ts, open, high, low, close, volume, timeframe
        FROM %s FINAL
        WHERE symbol = ? AND timeframe = ?
        ORDER BY ts DESC
        LIMIT ?
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), limit)
	if err != nil {
		s.l.Error("clickhouse latest_bars query error",
			applogger.Symbol(symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("limit", limit),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, limit)
	for rows.Next() {
		var b models.Bar
		var tfs string
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &tfs); err != nil {
			s.l.Error("clickhouse latest_bars scan error", applogger.Symbol(symbol), applogger.Error(err))
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timeframe = models.Timeframe(tfs)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse latest_bars rows error", applogger.Symbol(symbol), applogger.Error(err))
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	s.l.Debug("clickhouse latest_bars ok",
		applogger.Symbol(symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// UpsertBars inserts in multi-row chunks. Re-inserted bars replace earlier versions at merge
// time and FINAL hides duplicates on read.
func (s *CHBarStore) UpsertBars(ctx context.Context, bars []models.Bar) error {
	for start := 0; start < len(bars); start += s.chunk {
		end := start + s.chunk
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Timestamp.IsZero() || !b.Timeframe.IsValid() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Symbol, string(b.Timeframe), b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse upsert_bars error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("upsert bars: %w", err)
		}
	}
	return nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
