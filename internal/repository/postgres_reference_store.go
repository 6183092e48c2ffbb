package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domrepo "sidbot/internal/domain/repository"
	"sidbot/pkg/postgres"
	"sidbot/pkg/util"
)

// PGReferenceStore reads the ticker universe and earnings calendar.
type PGReferenceStore struct {
	pool *pgxpool.Pool
}

func NewPGReferenceStore(pg *postgres.Client) *PGReferenceStore {
	return &PGReferenceStore{pool: pg.Pool()}
}

func (s *PGReferenceStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol FROM ticker_reference ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *PGReferenceStore) SectorProxy(ctx context.Context, symbol string) (util.Optional[string], error) {
	return s.column(ctx, "sector_etf", symbol)
}

func (s *PGReferenceStore) Exchange(ctx context.Context, symbol string) (util.Optional[string], error) {
	return s.column(ctx, "exchange", symbol)
}

func (s *PGReferenceStore) column(ctx context.Context, col, symbol string) (util.Optional[string], error) {
	var v *string
	err := s.pool.QueryRow(ctx, `SELECT `+col+` FROM ticker_reference WHERE symbol = $1`, symbol).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return util.None[string](), nil
	}
	if err != nil {
		return util.None[string](), fmt.Errorf("%s for %s: %w", col, symbol, err)
	}
	if v != nil && *v == "" {
		return util.None[string](), nil
	}
	return util.FromPtr(v), nil
}

// NextEarnings returns the earliest report date on or after from's calendar day.
func (s *PGReferenceStore) NextEarnings(ctx context.Context, symbol string, from time.Time) (util.Optional[time.Time], error) {
	var d *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(report_date) FROM earnings_calendar WHERE symbol = $1 AND report_date >= $2::date`,
		symbol, from.Format("2006-01-02"),
	).Scan(&d)
	if err != nil {
		return util.None[time.Time](), fmt.Errorf("next earnings for %s: %w", symbol, err)
	}
	return util.FromPtr(d), nil
}

var _ domrepo.ReferenceData = (*PGReferenceStore)(nil)
