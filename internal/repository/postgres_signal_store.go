package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sidbot/internal/domain/models"
	domrepo "sidbot/internal/domain/repository"
	applogger "sidbot/pkg/logger"
	"sidbot/pkg/postgres"
	"sidbot/pkg/util"
)

const signalColumns = `symbol, direction, rsi_touch_value, rsi_touch_date, extreme_price, is_ready, next_earnings,
    market_score, preferred, macd_cross, pattern_confirmed, spy_alignment, sector_alignment, logic_trail,
    stop_loss_strategy, exit_strategy, stop_loss, fill_price, partial_exit_done, is_active, last_updated`

// PGSignalStore implements SignalStore on the sid_signals table.
type PGSignalStore struct {
	pool *pgxpool.Pool
	l    *applogger.Logger
}

func NewPGSignalStore(pg *postgres.Client, l *applogger.Logger) *PGSignalStore {
	return &PGSignalStore{pool: pg.Pool(), l: l}
}

func (s *PGSignalStore) Upsert(ctx context.Context, sig models.Signal) error {
	trail, err := encodeTrail(sig.LogicTrail)
	if err != nil {
		return err
	}
	if sig.LastUpdated.IsZero() {
		sig.LastUpdated = time.Now().UTC()
	}
	q := `INSERT INTO sid_signals (` + signalColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
        ON CONFLICT (symbol) DO UPDATE SET
            direction = EXCLUDED.direction,
            rsi_touch_value = EXCLUDED.rsi_touch_value,
            rsi_touch_date = EXCLUDED.rsi_touch_date,
            extreme_price = EXCLUDED.extreme_price,
            is_ready = EXCLUDED.is_ready,
            next_earnings = EXCLUDED.next_earnings,
            market_score = EXCLUDED.market_score,
            preferred = EXCLUDED.preferred,
            macd_cross = EXCLUDED.macd_cross,
            pattern_confirmed = EXCLUDED.pattern_confirmed,
            spy_alignment = EXCLUDED.spy_alignment,
            sector_alignment = EXCLUDED.sector_alignment,
            logic_trail = EXCLUDED.logic_trail,
            stop_loss_strategy = EXCLUDED.stop_loss_strategy,
            exit_strategy = EXCLUDED.exit_strategy,
            stop_loss = EXCLUDED.stop_loss,
            fill_price = EXCLUDED.fill_price,
            partial_exit_done = EXCLUDED.partial_exit_done,
            is_active = EXCLUDED.is_active,
            last_updated = EXCLUDED.last_updated`
	_, err = s.pool.Exec(ctx, q,
		sig.Symbol, string(sig.Direction), sig.RSITouchValue, sig.RSITouchDate, sig.ExtremePrice.Ptr(),
		sig.IsReady, sig.NextEarnings.Ptr(), sig.MarketScore,
		sig.Flags.Preferred, sig.Flags.MACDCross, sig.Flags.PatternConfirmed, sig.Flags.SPYAlignment, sig.Flags.SectorAlignment,
		trail, string(sig.StopLossStrategy), string(sig.ExitStrategy), sig.StopLoss.Ptr(), sig.FillPrice.Ptr(),
		sig.PartialExitDone, sig.IsActive, sig.LastUpdated,
	)
	if err != nil {
		s.l.Error("postgres upsert signal error", applogger.Symbol(sig.Symbol), applogger.Error(err))
		return fmt.Errorf("upsert signal %s: %w", sig.Symbol, err)
	}
	return nil
}

func (s *PGSignalStore) Get(ctx context.Context, symbol string) (util.Optional[models.Signal], error) {
	row := s.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM sid_signals WHERE symbol = $1`, symbol)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return util.None[models.Signal](), nil
	}
	if err != nil {
		return util.None[models.Signal](), fmt.Errorf("get signal %s: %w", symbol, err)
	}
	return util.Some(sig), nil
}

func (s *PGSignalStore) List(ctx context.Context, filter models.SignalFilter) ([]models.Signal, error) {
	order := "symbol"
	if filter.OrderByScore {
		order = "market_score DESC, symbol"
	}
	q := `SELECT ` + signalColumns + ` FROM sid_signals
        WHERE ($1::boolean IS NULL OR is_ready = $1)
          AND ($2::boolean IS NULL OR is_active = $2)
        ORDER BY ` + order
	rows, err := s.pool.Query(ctx, q, filter.Ready.Ptr(), filter.Active.Ptr())
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *PGSignalStore) Update(ctx context.Context, symbol string, u *models.SignalUpdate) error {
	if u.Empty() {
		return nil
	}
	cols := u.Columns()
	vals := u.Values()
	sets := make([]string, 0, len(cols)+1)
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		v := vals[i]
		if c == "logic_trail" {
			t, _ := v.(models.LogicTrail)
			enc, err := encodeTrail(t)
			if err != nil {
				return err
			}
			v = enc
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	sets = append(sets, "last_updated = NOW()")
	args = append(args, symbol)
	q := fmt.Sprintf("UPDATE sid_signals SET %s WHERE symbol = $%d", strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		s.l.Error("postgres update signal error",
			applogger.Symbol(symbol),
			applogger.Strings("columns", cols),
			applogger.Error(err),
		)
		return fmt.Errorf("update signal %s: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update signal %s: %w", symbol, domrepo.ErrNotFound)
	}
	return nil
}

func (s *PGSignalStore) Delete(ctx context.Context, symbol string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sid_signals WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("delete signal %s: %w", symbol, err)
	}
	return nil
}

func scanSignal(row pgx.Row) (models.Signal, error) {
	var (
		sig                        models.Signal
		direction, stopStr, exitSt string
		extreme, stop, fill        *float64
		earnings                   *time.Time
		trail                      []byte
	)
	err := row.Scan(
		&sig.Symbol, &direction, &sig.RSITouchValue, &sig.RSITouchDate, &extreme, &sig.IsReady, &earnings,
		&sig.MarketScore, &sig.Flags.Preferred, &sig.Flags.MACDCross, &sig.Flags.PatternConfirmed,
		&sig.Flags.SPYAlignment, &sig.Flags.SectorAlignment, &trail,
		&stopStr, &exitSt, &stop, &fill, &sig.PartialExitDone, &sig.IsActive, &sig.LastUpdated,
	)
	if err != nil {
		return models.Signal{}, err
	}
	sig.Direction = models.Direction(direction)
	sig.StopLossStrategy = models.StopStrategy(stopStr)
	sig.ExitStrategy = models.ExitStrategy(exitSt)
	sig.ExtremePrice = util.FromPtr(extreme)
	sig.StopLoss = util.FromPtr(stop)
	sig.FillPrice = util.FromPtr(fill)
	sig.NextEarnings = util.FromPtr(earnings)
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &sig.LogicTrail); err != nil {
			return models.Signal{}, fmt.Errorf("decode logic_trail: %w", err)
		}
	}
	return sig, nil
}

func encodeTrail(t models.LogicTrail) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode logic_trail: %w", err)
	}
	return b, nil
}

var _ domrepo.SignalStore = (*PGSignalStore)(nil)
