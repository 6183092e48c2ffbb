package postgres

// Migrations creates the signal watchlist and the reference tables it joins against.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS sid_signals (
    symbol             TEXT PRIMARY KEY,
    direction          TEXT NOT NULL CHECK (direction IN ('LONG', 'SHORT')),
    rsi_touch_value    DOUBLE PRECISION NOT NULL,
    rsi_touch_date     TIMESTAMPTZ NOT NULL,
    extreme_price      DOUBLE PRECISION,
    is_ready           BOOLEAN NOT NULL DEFAULT FALSE,
    next_earnings      DATE,
    market_score       INTEGER NOT NULL DEFAULT 0,
    preferred          BOOLEAN NOT NULL DEFAULT FALSE,
    macd_cross         BOOLEAN NOT NULL DEFAULT FALSE,
    pattern_confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
    spy_alignment      BOOLEAN NOT NULL DEFAULT FALSE,
    sector_alignment   BOOLEAN NOT NULL DEFAULT FALSE,
    logic_trail        JSONB,
    stop_loss_strategy TEXT NOT NULL,
    exit_strategy      TEXT NOT NULL,
    stop_loss          DOUBLE PRECISION,
    fill_price         DOUBLE PRECISION,
    partial_exit_done  BOOLEAN NOT NULL DEFAULT FALSE,
    is_active          BOOLEAN NOT NULL DEFAULT FALSE,
    last_updated       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_sid_signals_state ON sid_signals (is_ready, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_sid_signals_score ON sid_signals (market_score DESC)`,
	`CREATE TABLE IF NOT EXISTS ticker_reference (
    symbol     TEXT PRIMARY KEY,
    exchange   TEXT,
    sector_etf TEXT
)`,
	`CREATE TABLE IF NOT EXISTS earnings_calendar (
    symbol      TEXT NOT NULL,
    report_date DATE NOT NULL,
    PRIMARY KEY (symbol, report_date)
)`,
}
