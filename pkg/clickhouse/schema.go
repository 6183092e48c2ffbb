package clickhouse

import "fmt"

// BarsTable is the daily OHLCV table name inside the configured database.
const BarsTable = "market_data"

// BarsSchema creates the database and the bar table. ReplacingMergeTree keyed by
// (symbol, timeframe, ts) turns repeated inserts of the same bar into an upsert.
func BarsSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol     LowCardinality(String),
    timeframe  LowCardinality(String),
    ts         DateTime64(3, 'UTC'),
    open       Float64,
    high       Float64,
    low        Float64,
    close      Float64,
    volume     UInt64,
    updated_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (symbol, timeframe, ts)`, database, BarsTable),
	}
}
