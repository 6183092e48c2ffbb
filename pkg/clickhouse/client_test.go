package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch",
		Port:        9000,
		User:        "default",
		Password:    "p@ss",
		DialTimeout: 5 * time.Second,
		MaxExecTime: time.Minute,
	}
	dsn := buildDSN(cfg, "default")
	if !strings.HasPrefix(dsn, "clickhouse://default:p%40ss@ch:9000/default?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if !strings.Contains(dsn, "dial_timeout=5s") || !strings.Contains(dsn, "max_execution_time=60") {
		t.Fatalf("missing settings in %q", dsn)
	}

	cfg.UseHTTP = true
	if dsn := buildDSN(cfg, "default"); !strings.HasPrefix(dsn, "http://") {
		t.Fatalf("http protocol not applied: %q", dsn)
	}
}

func TestBarsSchemaQualifiesDatabase(t *testing.T) {
	stmts := BarsSchema("sidbot")
	if len(stmts) != 2 || !strings.Contains(stmts[1], "sidbot.market_data") {
		t.Fatalf("unexpected schema %v", stmts)
	}
	if !strings.Contains(stmts[1], "ReplacingMergeTree") {
		t.Fatalf("bars must deduplicate on the sort key")
	}
}
