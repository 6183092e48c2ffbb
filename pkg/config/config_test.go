package config

import (
	"strings"
	"testing"
	"time"

	"sidbot/internal/domain/models"
)

const minimal = `
alpaca:
  key_id: k
  secret_key: s
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := c.Strategy
	if s.MaxOpenPositions != 3 || s.RiskPerTrade != 0.01 {
		t.Fatalf("portfolio defaults: got %d / %v", s.MaxOpenPositions, s.RiskPerTrade)
	}
	if s.StopLossStrategy != models.StopATRTrail || s.ExitStrategy != models.ExitFixed {
		t.Fatalf("strategy defaults: got %s / %s", s.StopLossStrategy, s.ExitStrategy)
	}
	if s.ATRPeriod != 14 || s.ATRMultiplier != 3.0 {
		t.Fatalf("atr defaults: got %d / %v", s.ATRPeriod, s.ATRMultiplier)
	}
	if s.RSIOversold != 30 || s.RSIOverbought != 70 || s.RSIExitTarget != 50 {
		t.Fatalf("rsi defaults wrong: %+v", s)
	}
	if s.Weights.Preferred != 2 || s.Weights.SectorAlignment != 1 {
		t.Fatalf("weight defaults wrong: %+v", s.Weights)
	}
	if s.EarlyExitOnReversal {
		t.Fatalf("early exit must default off")
	}
	if c.Schedule.ExitPollInterval != 5*time.Minute || c.Schedule.PrepAt != "15:30" {
		t.Fatalf("schedule defaults wrong: %+v", c.Schedule)
	}
	if !c.Alpaca.Paper || c.Alpaca.BaseURL() != c.Alpaca.PaperURL {
		t.Fatalf("paper trading must be the default")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal + `
strategy:
  exit_strategy: MOMENTUM
  early_exit_on_reversal: true
  max_open_positions: 5
  preferred_symbols: [aapl, MSFT]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Strategy.ExitStrategy != models.ExitMomentum || !c.Strategy.EarlyExitOnReversal {
		t.Fatalf("overrides not applied: %+v", c.Strategy)
	}
	if c.Strategy.MaxOpenPositions != 5 {
		t.Fatalf("max_open_positions: got %d", c.Strategy.MaxOpenPositions)
	}
	if !c.Strategy.IsPreferred("AAPL") || c.Strategy.IsPreferred("TSLA") {
		t.Fatalf("IsPreferred mismatch")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown exit strategy": minimal + "strategy:\n  exit_strategy: SOMETIMES\n",
		"macd fast above slow":  minimal + "strategy:\n  macd_fast: 30\n",
		"thresholds inverted":   minimal + "strategy:\n  rsi_oversold: 60\n",
		"missing credentials":   "strategy:\n  max_open_positions: 2\n",
		"kafka without brokers": minimal + "kafka:\n  enabled: true\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	env := map[string]string{
		"APCA_API_KEY_ID": "env-key",
		"REDIS_ADDR":      "cache:6380",
		"KAFKA_BROKERS":   "k1:9092,k2:9092",
		"PAPER_TRADING":   "false",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	if err := c.applyEnv(lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if c.Alpaca.KeyID != "env-key" || c.Alpaca.Paper {
		t.Fatalf("alpaca overrides: %+v", c.Alpaca)
	}
	if c.Redis.Host != "cache" || c.Redis.Port != 6380 {
		t.Fatalf("redis overrides: %+v", c.Redis)
	}
	if !c.Kafka.Enabled || strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("kafka overrides: %+v", c.Kafka)
	}

	env = map[string]string{"REDIS_ADDR": "no-port"}
	if err := c.applyEnv(lookup); err == nil {
		t.Fatalf("expected error for malformed REDIS_ADDR")
	}
}
