package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

const testYAML = `
trading:
  exchange: lighter
  ticker: ETH
  quantity: "0.1"
  take_profit: "0.02"
  direction: buy
  max_orders: 40
  wait_time: 450s
  grid_step: "0.5"
  stop_price: "3000"
  pause_price: "2900"
  boost_mode: false
  close_refresh_interval: 10m

lighter:
  base_url: https://mainnet.zklighter.elliot.ai
  ws_url: wss://mainnet.zklighter.elliot.ai/stream
  private_key: deadbeef
  account_index: 7
  api_key_index: 2

notify:
  telegram_chat_id: "12345"

logging:
  level: debug
  format: json

metrics:
  port: 9091
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tr := cfg.Trading
	if tr.Exchange != "lighter" || tr.Ticker != "ETH" {
		t.Errorf("exchange/ticker = %q/%q", tr.Exchange, tr.Ticker)
	}
	if !tr.Quantity.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("quantity = %s, want 0.1", tr.Quantity)
	}
	if !tr.TakeProfit.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("take_profit = %s, want 0.02", tr.TakeProfit)
	}
	if tr.Direction != types.Buy {
		t.Errorf("direction = %q, want buy", tr.Direction)
	}
	if tr.WaitTime != 450*time.Second {
		t.Errorf("wait_time = %v, want 450s", tr.WaitTime)
	}
	if tr.CloseRefreshInterval != 10*time.Minute {
		t.Errorf("close_refresh_interval = %v, want 10m", tr.CloseRefreshInterval)
	}
	if !tr.GridStep.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("grid_step = %s, want 0.5", tr.GridStep)
	}
	if cfg.Lighter.AccountIndex != 7 || cfg.Lighter.APIKeyIndex != 2 {
		t.Errorf("lighter indices = %d/%d", cfg.Lighter.AccountIndex, cfg.Lighter.APIKeyIndex)
	}
	if cfg.Metrics.Port != 9091 {
		t.Errorf("metrics.port = %d, want 9091", cfg.Metrics.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	minimal := `
trading:
  exchange: lighter
  ticker: ETH
  quantity: "0.1"
  take_profit: "0.02"
  direction: sell
  max_orders: 10
  wait_time: 60s
lighter:
  private_key: deadbeef
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Omitted gates default to disabled.
	if !cfg.Trading.GridStep.Equal(decimal.RequireFromString("-100")) {
		t.Errorf("grid_step default = %s, want -100", cfg.Trading.GridStep)
	}
	if !cfg.Trading.StopPrice.Equal(decimal.RequireFromString("-1")) {
		t.Errorf("stop_price default = %s, want -1", cfg.Trading.StopPrice)
	}
	if !cfg.Trading.PausePrice.Equal(decimal.RequireFromString("-1")) {
		t.Errorf("pause_price default = %s, want -1", cfg.Trading.PausePrice)
	}
	if cfg.Trading.CloseRefreshInterval != 0 {
		t.Errorf("close_refresh_interval default = %v, want 0", cfg.Trading.CloseRefreshInterval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PERP_LIGHTER_PRIVATE_KEY", "cafef00d")
	t.Setenv("PERP_TELEGRAM_BOT_TOKEN", "tok-from-env")

	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Lighter.PrivateKey != "cafef00d" {
		t.Errorf("lighter.private_key = %q, want env override", cfg.Lighter.PrivateKey)
	}
	if cfg.Notify.TelegramBotToken != "tok-from-env" {
		t.Errorf("telegram token = %q, want env override", cfg.Notify.TelegramBotToken)
	}
}

func TestLoadMissingRequiredDecimal(t *testing.T) {
	noQuantity := `
trading:
  exchange: lighter
  ticker: ETH
  take_profit: "0.02"
  direction: buy
`
	if _, err := Load(writeConfig(t, noQuantity)); err == nil {
		t.Fatal("Load should fail without trading.quantity")
	}
}

func TestValidateFailures(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, testYAML))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad direction", func(c *Config) { c.Trading.Direction = "long" }},
		{"zero quantity", func(c *Config) { c.Trading.Quantity = decimal.Zero }},
		{"negative take profit", func(c *Config) { c.Trading.TakeProfit = decimal.NewFromInt(-1) }},
		{"zero max orders", func(c *Config) { c.Trading.MaxOrders = 0 }},
		{"zero wait time", func(c *Config) { c.Trading.WaitTime = 0 }},
		{"missing ticker", func(c *Config) { c.Trading.Ticker = "" }},
		{"missing lighter key", func(c *Config) { c.Lighter.PrivateKey = "" }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"pause above stop for buy", func(c *Config) {
			c.Trading.StopPrice = decimal.NewFromInt(3000)
			c.Trading.PausePrice = decimal.NewFromInt(3100)
		}},
		{"grvt missing credentials", func(c *Config) { c.Trading.Exchange = "grvt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate should fail for %s", tt.name)
			}
		})
	}
}

func TestValidatePauseBand(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	if err != nil {
		t.Fatal(err)
	}

	// Buy direction: pause must sit below stop so the bot pauses first.
	cfg.Trading.Direction = types.Buy
	cfg.Trading.StopPrice = decimal.NewFromInt(3000)
	cfg.Trading.PausePrice = decimal.NewFromInt(2900)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	// Sell direction mirrors: pause above stop.
	cfg.Trading.Direction = types.Sell
	cfg.Trading.StopPrice = decimal.NewFromInt(1000)
	cfg.Trading.PausePrice = decimal.NewFromInt(1100)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
