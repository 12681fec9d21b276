// Package config defines all configuration for the grid trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via PERP_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/zhanghongchuang/perp-dex-tools/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Trading  TradingConfig  `mapstructure:"trading"`
	Lighter  LighterConfig  `mapstructure:"lighter"`
	GRVT     GRVTConfig     `mapstructure:"grvt"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// TradingConfig tunes the grid strategy. One process runs one
// (exchange, ticker, direction) combination.
//
//   - Quantity: contract quantity per open order.
//   - TakeProfit: close offset in percent (0.02 means 0.02%).
//   - Direction: "buy" opens longs, "sell" opens shorts.
//   - MaxOrders: ceiling on simultaneously active close orders.
//   - WaitTime: base pacing delay between open attempts, in seconds.
//   - GridStep: minimum percent gap between the nearest existing close
//     order and a new one (-100 disables the gate).
//   - StopPrice: hard exit when price crosses it (-1 disables).
//   - PausePrice: soft pause when price crosses it (-1 disables).
//   - BoostMode: close fills immediately at market instead of resting limits.
//   - CloseRefreshInterval: re-quote close orders older than this at a
//     halved take-profit offset (0 disables).
type TradingConfig struct {
	Exchange             string          `mapstructure:"exchange"`
	Ticker               string          `mapstructure:"ticker"`
	ContractID           string          `mapstructure:"contract_id"`
	Quantity             decimal.Decimal `mapstructure:"-"`
	TakeProfit           decimal.Decimal `mapstructure:"-"`
	Direction            types.Side      `mapstructure:"direction"`
	MaxOrders            int             `mapstructure:"max_orders"`
	WaitTime             time.Duration   `mapstructure:"wait_time"`
	GridStep             decimal.Decimal `mapstructure:"-"`
	StopPrice            decimal.Decimal `mapstructure:"-"`
	PausePrice           decimal.Decimal `mapstructure:"-"`
	BoostMode            bool            `mapstructure:"boost_mode"`
	CloseRefreshInterval time.Duration   `mapstructure:"close_refresh_interval"`
}

// CloseOrderSide returns the side of take-profit orders: the opposite of
// the open direction.
func (t TradingConfig) CloseOrderSide() types.Side {
	return t.Direction.Opposite()
}

// LighterConfig holds Lighter API endpoints and credentials.
// The API key private key signs the account-orders stream auth token.
type LighterConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	WSURL        string `mapstructure:"ws_url"`
	APIKey       string `mapstructure:"api_key"`
	PrivateKey   string `mapstructure:"private_key"`
	AccountIndex int64  `mapstructure:"account_index"`
	APIKeyIndex  int64  `mapstructure:"api_key_index"`
}

// GRVTConfig holds GRVT API endpoints and credentials.
// PrivateKey signs orders (EIP-712); APIKey authenticates the REST session.
type GRVTConfig struct {
	Env              string `mapstructure:"env"`
	APIKey           string `mapstructure:"api_key"`
	PrivateKey       string `mapstructure:"private_key"`
	TradingAccountID string `mapstructure:"trading_account_id"`
}

// NotifyConfig configures notification sinks. Empty fields disable a sink;
// no sinks configured is a silent no-op.
type NotifyConfig struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	LarkWebhookURL   string `mapstructure:"lark_webhook_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the prometheus listener. Port 0 disables it.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: PERP_LIGHTER_PRIVATE_KEY, PERP_GRVT_API_KEY,
// PERP_GRVT_PRIVATE_KEY, PERP_TELEGRAM_BOT_TOKEN, PERP_LARK_WEBHOOK_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("PERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Decimal fields are parsed from strings so YAML floats never round-trip
	// through float64.
	var err error
	if cfg.Trading.Quantity, err = parseDecimal(v, "trading.quantity"); err != nil {
		return nil, err
	}
	if cfg.Trading.TakeProfit, err = parseDecimal(v, "trading.take_profit"); err != nil {
		return nil, err
	}
	if cfg.Trading.GridStep, err = parseDecimalDefault(v, "trading.grid_step", "-100"); err != nil {
		return nil, err
	}
	if cfg.Trading.StopPrice, err = parseDecimalDefault(v, "trading.stop_price", "-1"); err != nil {
		return nil, err
	}
	if cfg.Trading.PausePrice, err = parseDecimalDefault(v, "trading.pause_price", "-1"); err != nil {
		return nil, err
	}

	// Override sensitive fields from env
	if key := os.Getenv("PERP_LIGHTER_PRIVATE_KEY"); key != "" {
		cfg.Lighter.PrivateKey = key
	}
	if key := os.Getenv("PERP_GRVT_API_KEY"); key != "" {
		cfg.GRVT.APIKey = key
	}
	if key := os.Getenv("PERP_GRVT_PRIVATE_KEY"); key != "" {
		cfg.GRVT.PrivateKey = key
	}
	if tok := os.Getenv("PERP_TELEGRAM_BOT_TOKEN"); tok != "" {
		cfg.Notify.TelegramBotToken = tok
	}
	if url := os.Getenv("PERP_LARK_WEBHOOK_URL"); url != "" {
		cfg.Notify.LarkWebhookURL = url
	}

	return &cfg, nil
}

func parseDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	s := v.GetString(key)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%s is required", key)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func parseDecimalDefault(v *viper.Viper, key, def string) (decimal.Decimal, error) {
	s := v.GetString(key)
	if s == "" {
		s = def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	t := &c.Trading
	if t.Exchange == "" {
		return fmt.Errorf("trading.exchange is required")
	}
	if t.Ticker == "" {
		return fmt.Errorf("trading.ticker is required")
	}
	if !t.Direction.Valid() {
		return fmt.Errorf("trading.direction must be %q or %q", types.Buy, types.Sell)
	}
	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("trading.quantity must be > 0")
	}
	if t.TakeProfit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("trading.take_profit must be > 0")
	}
	if t.MaxOrders <= 0 {
		return fmt.Errorf("trading.max_orders must be > 0")
	}
	if t.WaitTime <= 0 {
		return fmt.Errorf("trading.wait_time must be > 0")
	}
	if t.CloseRefreshInterval < 0 {
		return fmt.Errorf("trading.close_refresh_interval must be >= 0")
	}
	stopSet := !t.StopPrice.Equal(decimal.NewFromInt(-1))
	pauseSet := !t.PausePrice.Equal(decimal.NewFromInt(-1))
	if stopSet && pauseSet {
		// The pause threshold must trigger before the stop threshold does,
		// otherwise the stop fires first and pause_price is dead config.
		if t.Direction == types.Buy && t.PausePrice.GreaterThanOrEqual(t.StopPrice) {
			return fmt.Errorf("trading.pause_price must be below stop_price for buy direction")
		}
		if t.Direction == types.Sell && t.PausePrice.LessThanOrEqual(t.StopPrice) {
			return fmt.Errorf("trading.pause_price must be above stop_price for sell direction")
		}
	}
	switch strings.ToLower(t.Exchange) {
	case "lighter":
		if c.Lighter.PrivateKey == "" {
			return fmt.Errorf("lighter.private_key is required (set PERP_LIGHTER_PRIVATE_KEY)")
		}
		if c.Lighter.AccountIndex < 0 {
			return fmt.Errorf("lighter.account_index must be >= 0")
		}
	case "grvt":
		if c.GRVT.APIKey == "" {
			return fmt.Errorf("grvt.api_key is required (set PERP_GRVT_API_KEY)")
		}
		if c.GRVT.PrivateKey == "" {
			return fmt.Errorf("grvt.private_key is required (set PERP_GRVT_PRIVATE_KEY)")
		}
		if c.GRVT.TradingAccountID == "" {
			return fmt.Errorf("grvt.trading_account_id is required")
		}
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid TCP port or 0")
	}
	return nil
}
