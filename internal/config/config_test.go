package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Schedule: ScheduleConfig{OpenTime: "09:00", CloseTime: "17:00"},
		Basket: BasketConfig{
			Long:  []LegConfig{{Pair: "BTC-USD", TargetNotional: 1000}},
			Short: []LegConfig{{Pair: "ETH-USD", TargetNotional: 1000}},
		},
	}
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Log.Level != "info" {
		t.Fatalf("expected log level default, got %q", cfg.Log.Level)
	}
	if cfg.REST.Timeout != 10*time.Second {
		t.Fatalf("expected rest timeout default, got %v", cfg.REST.Timeout)
	}
	if cfg.Schedule.Timezone != "UTC" {
		t.Fatalf("expected timezone default, got %q", cfg.Schedule.Timezone)
	}
	if cfg.Orders.PriceBuffer != 0.0075 {
		t.Fatalf("expected price buffer default, got %v", cfg.Orders.PriceBuffer)
	}
	if cfg.Orders.CancelSettle != 2*time.Second {
		t.Fatalf("expected cancel settle default, got %v", cfg.Orders.CancelSettle)
	}
	if cfg.Orders.SettleDelay != 30*time.Second {
		t.Fatalf("expected settle delay default, got %v", cfg.Orders.SettleDelay)
	}
	if cfg.Orders.VerifyRetryDelay != 5*time.Second {
		t.Fatalf("expected verify retry delay default, got %v", cfg.Orders.VerifyRetryDelay)
	}
	if cfg.Leverage.Long != 1 || cfg.Leverage.Short != 1 {
		t.Fatalf("expected leverage defaults, got %d/%d", cfg.Leverage.Long, cfg.Leverage.Short)
	}
	if cfg.History.QueueSize != 256 {
		t.Fatalf("expected history queue size default, got %d", cfg.History.QueueSize)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestDeadManSwitchDefaultsOn(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if !cfg.Safety.DeadManSwitchEnabled() {
		t.Fatalf("expected dead man switch enabled by default")
	}
	off := false
	cfg.Safety.DeadManSwitch = &off
	if cfg.Safety.DeadManSwitchEnabled() {
		t.Fatalf("expected explicit false to disable dead man switch")
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresScheduleTimes(t *testing.T) {
	cfg := validConfig()
	cfg.Schedule.OpenTime = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing open time")
	}
	cfg = validConfig()
	cfg.Schedule.CloseTime = "25:00"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for invalid close time")
	}
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Schedule.Timezone = "Mars/Olympus"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestValidateRequiresBasketLegs(t *testing.T) {
	cfg := validConfig()
	cfg.Basket = BasketConfig{}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for empty basket")
	}
}

func TestValidateRejectsNonPositiveNotional(t *testing.T) {
	cfg := validConfig()
	cfg.Basket.Long[0].TargetNotional = 0
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for zero target notional")
	}
}

func TestValidateRejectsDuplicatePairs(t *testing.T) {
	cfg := validConfig()
	cfg.Basket.Short[0].Pair = "BTC-USD"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for duplicate pair")
	}
}

func TestValidateRejectsBadPriceBuffer(t *testing.T) {
	cfg := validConfig()
	cfg.Orders.PriceBuffer = 1.5
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for price buffer >= 1")
	}
}

func TestValidateRequiresHistoryDSNWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.History.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing history dsn")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Path = "metrics"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("EXT_TELEGRAM_TOKEN", "")
	t.Setenv("EXT_TELEGRAM_CHAT_ID", "")
	cfg := validConfig()
	cfg.Telegram.Enabled = true
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("EXT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("EXT_TELEGRAM_CHAT_ID", "123")
	cfg := validConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestBaseURLEnvOverride(t *testing.T) {
	t.Setenv("EXT_BASE_URL", "https://testnet.extended.exchange/api/v1")
	cfg := validConfig()
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.REST.BaseURL != "https://testnet.extended.exchange/api/v1" {
		t.Fatalf("expected env base url override, got %q", cfg.REST.BaseURL)
	}
}
