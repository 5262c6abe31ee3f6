package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	REST     RESTConfig     `yaml:"rest"`
	State    StateConfig    `yaml:"state"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Basket   BasketConfig   `yaml:"basket"`
	Leverage LeverageConfig `yaml:"leverage"`
	Orders   OrdersConfig   `yaml:"orders"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Telegram TelegramConfig `yaml:"telegram"`
	Safety   SafetyConfig   `yaml:"safety"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type ScheduleConfig struct {
	OpenTime  string `yaml:"open_time"`
	CloseTime string `yaml:"close_time"`
	Timezone  string `yaml:"timezone"`
}

type LegConfig struct {
	Pair           string  `yaml:"pair"`
	TargetNotional float64 `yaml:"target_notional"`
}

type BasketConfig struct {
	Long  []LegConfig `yaml:"long"`
	Short []LegConfig `yaml:"short"`
}

type LeverageConfig struct {
	Long  int `yaml:"long"`
	Short int `yaml:"short"`
}

type OrdersConfig struct {
	PriceBuffer      float64       `yaml:"price_buffer"`
	CancelSettle     time.Duration `yaml:"cancel_settle"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	VerifyRetryDelay time.Duration `yaml:"verify_retry_delay"`
	LegRetryDelay    time.Duration `yaml:"leg_retry_delay"`
}

type HistoryConfig struct {
	Enabled   bool   `yaml:"enabled"`
	DSN       string `yaml:"dsn"`
	Schema    string `yaml:"schema"`
	QueueSize int    `yaml:"queue_size"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type SafetyConfig struct {
	DeadManSwitch *bool `yaml:"dead_man_switch"`
}

// DeadManSwitchEnabled defaults to on; only an explicit false disables the
// startup cancel and shutdown sweep.
func (s SafetyConfig) DeadManSwitchEnabled() bool {
	return s.DeadManSwitch == nil || *s.DeadManSwitch
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("EXT_BASE_URL")); v != "" {
		cfg.REST.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EXT_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("EXT_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.extended.exchange/api/v1"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/extendedbot.db"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.Leverage.Long == 0 {
		cfg.Leverage.Long = 1
	}
	if cfg.Leverage.Short == 0 {
		cfg.Leverage.Short = 1
	}
	if cfg.Orders.PriceBuffer == 0 {
		cfg.Orders.PriceBuffer = 0.0075
	}
	if cfg.Orders.CancelSettle == 0 {
		cfg.Orders.CancelSettle = 2 * time.Second
	}
	if cfg.Orders.SettleDelay == 0 {
		cfg.Orders.SettleDelay = 30 * time.Second
	}
	if cfg.Orders.VerifyRetryDelay == 0 {
		cfg.Orders.VerifyRetryDelay = 5 * time.Second
	}
	if cfg.Orders.LegRetryDelay == 0 {
		cfg.Orders.LegRetryDelay = 2 * time.Second
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if !validDayTime(cfg.Schedule.OpenTime) {
		return errors.New("schedule.open_time must be HH:MM or HH:MM:SS")
	}
	if !validDayTime(cfg.Schedule.CloseTime) {
		return errors.New("schedule.close_time must be HH:MM or HH:MM:SS")
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone is invalid: %w", err)
	}
	if len(cfg.Basket.Long) == 0 && len(cfg.Basket.Short) == 0 {
		return errors.New("basket must define at least one leg")
	}
	seen := make(map[string]bool)
	for _, leg := range append(append([]LegConfig{}, cfg.Basket.Long...), cfg.Basket.Short...) {
		if leg.Pair == "" {
			return errors.New("basket leg pair is required")
		}
		if leg.TargetNotional <= 0 {
			return fmt.Errorf("basket leg %s target_notional must be > 0", leg.Pair)
		}
		if seen[leg.Pair] {
			return fmt.Errorf("basket leg %s appears more than once", leg.Pair)
		}
		seen[leg.Pair] = true
	}
	if cfg.Leverage.Long < 1 || cfg.Leverage.Short < 1 {
		return errors.New("leverage must be >= 1")
	}
	if cfg.Orders.PriceBuffer < 0 || cfg.Orders.PriceBuffer >= 1 {
		return errors.New("orders.price_buffer must be in [0, 1)")
	}
	if cfg.History.Enabled && cfg.History.DSN == "" {
		return errors.New("history.dsn is required when history is enabled")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func validDayTime(s string) bool {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
