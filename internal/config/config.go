package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	OpsPort     string `mapstructure:"OPS_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// MLLPAddress is the upstream hospital feed (host:port).
	MLLPAddress     string        `mapstructure:"MLLP_ADDRESS"`
	MLLPReadTimeout time.Duration `mapstructure:"MLLP_READ_TIMEOUT"`

	// PagerAddress is the base URL of the on-call paging channel.
	PagerAddress  string        `mapstructure:"PAGER_ADDRESS"`
	PagerTimeout  time.Duration `mapstructure:"PAGER_TIMEOUT"`
	PageRetryWait time.Duration `mapstructure:"PAGE_RETRY_WAIT"`

	ClassifierURL     string        `mapstructure:"CLASSIFIER_URL"`
	ClassifierTimeout time.Duration `mapstructure:"CLASSIFIER_TIMEOUT"`

	// AlertBudget bounds one alert sequence's wall clock, measured from
	// lab-result receipt.
	AlertBudget time.Duration `mapstructure:"ALERT_BUDGET"`

	// HistoryPath points at the historical creatinine CSV loaded when the
	// patients table is empty. Empty disables the preload.
	HistoryPath string `mapstructure:"HISTORY_PATH"`

	// PageLogPath enables the acknowledged-page recorder when set.
	PageLogPath string `mapstructure:"PAGE_LOG_PATH"`

	// EventQueueSize bounds the sequencer queue; a full queue delays the
	// feed acknowledgment.
	EventQueueSize int `mapstructure:"EVENT_QUEUE_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("OPS_PORT", "8000")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MLLP_READ_TIMEOUT", "60s")
	v.SetDefault("PAGER_TIMEOUT", "1s")
	v.SetDefault("PAGE_RETRY_WAIT", "500ms")
	v.SetDefault("CLASSIFIER_TIMEOUT", "2s")
	v.SetDefault("ALERT_BUDGET", "3s")
	v.SetDefault("EVENT_QUEUE_SIZE", 256)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("OPS_PORT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MLLP_ADDRESS")
	v.BindEnv("MLLP_READ_TIMEOUT")
	v.BindEnv("PAGER_ADDRESS")
	v.BindEnv("PAGER_TIMEOUT")
	v.BindEnv("PAGE_RETRY_WAIT")
	v.BindEnv("CLASSIFIER_URL")
	v.BindEnv("CLASSIFIER_TIMEOUT")
	v.BindEnv("ALERT_BUDGET")
	v.BindEnv("HISTORY_PATH")
	v.BindEnv("PAGE_LOG_PATH")
	v.BindEnv("EVENT_QUEUE_SIZE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run the full service.
// The migrate and load-history commands only need DATABASE_URL and skip
// this check.
func (c *Config) Validate() error {
	if c.MLLPAddress == "" {
		return fmt.Errorf("MLLP_ADDRESS is required")
	}
	if c.PagerAddress == "" {
		return fmt.Errorf("PAGER_ADDRESS is required")
	}
	if c.ClassifierURL == "" {
		return fmt.Errorf("CLASSIFIER_URL is required")
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize)
	}
	if c.AlertBudget <= 0 {
		return fmt.Errorf("ALERT_BUDGET must be positive, got %s", c.AlertBudget)
	}
	return nil
}
