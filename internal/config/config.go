// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const EnvPrefix = "WALLETWATCH"

type Config struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	RPCRatePerSecond  int           `mapstructure:"rpc_rate_per_second"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout"`
	Retries           int           `mapstructure:"retries"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RedisURL          string        `mapstructure:"redis_url"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	PriceWindow       time.Duration `mapstructure:"price_window"`
	TrendingWindow    time.Duration `mapstructure:"trending_window"`
	FailureLimit      int           `mapstructure:"failure_limit"`
	LowPriceThreshold float64       `mapstructure:"low_price_threshold"`
	MonthlyCostSol    string        `mapstructure:"monthly_cost_sol"`
	SubscriptionVault string        `mapstructure:"subscription_vault"`
	SignaturePageSize int           `mapstructure:"signature_page_limit"`
	AlarmCooldown     time.Duration `mapstructure:"alarm_cooldown"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	WebhookURL        string        `mapstructure:"webhook_url"`
	DebugLogging      bool          `mapstructure:"debug_logging"`
	LogFile           string        `mapstructure:"log_file"`
}

const (
	DefaultRPCURL            = "https://api.mainnet-beta.solana.com"
	DefaultRPCRatePerSecond  = 13
	DefaultTaskTimeout       = 20 * time.Second
	DefaultRetries           = 3
	DefaultRetryBaseDelay    = 500 * time.Millisecond
	DefaultRefreshInterval   = time.Minute
	DefaultPriceWindow       = 2 * time.Hour
	DefaultTrendingWindow    = time.Hour
	DefaultFailureLimit      = 5
	DefaultLowPriceThreshold = 1e-8
	DefaultMonthlyCostSol    = "0.25"
	DefaultSignaturePageSize = 100
	DefaultAlarmCooldown     = 5 * time.Minute
	DefaultMetricsAddr       = ":9090"
	DefaultLogFile           = "walletwatch.log"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"rpc_url":              DefaultRPCURL,
		"rpc_rate_per_second":  DefaultRPCRatePerSecond,
		"task_timeout":         DefaultTaskTimeout,
		"retries":              DefaultRetries,
		"retry_base_delay":     DefaultRetryBaseDelay,
		"redis_url":            "",
		"refresh_interval":     DefaultRefreshInterval,
		"price_window":         DefaultPriceWindow,
		"trending_window":      DefaultTrendingWindow,
		"failure_limit":        DefaultFailureLimit,
		"low_price_threshold":  DefaultLowPriceThreshold,
		"monthly_cost_sol":     DefaultMonthlyCostSol,
		"subscription_vault":   "",
		"signature_page_limit": DefaultSignaturePageSize,
		"alarm_cooldown":       DefaultAlarmCooldown,
		"metrics_addr":         DefaultMetricsAddr,
		"webhook_url":          "",
		"debug_logging":        false,
		"log_file":             DefaultLogFile,
	}
}

// LoadConfig читает файл (если путь задан), применяет значения по умолчанию
// и переменные окружения WALLETWATCH_*.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return &cfg, validateConfig(&cfg)
}

// MonthlyCost возвращает стоимость месяца подписки в SOL.
func (c *Config) MonthlyCost() decimal.Decimal {
	return decimal.RequireFromString(c.MonthlyCostSol)
}

// Vault возвращает кошелёк для оплаты подписки; ok=false, если он не настроен.
func (c *Config) Vault() (solana.PublicKey, bool) {
	if c.SubscriptionVault == "" {
		return solana.PublicKey{}, false
	}
	return solana.MustPublicKeyFromBase58(c.SubscriptionVault), true
}

func validateConfig(cfg *Config) error {
	if err := validateURL(cfg.RPCURL, "http"); err != nil {
		return fmt.Errorf("invalid rpc_url: %w", err)
	}
	if cfg.RedisURL != "" {
		if err := validateURL(cfg.RedisURL, "redis"); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, "http"); err != nil {
			return fmt.Errorf("invalid webhook_url: %w", err)
		}
	}
	if cfg.SubscriptionVault != "" {
		if _, err := solana.PublicKeyFromBase58(cfg.SubscriptionVault); err != nil {
			return fmt.Errorf("invalid subscription_vault: %w", err)
		}
	}
	cost, err := decimal.NewFromString(cfg.MonthlyCostSol)
	if err != nil {
		return fmt.Errorf("invalid monthly_cost_sol: %w", err)
	}
	if !cost.IsPositive() {
		return errors.New("monthly_cost_sol must be positive")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	switch {
	case cfg.RPCRatePerSecond <= 0:
		return errors.New("invalid rpc_rate_per_second")
	case cfg.TaskTimeout <= 0:
		return errors.New("invalid task_timeout")
	case cfg.Retries < 0:
		return errors.New("invalid retries count")
	case cfg.RefreshInterval <= 0:
		return errors.New("invalid refresh_interval")
	case cfg.TrendingWindow <= 0:
		return errors.New("invalid trending_window")
	case cfg.PriceWindow < time.Hour:
		// самое длинное окно алармов – 60 минут
		return errors.New("price_window must cover at least one hour")
	case cfg.FailureLimit <= 0:
		return errors.New("invalid failure_limit")
	case cfg.LowPriceThreshold < 0:
		return errors.New("invalid low_price_threshold")
	case cfg.SignaturePageSize <= 0 || cfg.SignaturePageSize > 1000:
		return errors.New("signature_page_limit must be in 1..1000")
	case cfg.AlarmCooldown < 0:
		return errors.New("invalid alarm_cooldown")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
