package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/punchamoorthee/payoutops/internal/domain"
)

// Config holds the settings shared by the api (receiver) and processor binaries.
type Config struct {
	DBSource      string
	Port          string
	ProcessorPort string
	Env           string

	CallbackSecret string
	ProcessorURL   string
	CallbackURL    string
	HTTPTimeout    time.Duration

	MaxWebhookAge    time.Duration
	MaxResendRetries int
	ResendLedgerTTL  time.Duration

	WebhookRetryAttempts int
	WebhookDelayMin      time.Duration
	WebhookDelayMax      time.Duration

	DispatchWorkers int
	DispatchQueue   int

	Currencies        domain.Currencies
	SimulatedStatuses []domain.Status
}

// ConfigFileEnv names an optional YAML file whose values sit below the environment.
const ConfigFileEnv = "PAYOUTOPS_CONFIG"

// MaxWebhookRetryAttempts bounds WEBHOOK_RETRY_ATTEMPTS.
const MaxWebhookRetryAttempts = 10

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("PROCESSOR_PORT", "9090")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("SHARED_CALLBACK_SECRET", "")
	v.SetDefault("PROCESSOR_URL", "http://localhost:9090")
	v.SetDefault("CALLBACK_URL", "http://localhost:8080/webhooks/payments")
	v.SetDefault("HTTP_TIMEOUT", "5s")
	v.SetDefault("MAX_WEBHOOK_AGE", "300s")
	v.SetDefault("MAX_RESEND_RETRIES", 3)
	v.SetDefault("RESEND_LEDGER_TTL", "0s")
	v.SetDefault("WEBHOOK_RETRY_ATTEMPTS", 3)
	v.SetDefault("WEBHOOK_DELAY_MIN", "1s")
	v.SetDefault("WEBHOOK_DELAY_MAX", "5s")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE", 100)
	v.SetDefault("VALID_CURRENCIES", strings.Join(domain.DefaultCurrencyCodes, ","))

	statuses := make([]string, 0)
	for _, s := range domain.DefaultSimulatedStatuses() {
		statuses = append(statuses, string(s))
	}
	v.SetDefault("PAYOUT_STATUSES", strings.Join(statuses, ","))
}

// Load reads defaults, the optional config file and then the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	secret := strings.TrimSpace(v.GetString("SHARED_CALLBACK_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("SHARED_CALLBACK_SECRET environment variable is required")
	}

	statuses, err := domain.ParseStatuses(splitList(v.GetString("PAYOUT_STATUSES")))
	if err != nil {
		return nil, fmt.Errorf("PAYOUT_STATUSES: %w", err)
	}

	currencies := domain.NewCurrencies(splitList(v.GetString("VALID_CURRENCIES")))
	if len(currencies) == 0 {
		return nil, fmt.Errorf("VALID_CURRENCIES must list at least one currency")
	}

	cfg := &Config{
		DBSource:             strings.TrimSpace(v.GetString("DB_SOURCE")),
		Port:                 v.GetString("SERVER_PORT"),
		ProcessorPort:        v.GetString("PROCESSOR_PORT"),
		Env:                  v.GetString("ENVIRONMENT"),
		CallbackSecret:       secret,
		ProcessorURL:         strings.TrimRight(v.GetString("PROCESSOR_URL"), "/"),
		CallbackURL:          v.GetString("CALLBACK_URL"),
		HTTPTimeout:          v.GetDuration("HTTP_TIMEOUT"),
		MaxWebhookAge:        v.GetDuration("MAX_WEBHOOK_AGE"),
		MaxResendRetries:     v.GetInt("MAX_RESEND_RETRIES"),
		ResendLedgerTTL:      v.GetDuration("RESEND_LEDGER_TTL"),
		WebhookRetryAttempts: v.GetInt("WEBHOOK_RETRY_ATTEMPTS"),
		WebhookDelayMin:      v.GetDuration("WEBHOOK_DELAY_MIN"),
		WebhookDelayMax:      v.GetDuration("WEBHOOK_DELAY_MAX"),
		DispatchWorkers:      v.GetInt("DISPATCH_WORKERS"),
		DispatchQueue:        v.GetInt("DISPATCH_QUEUE"),
		Currencies:           currencies,
		SimulatedStatuses:    statuses,
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if cfg.MaxWebhookAge <= 0 {
		return nil, fmt.Errorf("MAX_WEBHOOK_AGE must be positive")
	}
	if cfg.MaxResendRetries < 0 || cfg.WebhookRetryAttempts < 0 {
		return nil, fmt.Errorf("retry counts must not be negative")
	}
	if cfg.WebhookRetryAttempts > MaxWebhookRetryAttempts {
		return nil, fmt.Errorf("WEBHOOK_RETRY_ATTEMPTS must be <= %d", MaxWebhookRetryAttempts)
	}
	if cfg.WebhookDelayMin < 0 || cfg.WebhookDelayMax < cfg.WebhookDelayMin {
		return nil, fmt.Errorf("WEBHOOK_DELAY_MIN/MAX must satisfy 0 <= min <= max")
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = 1
	}
	if cfg.DispatchQueue <= 0 {
		cfg.DispatchQueue = 1
	}
	return cfg, nil
}

func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}
