package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/settlement/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultRedisURL        = "redis://localhost:6379/0"
	defaultFeeRate         = "0.10"
	defaultMinWithdrawal   = "10.00"
	defaultPayoutAPIURL    = "https://api.whop.com"
	defaultOAuthAuthURL    = "https://whop.com/oauth"
	defaultOAuthTokenURL   = "https://api.whop.com/oauth/token"
	defaultProcessInterval = 30 * time.Second
	defaultTransferTimeout = 10 * time.Second
	defaultWorkers         = 4
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (development, production). Picks log format
	Environment string

	// Address on which the settlement service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis keeps OAuth state nonces
	RedisURL string

	// Signs seller access tokens
	SecretKey string

	// Platform share of every payment, like 0.10
	FeeRate string

	// Checks payment notification signatures if set
	WebhookSecret string

	// Smallest withdrawal, like 10.00
	MinWithdrawal string

	// Payout provider API and the platform credentials for it
	PayoutAPIURL   string
	PayoutAPIKey   string
	PayoutOriginID string

	// Bound for one transfer call, its expiry means provider is unavailable
	TransferTimeout time.Duration

	// OAuth client linking seller payout accounts
	OAuthClientID     string
	OAuthClientSecret string
	OAuthAuthURL      string
	OAuthTokenURL     string
	OAuthRedirectURL  string

	// Background withdrawal processing. Disabled if ProcessInterval is zero
	ProcessInterval time.Duration
	Workers         int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		Environment:     defaultEnvironment,
		ListenAddr:      defaultListenAddr,
		RedisURL:        defaultRedisURL,
		FeeRate:         defaultFeeRate,
		MinWithdrawal:   defaultMinWithdrawal,
		PayoutAPIURL:    defaultPayoutAPIURL,
		OAuthAuthURL:    defaultOAuthAuthURL,
		OAuthTokenURL:   defaultOAuthTokenURL,
		ProcessInterval: defaultProcessInterval,
		TransferTimeout: defaultTransferTimeout,
		Workers:         defaultWorkers,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = time.ParseDuration(value)
			}
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.Atoi(value)
			}
			return err
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":         setString(&c.ListenAddr),
		"DATABASE_URI":        setString(&c.DatabaseDSN),
		"REDIS_URL":           setString(&c.RedisURL),
		"SECRET_KEY":          setString(&c.SecretKey),
		"LOG_LEVEL":           setString(&c.LogLevel),
		"ENVIRONMENT":         setString(&c.Environment),
		"PLATFORM_FEE_RATE":   setString(&c.FeeRate),
		"WEBHOOK_SECRET":      setString(&c.WebhookSecret),
		"MIN_WITHDRAWAL":      setString(&c.MinWithdrawal),
		"PAYOUT_API_URL":      setString(&c.PayoutAPIURL),
		"PAYOUT_API_KEY":      setString(&c.PayoutAPIKey),
		"PAYOUT_ORIGIN_ID":    setString(&c.PayoutOriginID),
		"OAUTH_CLIENT_ID":     setString(&c.OAuthClientID),
		"OAUTH_CLIENT_SECRET": setString(&c.OAuthClientSecret),
		"OAUTH_AUTH_URL":      setString(&c.OAuthAuthURL),
		"OAUTH_TOKEN_URL":     setString(&c.OAuthTokenURL),
		"OAUTH_REDIRECT_URL":  setString(&c.OAuthRedirectURL),
		"PROCESS_INTERVAL":    setDuration(&c.ProcessInterval),
		"TRANSFER_TIMEOUT":    setDuration(&c.TransferTimeout),
		"PROCESS_WORKERS":     setInt(&c.Workers),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("settlement", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis url")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVar(&c.FeeRate, "fee-rate", c.FeeRate, "Platform fee rate, between 0 and 1")
	fs.StringVar(&c.WebhookSecret, "webhook-secret", c.WebhookSecret, "Payment notification signing secret")
	fs.StringVar(&c.MinWithdrawal, "min-withdrawal", c.MinWithdrawal, "Minimum withdrawal amount")
	fs.StringVar(&c.PayoutAPIURL, "payout-api", c.PayoutAPIURL, "Payout provider API url")
	fs.StringVar(&c.PayoutAPIKey, "payout-api-key", c.PayoutAPIKey, "Payout provider API key")
	fs.StringVar(&c.PayoutOriginID, "payout-origin", c.PayoutOriginID, "Platform account payouts are sent from")
	fs.StringVar(&c.OAuthClientID, "oauth-client-id", c.OAuthClientID, "OAuth client id")
	fs.StringVar(&c.OAuthClientSecret, "oauth-client-secret", c.OAuthClientSecret, "OAuth client secret")
	fs.StringVar(&c.OAuthAuthURL, "oauth-auth-url", c.OAuthAuthURL, "OAuth authorization url")
	fs.StringVar(&c.OAuthTokenURL, "oauth-token-url", c.OAuthTokenURL, "OAuth token url")
	fs.StringVar(&c.OAuthRedirectURL, "oauth-redirect-url", c.OAuthRedirectURL, "OAuth redirect url")
	fs.DurationVar(&c.ProcessInterval, "process-interval", c.ProcessInterval, "Pending withdrawals check interval, 0 disables")
	fs.DurationVar(&c.TransferTimeout, "transfer-timeout", c.TransferTimeout, "Timeout of one payout provider call")
	fs.IntVar(&c.Workers, "workers", c.Workers, "Withdrawal processing workers")

	return fs.Parse(args)
}

// Settings without which the service can't start
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.OAuthClientID == "" {
		errs = append(errs, errors.New("oauth client id is required"))
	}
	if c.TransferTimeout <= 0 {
		errs = append(errs, errors.New("transfer timeout must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	return errors.Join(errs...)
}
