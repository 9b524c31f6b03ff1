// Package config loads service settings from defaults, an optional TOML
// file, an optional .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	API      APIConfig      `toml:"api"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Notify   NotifyConfig   `toml:"notify"`
	Log      LogConfig      `toml:"log"`
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	SSLMode  string `toml:"sslmode"`
}

type APIConfig struct {
	Port      string   `toml:"port"`
	AuthToken string   `toml:"auth_token"`
	CORS      []string `toml:"cors_origins"`
}

type LedgerConfig struct {
	MinWithdrawal int64  `toml:"min_withdrawal_tokens"`
	PayoutRate    string `toml:"token_payout_rate"`
}

type NotifyConfig struct {
	SQSQueueURL string `toml:"sqs_queue_url"`
	Buffer      int    `toml:"buffer"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		API: APIConfig{
			Port: "8080",
			CORS: []string{"*"},
		},
		Ledger: LedgerConfig{
			MinWithdrawal: 20,
			PayoutRate:    "1",
		},
		Notify: NotifyConfig{
			Buffer: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. path names an optional TOML file and
// envFile an optional dotenv file; either may be empty. Variables already
// set in the environment win over the dotenv file.
func Load(path, envFile string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSLMODE")
	setString(&c.API.AuthToken, "AUTH_TOKEN")
	setString(&c.API.Port, "PORT")
	setString(&c.Ledger.PayoutRate, "TOKEN_PAYOUT_RATE")
	setString(&c.Notify.SQSQueueURL, "SQS_QUEUE_URL")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := env("CORS_ORIGINS"); v != "" {
		c.API.CORS = splitList(v)
	}
	if v := env("MIN_WITHDRAWAL_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MIN_WITHDRAWAL_TOKENS: %w", err)
		}
		c.Ledger.MinWithdrawal = n
	}
	if v := env("NOTIFY_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NOTIFY_BUFFER: %w", err)
		}
		c.Notify.Buffer = n
	}
	return nil
}

func (c Config) Validate() error {
	if c.Ledger.MinWithdrawal <= 0 {
		return errors.New("min withdrawal tokens must be positive")
	}
	rate, err := c.PayoutRate()
	if err != nil {
		return err
	}
	if !rate.IsPositive() {
		return errors.New("token payout rate must be positive")
	}
	if c.Notify.Buffer < 0 {
		return errors.New("notify buffer must not be negative")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// RequireServe checks the settings only the HTTP server needs.
func (c Config) RequireServe() error {
	if c.API.AuthToken == "" {
		return errors.New("AUTH_TOKEN is required")
	}
	return nil
}

// DatabaseURL returns the configured URL, or builds a keyword/value DSN from
// the DB_* settings.
func (c Config) DatabaseURL() (string, error) {
	db := c.Database
	if db.URL != "" {
		return db.URL, nil
	}
	if db.User == "" || db.Password == "" || db.Name == "" {
		return "", errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		db.Host,
		db.Port,
		db.User,
		db.Password,
		db.Name,
		db.SSLMode,
	), nil
}

func (c Config) PayoutRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.Ledger.PayoutRate))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("token payout rate %q: %w", c.Ledger.PayoutRate, err)
	}
	return rate, nil
}

func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
