// Package config provides process configuration for the bookkeeping engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/consensus"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/db"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/pathutil"
	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/reconcile"
)

// Config represents the application configuration.
type Config struct {
	Ledger    LedgerConfig
	Reconcile ReconcileConfig
	Retry     RetryConfig
	// ConsensusStrategy overrides the strategy of the rules file when set.
	ConsensusStrategy string `env:"CONSENSUS_STRATEGY"`
	Debug             bool   `env:"DEBUG"`
}

// LedgerConfig locates the ledger database and the files kept next to it.
type LedgerConfig struct {
	DataRoot        string `env:"LEDGER_DATA_ROOT" envDefault:"./data"`
	DBPath          string `env:"LEDGER_DB_PATH"`
	RulesPath       string `env:"AUDIT_RULES_PATH"`
	IncidentLogPath string `env:"INCIDENT_LOG_PATH"`
	JournalDir      string `env:"LEDGER_JOURNAL_DIR"`
}

// ReconcileConfig holds the matching sweep parameters.
type ReconcileConfig struct {
	Workers             int             `env:"RECONCILE_WORKERS" envDefault:"4"`
	QueueSize           int             `env:"RECONCILE_QUEUE_SIZE" envDefault:"64"`
	SimilarityThreshold float64         `env:"RECONCILE_SIMILARITY_THRESHOLD" envDefault:"0.8"`
	UnclaimedBonus      float64         `env:"RECONCILE_UNCLAIMED_BONUS" envDefault:"0.05"`
	AmountTolerance     decimal.Decimal `env:"RECONCILE_AMOUNT_TOLERANCE" envDefault:"0.01"`
	TimeWindow          time.Duration   `env:"RECONCILE_TIME_WINDOW" envDefault:"168h"`
	GroupWindow         time.Duration   `env:"RECONCILE_GROUP_WINDOW" envDefault:"30s"`
	Interval            time.Duration   `env:"RECONCILE_INTERVAL" envDefault:"1m"`
}

// RetryConfig bounds the retry of SQLite lock contention.
type RetryConfig struct {
	MaxAttempts     uint          `env:"RETRY_MAX_ATTEMPTS" envDefault:"5"`
	InitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"20ms"`
	MaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"1s"`
	Jitter          float64       `env:"RETRY_JITTER" envDefault:"0.5"`
}

// Load loads configuration from environment variables.
// It automatically loads .env file from the current directory if available.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Ledger.DataRoot != "" || c.Ledger.DBPath != "", "LEDGER_DATA_ROOT or LEDGER_DB_PATH must be set")
	check(c.Reconcile.Workers >= 1, "RECONCILE_WORKERS must be at least 1, got %d", c.Reconcile.Workers)
	check(c.Reconcile.QueueSize >= 1, "RECONCILE_QUEUE_SIZE must be at least 1, got %d", c.Reconcile.QueueSize)
	check(c.Reconcile.SimilarityThreshold > 0 && c.Reconcile.SimilarityThreshold <= 1,
		"RECONCILE_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.Reconcile.SimilarityThreshold)
	check(c.Reconcile.UnclaimedBonus >= 0 && c.Reconcile.UnclaimedBonus < 1,
		"RECONCILE_UNCLAIMED_BONUS must be in [0, 1), got %v", c.Reconcile.UnclaimedBonus)
	check(!c.Reconcile.AmountTolerance.IsNegative(), "RECONCILE_AMOUNT_TOLERANCE must not be negative, got %s", c.Reconcile.AmountTolerance)
	check(c.Reconcile.TimeWindow > 0, "RECONCILE_TIME_WINDOW must be positive, got %s", c.Reconcile.TimeWindow)
	check(c.Reconcile.GroupWindow >= 0, "RECONCILE_GROUP_WINDOW must not be negative, got %s", c.Reconcile.GroupWindow)
	check(c.Reconcile.Interval > 0, "RECONCILE_INTERVAL must be positive, got %s", c.Reconcile.Interval)
	check(c.Retry.MaxAttempts >= 1, "RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Retry.MaxAttempts)
	check(c.Retry.InitialInterval > 0, "RETRY_INITIAL_INTERVAL must be positive, got %s", c.Retry.InitialInterval)
	check(c.Retry.MaxInterval >= c.Retry.InitialInterval,
		"RETRY_MAX_INTERVAL %s must not be below RETRY_INITIAL_INTERVAL %s", c.Retry.MaxInterval, c.Retry.InitialInterval)
	check(c.Retry.Jitter >= 0 && c.Retry.Jitter < 1, "RETRY_JITTER must be in [0, 1), got %v", c.Retry.Jitter)
	if c.ConsensusStrategy != "" {
		_, err := consensus.ParseStrategy(c.ConsensusStrategy)
		check(err == nil, "CONSENSUS_STRATEGY: %v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v\nPlease check your .env file or environment variables", problems)
	}
	return nil
}

// Paths returns the path resolver for the configured data root.
func (c *Config) Paths() *pathutil.PathResolver {
	return pathutil.New(pathutil.Config{
		DataRoot:        c.Ledger.DataRoot,
		DatabasePath:    c.Ledger.DBPath,
		RulesPath:       c.Ledger.RulesPath,
		IncidentLogPath: c.Ledger.IncidentLogPath,
		JournalDir:      c.Ledger.JournalDir,
	})
}

// RetryPolicy returns the store retry policy.
func (c *Config) RetryPolicy() db.RetryPolicy {
	return db.RetryPolicy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		Jitter:          c.Retry.Jitter,
	}
}

// ReconcileConfig returns the matching engine parameters.
func (c *Config) ReconcileConfig() reconcile.Config {
	return reconcile.Config{
		Workers:             c.Reconcile.Workers,
		QueueSize:           c.Reconcile.QueueSize,
		SimilarityThreshold: c.Reconcile.SimilarityThreshold,
		UnclaimedBonus:      c.Reconcile.UnclaimedBonus,
		AmountTolerance:     c.Reconcile.AmountTolerance,
		TimeWindow:          c.Reconcile.TimeWindow,
		GroupWindow:         c.Reconcile.GroupWindow,
	}
}
