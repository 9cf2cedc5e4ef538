package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stakebot/engine/internal/domain"
)

// Config is the full bot configuration.
type Config struct {
	Chain    ChainConfig    `yaml:"chain"`
	Engine   EngineConfig   `yaml:"engine"`
	Strategy StrategyConfig `yaml:"strategy"`
	Notify   NotifyConfig   `yaml:"notify"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// ChainConfig points at the BSC endpoints and the prediction contract.
// The private key is never read from YAML; only the PRIVATE_KEY
// environment variable (or .env) supplies it.
type ChainConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	WSURL      string `yaml:"ws_url"`
	Contract   string `yaml:"contract"`
	ChainID    int64  `yaml:"chain_id"`
	PrivateKey string `yaml:"-"`
}

// EngineConfig controls the loop cadence and run mode.
type EngineConfig struct {
	TickIntervalSeconds int     `yaml:"tick_interval_seconds"`
	RiskRefreshCron     string  `yaml:"risk_refresh_cron"`
	Paper               bool    `yaml:"paper"`
	PaperBalanceBNB     float64 `yaml:"paper_balance_bnb"`
}

// StrategyConfig holds the staking parameters. Amounts are BNB
// decimals in YAML and converted to wei at load time.
type StrategyConfig struct {
	Kind                 string  `yaml:"kind"` // flat_percentage | progressive_martingale
	BaseBetBNB           float64 `yaml:"base_bet_bnb"`
	FlatBetCount         int     `yaml:"flat_bet_count"`
	MartingaleMultiplier float64 `yaml:"martingale_multiplier"`
	FlatFraction         float64 `yaml:"flat_fraction"`
	MaxRiskFraction      float64 `yaml:"max_risk_fraction"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	CooldownRounds       int     `yaml:"cooldown_rounds"`
	BetWindowSeconds     int64   `yaml:"bet_window_seconds"`
	MinLiquidityBNB      float64 `yaml:"min_liquidity_bnb"`
	ClaimStreak          int     `yaml:"claim_streak"`
	MaxStreams           int     `yaml:"max_streams"`
}

// NotifyConfig enables the optional Telegram sink. Credentials come
// only from TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID.
type NotifyConfig struct {
	TelegramBotToken string `yaml:"-"`
	TelegramChatID   string `yaml:"-"`
}

// StorageConfig controls where history is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, ":memory:", or "" to disable
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// values override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TickInterval returns the decision loop cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalSeconds) * time.Second
}

// TelegramEnabled reports whether both Telegram credentials were set.
func (c *Config) TelegramEnabled() bool {
	return c.Notify.TelegramBotToken != "" && c.Notify.TelegramChatID != ""
}

// DomainStrategy converts the YAML strategy into the engine's
// wei-denominated form.
func (c *Config) DomainStrategy() domain.Strategy {
	return domain.Strategy{
		Kind:                 domain.StrategyKind(c.Strategy.Kind),
		BaseBetAmount:        BNBToWei(c.Strategy.BaseBetBNB),
		FlatBetCount:         c.Strategy.FlatBetCount,
		MartingaleMultiplier: c.Strategy.MartingaleMultiplier,
		FlatFraction:         c.Strategy.FlatFraction,
		MaxRiskFraction:      c.Strategy.MaxRiskFraction,
		MaxConsecutiveLosses: c.Strategy.MaxConsecutiveLosses,
		CooldownRounds:       c.Strategy.CooldownRounds,
		BetWindowSeconds:     c.Strategy.BetWindowSeconds,
		MinLiquidity:         BNBToWei(c.Strategy.MinLiquidityBNB),
		ClaimStreak:          c.Strategy.ClaimStreak,
		MaxStreams:           c.Strategy.MaxStreams,
	}
}

// BNBToWei converts a BNB decimal into wei, flooring sub-wei dust.
func BNBToWei(bnb float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(bnb), big.NewFloat(1e18)).Int(nil)
	return wei
}

// applyEnvOverrides pulls credentials and log settings from the
// environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.TelegramChatID = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills everything that may be omitted.
func setDefaults(cfg *Config) {
	if cfg.Chain.RPCURL == "" {
		cfg.Chain.RPCURL = "https://bsc-dataseed.binance.org"
	}
	if cfg.Chain.WSURL == "" {
		cfg.Chain.WSURL = "wss://bsc-ws-node.nariox.org:443"
	}
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 56
	}
	if cfg.Engine.TickIntervalSeconds <= 0 {
		cfg.Engine.TickIntervalSeconds = 1
	}
	if cfg.Engine.RiskRefreshCron == "" {
		cfg.Engine.RiskRefreshCron = "@every 5m"
	}
	if cfg.Engine.PaperBalanceBNB <= 0 {
		cfg.Engine.PaperBalanceBNB = 1.0
	}
	if cfg.Strategy.Kind == "" {
		cfg.Strategy.Kind = string(domain.StrategyProgressiveMartingale)
	}
	if cfg.Strategy.BaseBetBNB <= 0 {
		cfg.Strategy.BaseBetBNB = 0.01
	}
	if cfg.Strategy.FlatBetCount <= 0 {
		cfg.Strategy.FlatBetCount = 3
	}
	if cfg.Strategy.MartingaleMultiplier <= 1 {
		cfg.Strategy.MartingaleMultiplier = 2.1
	}
	if cfg.Strategy.FlatFraction <= 0 {
		cfg.Strategy.FlatFraction = 0.01
	}
	if cfg.Strategy.MaxRiskFraction <= 0 {
		cfg.Strategy.MaxRiskFraction = 0.05
	}
	if cfg.Strategy.MaxConsecutiveLosses <= 0 {
		cfg.Strategy.MaxConsecutiveLosses = 6
	}
	if cfg.Strategy.CooldownRounds <= 0 {
		cfg.Strategy.CooldownRounds = 12
	}
	if cfg.Strategy.BetWindowSeconds <= 0 {
		cfg.Strategy.BetWindowSeconds = 8
	}
	if cfg.Strategy.MinLiquidityBNB <= 0 {
		cfg.Strategy.MinLiquidityBNB = 5.0
	}
	if cfg.Strategy.ClaimStreak <= 0 {
		cfg.Strategy.ClaimStreak = 3
	}
	if cfg.Strategy.MaxStreams <= 0 {
		cfg.Strategy.MaxStreams = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rejects configurations the process cannot start with.
// Credential problems are the only fatal error class.
func validate(cfg *Config) error {
	if cfg.Chain.Contract == "" {
		return fmt.Errorf("config.Load: chain.contract is required: %w", domain.ErrConfig)
	}
	if !cfg.Engine.Paper && cfg.Chain.PrivateKey == "" {
		return fmt.Errorf("config.Load: PRIVATE_KEY is required for live mode: %w", domain.ErrConfig)
	}
	switch domain.StrategyKind(cfg.Strategy.Kind) {
	case domain.StrategyFlatPercentage, domain.StrategyProgressiveMartingale:
	default:
		return fmt.Errorf("config.Load: unknown strategy kind %q: %w", cfg.Strategy.Kind, domain.ErrConfig)
	}
	return nil
}
