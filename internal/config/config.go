// Package config loads runtime configuration from defaults, an optional config
// file, STAGEFARM_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"stagefarm/internal/domain"
	"stagefarm/internal/farm"
	"stagefarm/internal/schedule"
)

// EnvPrefix is the prefix of environment overrides, e.g. STAGEFARM_ENGINE_DEV_FEE_PPM.
const EnvPrefix = "STAGEFARM"

// Storage modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Clock modes.
const (
	ClockManual = "manual"
	ClockSlot   = "slot"
)

// EngineConfig configures the reward engine.
type EngineConfig struct {
	PrimaryToken      string `mapstructure:"primary_token"`
	SecondaryToken    string `mapstructure:"secondary_token"`
	PrimaryDecimals   int32  `mapstructure:"primary_decimals"`
	SecondaryDecimals int32  `mapstructure:"secondary_decimals"`
	Custody           string `mapstructure:"custody"`
	Treasury          string `mapstructure:"treasury"`
	RewardSource      string `mapstructure:"reward_source"`
	DevAddress        string `mapstructure:"dev_address"`
	DevFeePpm         uint32 `mapstructure:"dev_fee_ppm"`
	Owner             string `mapstructure:"owner"`
	GenesisIndex      uint64 `mapstructure:"genesis_index"`
	CapPayouts        bool   `mapstructure:"cap_payouts"`
}

// StorageConfig selects where journal, snapshots, balances and history live.
type StorageConfig struct {
	Mode          string `mapstructure:"mode"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
}

// ClockConfig selects the index source.
type ClockConfig struct {
	Mode       string `mapstructure:"mode"`
	WSEndpoint string `mapstructure:"ws_endpoint"`
	StartIndex uint64 `mapstructure:"start_index"`
}

// RedisConfig configures the commit event stream.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// SnapshotConfig configures periodic state snapshots.
type SnapshotConfig struct {
	Every uint64 `mapstructure:"every"`
}

// Config holds all runtime configuration.
type Config struct {
	LogLevel    string         `mapstructure:"log_level"`
	LogEncoding string         `mapstructure:"log_encoding"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Clock       ClockConfig    `mapstructure:"clock"`
	Redis       RedisConfig    `mapstructure:"redis"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Snapshot    SnapshotConfig `mapstructure:"snapshot"`
}

// SetDefaults registers built-in defaults and environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_encoding", "json")

	v.SetDefault("engine.primary_token", "ESM")
	v.SetDefault("engine.secondary_token", "ESG")
	v.SetDefault("engine.primary_decimals", 18)
	v.SetDefault("engine.secondary_decimals", 18)
	v.SetDefault("engine.custody", "farm")
	v.SetDefault("engine.treasury", "treasury")
	v.SetDefault("engine.reward_source", farm.SourceTreasury)
	v.SetDefault("engine.dev_address", "")
	v.SetDefault("engine.dev_fee_ppm", 0)
	v.SetDefault("engine.owner", "")
	v.SetDefault("engine.genesis_index", 0)
	v.SetDefault("engine.cap_payouts", true)

	v.SetDefault("storage.mode", StorageMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	v.SetDefault("clock.mode", ClockManual)
	v.SetDefault("clock.ws_endpoint", "")
	v.SetDefault("clock.start_index", 0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "stagefarm:commits")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("snapshot.every", 100)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from v, including configFile when set, and validates it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	e := c.Engine
	if e.PrimaryToken == "" || e.SecondaryToken == "" {
		errs = append(errs, errors.New("engine: reward tokens are required"))
	}
	if e.PrimaryToken != "" && e.PrimaryToken == e.SecondaryToken {
		errs = append(errs, errors.New("engine: primary and secondary token must differ"))
	}
	if e.Custody == "" {
		errs = append(errs, errors.New("engine: custody account is required"))
	}
	if e.Owner == "" {
		errs = append(errs, errors.New("engine: owner is required"))
	}
	switch e.RewardSource {
	case farm.SourceTreasury:
		if e.Treasury == "" {
			errs = append(errs, errors.New("engine: treasury source needs a treasury account"))
		}
	case farm.SourceMint, farm.SourcePrefunded:
	default:
		errs = append(errs, fmt.Errorf("engine: unknown reward source %q", e.RewardSource))
	}
	if e.DevFeePpm > farm.FeeDenominator {
		errs = append(errs, fmt.Errorf("engine: dev fee %d ppm exceeds %d", e.DevFeePpm, farm.FeeDenominator))
	}
	if e.PrimaryDecimals < 0 || e.SecondaryDecimals < 0 {
		errs = append(errs, errors.New("engine: token decimals must not be negative"))
	}

	switch c.Storage.Mode {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage: postgres mode needs postgres_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown mode %q", c.Storage.Mode))
	}

	switch c.Clock.Mode {
	case ClockManual:
	case ClockSlot:
		if c.Clock.WSEndpoint == "" {
			errs = append(errs, errors.New("clock: slot mode needs ws_endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("clock: unknown mode %q", c.Clock.Mode))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required when enabled"))
	}

	return errors.Join(errs...)
}

// FarmConfig returns the engine configuration.
func (c *Config) FarmConfig() farm.Config {
	return farm.Config{
		PrimaryToken:        domain.TokenID(c.Engine.PrimaryToken),
		SecondaryToken:      domain.TokenID(c.Engine.SecondaryToken),
		Custody:             domain.Account(c.Engine.Custody),
		DevAddress:          domain.Account(c.Engine.DevAddress),
		DevFeePpm:           c.Engine.DevFeePpm,
		CapPayoutsAtBalance: c.Engine.CapPayouts,
	}
}

// RewardSource builds the configured reward source.
func (c *Config) RewardSource() farm.RewardSource {
	e := c.Engine
	switch e.RewardSource {
	case farm.SourceMint:
		return &farm.MintSource{
			Custody:        domain.Account(e.Custody),
			PrimaryToken:   domain.TokenID(e.PrimaryToken),
			SecondaryToken: domain.TokenID(e.SecondaryToken),
		}
	case farm.SourcePrefunded:
		return farm.PrefundedSource{}
	}
	return &farm.TreasurySource{
		Treasury:       domain.Account(e.Treasury),
		Custody:        domain.Account(e.Custody),
		PrimaryToken:   domain.TokenID(e.PrimaryToken),
		SecondaryToken: domain.TokenID(e.SecondaryToken),
	}
}

// MintableTokens returns the tokens the ledger may mint: the reward tokens in mint mode, else none.
func (c *Config) MintableTokens() []domain.TokenID {
	if c.Engine.RewardSource != farm.SourceMint {
		return nil
	}
	return []domain.TokenID{domain.TokenID(c.Engine.PrimaryToken), domain.TokenID(c.Engine.SecondaryToken)}
}

// ScheduleOptions returns the schedule rules. A zero genesis index leaves the first stage unconstrained.
func (c *Config) ScheduleOptions() []schedule.Option {
	if c.Engine.GenesisIndex == 0 {
		return nil
	}
	return []schedule.Option{schedule.WithGenesis(c.Engine.GenesisIndex)}
}
