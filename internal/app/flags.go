package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"stagefarm/internal/config"
	"stagefarm/internal/logging"
)

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"log-encoding":   "log_encoding",
	"storage-mode":   "storage.mode",
	"postgres-dsn":   "storage.postgres_dsn",
	"clickhouse-dsn": "storage.clickhouse_dsn",
}

// BindFlags registers the flags shared by every binary on cmd and binds them into v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info or warn")
	flags.String("log-encoding", "json", "log encoding: json or console")
	flags.String("storage-mode", config.StorageMemory, "storage mode: memory or postgres")
	flags.String("postgres-dsn", "", "Postgres connection string")
	flags.String("clickhouse-dsn", "", "ClickHouse connection string")

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration for cmd and builds the process logger.
func Load(cmd *cobra.Command, v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Build(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
