package storeopen

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/config"
)

// LoadConfig resolves cmd's settings with flag > CALLFACTS_* env >
// config.toml > default precedence. Only the registry keys in flags are bound.
// It also returns the --config-dir override, empty when unset.
func LoadConfig(cmd *cobra.Command, flags []string) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flags)

	return config.FromViper(v), configDir, nil
}

// AddStorageFlags registers the store selection flags on cmd.
func AddStorageFlags(cmd *cobra.Command, cfg *config.StorageConfig) {
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cfg.Driver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cfg.SQLitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagJSONPath, &cfg.JSONPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cfg.PostgresDSN)
}
