// Package config provides a reusable loader for meshstate node configuration
// files and environment variables, adapted from the teacher repo's
// pkg/config loader.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"meshstate/pkg/utils"
)

// Config is the unified configuration for a meshnode process: network
// binding, storage location, RPC exposure, bridge identity, and logging.
type Config struct {
	Network struct {
		ListenAddr           string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag         string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers       []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers             int      `mapstructure:"max_peers" json:"max_peers"`
		RootHeartbeatSeconds int      `mapstructure:"root_heartbeat_seconds" json:"root_heartbeat_seconds"`
	} `mapstructure:"network" json:"network"`

	Storage struct {
		DBPath        string `mapstructure:"db_path" json:"db_path"`
		SnapshotEvery int    `mapstructure:"snapshot_every" json:"snapshot_every"`
	} `mapstructure:"storage" json:"storage"`

	RPC struct {
		Enabled    bool   `mapstructure:"enabled" json:"enabled"`
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"rpc" json:"rpc"`

	Bridge struct {
		ID               string `mapstructure:"id" json:"id"`
		ConfirmationDeep int    `mapstructure:"confirmation_depth" json:"confirmation_depth"`
	} `mapstructure:"bridge" json:"bridge"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads config/default.yaml, merges an optional env-specific overlay
// (config/<env>.yaml), applies MESHSTATE_*-prefixed environment variable
// overrides, and unmarshals the result into AppConfig.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // optional local .env; absence is not an error

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/meshnode/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("MESHSTATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MESHSTATE_ENV environment
// variable to select the overlay file, defaulting to no overlay.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MESHSTATE_ENV", ""))
}
