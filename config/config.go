// Package config loads the deployment surface of a runnable archetype
// process (spec.md §6.4): self identity, mailbox listen address, peer
// address table, optional monitor address, and constant bindings.
// Loaded via viper as YAML, merged with an optional per-environment
// overlay and environment variables, with a .env file loaded first via
// godotenv.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mpcal-lang/distsys/tlaval"
)

// PeerAddress is one entry of the peer address table: the peer
// identifier paired with the "host:port" of its mailbox listener.
type PeerAddress struct {
	ID   string `mapstructure:"id" json:"id"`
	Addr string `mapstructure:"addr" json:"addr"`
}

// Config is the unified configuration for one archetype process.
type Config struct {
	Self string `mapstructure:"self" json:"self"`

	Mailbox struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"mailbox" json:"mailbox"`

	Peers []PeerAddress `mapstructure:"peers" json:"peers"`

	Monitor struct {
		Addr           string `mapstructure:"addr" json:"addr"`
		PullIntervalMS int    `mapstructure:"pull_interval_ms" json:"pull_interval_ms"`
		TimeoutMS      int    `mapstructure:"timeout_ms" json:"timeout_ms"`
		HeartbeatMS    int    `mapstructure:"heartbeat_ms" json:"heartbeat_ms"`
	} `mapstructure:"monitor" json:"monitor"`

	Constants map[string]interface{} `mapstructure:"constants" json:"constants"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads default.yaml from the directory configPath (falling back to
// the current directory) and merges any env-specific overlay of the same
// directory, then MPCAL_-prefixed environment variables. The resulting
// configuration is stored in AppConfig and returned.
func Load(configPath, env string) (*Config, error) {
	_ = godotenv.Load(".env")

	viper.SetConfigName("default")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge %s config: %w", env, err)
		}
	}

	viper.SetEnvPrefix("MPCAL")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ARCHRUN_ENV environment
// variable to select the overlay, and ARCHRUN_CONFIG_PATH (defaulting
// to "config") to locate it.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("ARCHRUN_CONFIG_PATH")
	if path == "" {
		path = "config"
	}
	return Load(path, os.Getenv("ARCHRUN_ENV"))
}

// SelfValue decodes Self as a tlaval.Value, trying a number first (the
// common case — spec.md §6.4 "self: peer identifier, typically a
// Number") and falling back to a string identifier.
func (c *Config) SelfValue() tlaval.Value {
	return identifierValue(c.Self)
}

func identifierValue(s string) tlaval.Value {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprintf("%d", n) == s {
		return tlaval.NewNumber(n)
	}
	return tlaval.NewString(s)
}

// PeerAddrTable builds the lookup a mailbox.AddressFn closes over:
// peer-identifier display string -> "host:port".
func (c *Config) PeerAddrTable() map[string]string {
	table := make(map[string]string, len(c.Peers))
	for _, p := range c.Peers {
		table[p.ID] = p.Addr
	}
	return table
}
