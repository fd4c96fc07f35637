// Package config loads a Node's configuration from a file and/or
// environment variables. The teacher repo's Config struct carries
// `env:"..."` tags that nothing ever reads; this package is where those
// tags finally get wired up, via viper's BindEnv, the same way spf13/viper
// is used across the rest of the example pack.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/c12s/mlsttree/radio"
	"github.com/c12s/mlsttree/tree"
)

// NodeConfig is the on-disk/environment representation of mlst.Config,
// with env tags naming the variable viper binds each field to.
type NodeConfig struct {
	Self        uint16 `mapstructure:"self" env:"MLST_SELF"`
	IsRoot      bool   `mapstructure:"is_root" env:"MLST_IS_ROOT"`
	Variant     string `mapstructure:"variant" env:"MLST_VARIANT"`
	EnergyState uint8  `mapstructure:"energy_state" env:"MLST_ENERGY_STATE"`

	MaxNeighborAgeSeconds    int `mapstructure:"max_neighbor_age_seconds" env:"MLST_MAX_NEIGHBOR_AGE_SECONDS"`
	PeriodSeconds            int `mapstructure:"period_seconds" env:"MLST_PERIOD_SECONDS"`
	StayActivePeriods        int `mapstructure:"stay_active_periods" env:"MLST_STAY_ACTIVE_PERIODS"`
	MaxParentAgeSeconds      int `mapstructure:"max_parent_age_seconds" env:"MLST_MAX_PARENT_AGE_SECONDS"`

	UnicastTimeoutMillis int `mapstructure:"unicast_timeout_millis" env:"MLST_UNICAST_TIMEOUT_MILLIS"`
	UnicastMaxTries      int `mapstructure:"unicast_max_tries" env:"MLST_UNICAST_MAX_TRIES"`
}

var variantByName = map[string]tree.Variant{
	"base": tree.VariantBase,
	"ea1":  tree.VariantEA1,
	"ea2":  tree.VariantEA2,
	"ea3":  tree.VariantEA3,
}

// Load reads configuration from path (if non-empty) and the environment,
// with environment variables taking precedence, mirroring the
// file-then-env layering viper.AutomaticEnv gives every other config
// reader in the example pack.
func Load(path string) (NodeConfig, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v)

	v.SetDefault("variant", "base")
	v.SetDefault("max_neighbor_age_seconds", 15)
	v.SetDefault("period_seconds", 1)
	v.SetDefault("stay_active_periods", 3)
	v.SetDefault("max_parent_age_seconds", 5)
	v.SetDefault("unicast_timeout_millis", 200)
	v.SetDefault("unicast_max_tries", 5)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return NodeConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return NodeConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// bindEnv walks the env tags declared on NodeConfig and binds each field's
// mapstructure key to the named environment variable, so MLST_SELF=7
// overrides "self" in a config file without the caller having to repeat
// every key by hand.
func bindEnv(v *viper.Viper) {
	binds := map[string]string{
		"self":                          "MLST_SELF",
		"is_root":                       "MLST_IS_ROOT",
		"variant":                       "MLST_VARIANT",
		"energy_state":                  "MLST_ENERGY_STATE",
		"max_neighbor_age_seconds":      "MLST_MAX_NEIGHBOR_AGE_SECONDS",
		"period_seconds":                "MLST_PERIOD_SECONDS",
		"stay_active_periods":           "MLST_STAY_ACTIVE_PERIODS",
		"max_parent_age_seconds":        "MLST_MAX_PARENT_AGE_SECONDS",
		"unicast_timeout_millis":        "MLST_UNICAST_TIMEOUT_MILLIS",
		"unicast_max_tries":             "MLST_UNICAST_MAX_TRIES",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

// ToVariant resolves the configured variant name, defaulting to
// tree.VariantBase for an empty or unrecognized string.
func (c NodeConfig) ToVariant() tree.Variant {
	return variantByName[strings.ToLower(c.Variant)]
}

// SelfID returns the configured node id as a radio.NodeID.
func (c NodeConfig) SelfID() radio.NodeID { return radio.NodeID(c.Self) }

// MaxNeighborAge, Period, MaxParentAge, and UnicastTimeout convert the
// config's plain-integer durations into time.Duration for tree.Config and
// unicast.Config.
func (c NodeConfig) MaxNeighborAge() time.Duration {
	return time.Duration(c.MaxNeighborAgeSeconds) * time.Second
}

func (c NodeConfig) Period() time.Duration {
	return time.Duration(c.PeriodSeconds) * time.Second
}

func (c NodeConfig) MaxParentAge() time.Duration {
	return time.Duration(c.MaxParentAgeSeconds) * time.Second
}

func (c NodeConfig) UnicastTimeout() time.Duration {
	return time.Duration(c.UnicastTimeoutMillis) * time.Millisecond
}
