// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package serve

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/config"
)

const (
	ConfigFileKey         = "config-file"
	HTTPAddressKey        = "http-address"
	AllowedOriginsKey     = "allowed-origins"
	BridgeAccountKey      = "bridge-account"
	SecondariesKey        = "secondaries"
	MaxBoostKey           = "max-boost"
	MinLockingDurationKey = "min-locking-duration"
	MaxLockingDurationKey = "max-locking-duration"
	MaxQueuedNewLocksKey  = "max-queued-new-locks"
	ReplyCacheSizeKey     = "reply-cache-size"
	UpkeepIntervalKey     = "upkeep-interval"

	envPrefix = "RESDL"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultConfig()

	flags.String(ConfigFileKey, "", "Config file to read flag values from (json, yaml or toml)")
	flags.String(HTTPAddressKey, "127.0.0.1:9650", "Address to serve the API and metrics on")
	flags.StringSlice(AllowedOriginsKey, []string{"*"}, "Origins allowed to make cross-origin API requests")
	flags.String(BridgeAccountKey, "", "Account holding the balance committed on secondary ledgers (required)")
	flags.Int(SecondariesKey, 1, "Number of secondary ledgers to run next to the primary ledger")
	flags.Uint64(MaxBoostKey, defaults.MaxBoost, "Boost multiplier of a lock of the maximum duration")
	flags.Uint64(MinLockingDurationKey, defaults.MinLockingDuration, "Minimum locking duration in seconds")
	flags.Uint64(MaxLockingDurationKey, defaults.MaxLockingDuration, "Maximum locking duration in seconds")
	flags.Int(MaxQueuedNewLocksKey, defaults.MaxQueuedNewLocks, "Maximum number of new locks a secondary ledger queues between updates")
	flags.Int(ReplyCacheSizeKey, defaults.ReplyCacheSize, "Number of update replies the primary ledger caches")
	flags.Duration(UpkeepIntervalKey, defaults.UpkeepInterval, "Interval between reconciliation attempts")
}

type Config struct {
	HTTPAddress    string
	AllowedOrigins []string
	Secondaries    int
	Primary        config.Config
	Secondary      config.Config
}

// ParseFlags resolves the flag values. Values set on the command line take
// precedence over RESDL_* environment variables, which take precedence over
// the config file.
func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile := v.GetString(ConfigFileKey); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", configFile, err)
		}
	}

	bridgeAccountStr := v.GetString(BridgeAccountKey)
	if bridgeAccountStr == "" {
		return nil, config.ErrMissingBridgeAccount
	}
	bridgeAccount, err := ids.ShortFromString(bridgeAccountStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", BridgeAccountKey, err)
	}

	primary := config.DefaultConfig()
	primary.BridgeAccount = bridgeAccount
	primary.MaxBoost = v.GetUint64(MaxBoostKey)
	primary.MinLockingDuration = v.GetUint64(MinLockingDurationKey)
	primary.MaxLockingDuration = v.GetUint64(MaxLockingDurationKey)
	primary.MaxQueuedNewLocks = v.GetInt(MaxQueuedNewLocksKey)
	primary.ReplyCacheSize = v.GetInt(ReplyCacheSizeKey)
	primary.UpkeepInterval = v.GetDuration(UpkeepIntervalKey)
	if err := primary.Verify(); err != nil {
		return nil, err
	}

	secondary := primary
	secondary.Role = config.Secondary
	secondary.BridgeAccount = ids.ShortEmpty
	if err := secondary.Verify(); err != nil {
		return nil, err
	}

	secondaries := v.GetInt(SecondariesKey)
	if secondaries < 0 {
		return nil, fmt.Errorf("invalid %s: %d", SecondariesKey, secondaries)
	}
	return &Config{
		HTTPAddress:    v.GetString(HTTPAddressKey),
		AllowedOrigins: v.GetStringSlice(AllowedOriginsKey),
		Secondaries:    secondaries,
		Primary:        primary,
		Secondary:      secondary,
	}, nil
}

// SecondaryChainID returns the chain id of the [i]th secondary ledger.
func SecondaryChainID(i int) ids.ID {
	return ids.ID{'r', 'e', 's', 'd', 'l', byte(i >> 8), byte(i)}
}
