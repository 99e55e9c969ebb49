// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package boost

import (
	"github.com/spf13/pflag"

	"github.com/luxfi/resdl/vms/resdlvm/boost"
	"github.com/luxfi/resdl/vms/resdlvm/config"
)

const (
	AmountKey             = "amount"
	DurationKey           = "duration"
	MaxBoostKey           = "max-boost"
	MinLockingDurationKey = "min-locking-duration"
	MaxLockingDurationKey = "max-locking-duration"
)

func AddFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultConfig()

	flags.Uint64(AmountKey, 0, "Amount to lock")
	flags.Uint64(DurationKey, 0, "Locking duration in seconds")
	flags.Uint64(MaxBoostKey, defaults.MaxBoost, "Boost multiplier of a lock of the maximum duration")
	flags.Uint64(MinLockingDurationKey, defaults.MinLockingDuration, "Minimum locking duration in seconds")
	flags.Uint64(MaxLockingDurationKey, defaults.MaxLockingDuration, "Maximum locking duration in seconds")
}

type Config struct {
	Amount   uint64
	Duration uint64
	Curve    *boost.Linear
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	amount, err := flags.GetUint64(AmountKey)
	if err != nil {
		return nil, err
	}

	duration, err := flags.GetUint64(DurationKey)
	if err != nil {
		return nil, err
	}

	maxBoost, err := flags.GetUint64(MaxBoostKey)
	if err != nil {
		return nil, err
	}

	minDuration, err := flags.GetUint64(MinLockingDurationKey)
	if err != nil {
		return nil, err
	}

	maxDuration, err := flags.GetUint64(MaxLockingDurationKey)
	if err != nil {
		return nil, err
	}

	curve, err := boost.NewLinear(maxBoost, minDuration, maxDuration)
	if err != nil {
		return nil, err
	}

	return &Config{
		Amount:   amount,
		Duration: duration,
		Curve:    curve,
	}, nil
}
