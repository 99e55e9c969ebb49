// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package simulate

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/luxfi/resdl/utils/units"
)

const (
	AmountKey   = "amount"
	DurationKey = "duration"
	TimeoutKey  = "timeout"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.Uint64(AmountKey, 100, "Amount to lock on the secondary ledger")
	flags.Uint64(DurationKey, units.Year, "Locking duration in seconds")
	flags.Duration(TimeoutKey, 10*time.Second, "Time to wait for the lock to reach the primary ledger")
}

type Config struct {
	Amount   uint64
	Duration uint64
	Timeout  time.Duration
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

	timeout, err := flags.GetDuration(TimeoutKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Amount:   amount,
		Duration: duration,
		Timeout:  timeout,
	}, nil
}
