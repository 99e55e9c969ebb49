// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the reSDL VM.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/units"
	"github.com/luxfi/resdl/vms/resdlvm/boost"
)

var (
	ErrInvalidRole          = errors.New("invalid role")
	ErrMissingBridgeAccount = errors.New("missing bridge account")
	ErrInvalidQueueSize     = errors.New("invalid queue size")
	ErrInvalidCacheSize     = errors.New("invalid reply cache size")
	ErrInvalidInterval      = errors.New("invalid upkeep interval")
)

// Role selects which ledger a VM runs.
type Role string

const (
	Primary   Role = "primary"
	Secondary Role = "secondary"
)

func (r Role) Verify() error {
	switch r {
	case Primary, Secondary:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, r)
	}
}

// Config contains configuration parameters for the reSDL VM.
type Config struct {
	Role Role `json:"role"`

	// Boost curve
	MaxBoost           uint64 `json:"maxBoost"`
	MinLockingDuration uint64 `json:"minLockingDuration"` // seconds
	MaxLockingDuration uint64 `json:"maxLockingDuration"` // seconds

	// Secondary ledgers only
	MaxQueuedNewLocks int `json:"maxQueuedNewLocks"`

	// Primary ledgers only
	BridgeAccount ids.ShortID `json:"bridgeAccount"`

	// Reconciliation
	ChainID        ids.ID        `json:"chainId"`
	ReplyCacheSize int           `json:"replyCacheSize"`
	UpkeepInterval time.Duration `json:"upkeepInterval"`
}

// DefaultConfig returns the default configuration of a primary ledger.
func DefaultConfig() Config {
	return Config{
		Role:               Primary,
		MaxBoost:           4,
		MinLockingDuration: 0,
		MaxLockingDuration: 4 * units.Year,
		MaxQueuedNewLocks:  5,
		ReplyCacheSize:     1024,
		UpkeepInterval:     time.Minute,
	}
}

// Curve returns the boost curve described by the configuration.
func (c *Config) Curve() (*boost.Linear, error) {
	return boost.NewLinear(c.MaxBoost, c.MinLockingDuration, c.MaxLockingDuration)
}

func (c *Config) Verify() error {
	if err := c.Role.Verify(); err != nil {
		return err
	}
	if _, err := c.Curve(); err != nil {
		return err
	}
	switch {
	case c.Role == Primary && c.BridgeAccount == ids.ShortEmpty:
		return ErrMissingBridgeAccount
	case c.Role == Secondary && c.MaxQueuedNewLocks <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, c.MaxQueuedNewLocks)
	case c.ReplyCacheSize <= 0:
		return fmt.Errorf("%w: %d", ErrInvalidCacheSize, c.ReplyCacheSize)
	case c.UpkeepInterval <= 0:
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.UpkeepInterval)
	default:
		return nil
	}
}

// Parse parses a JSON configuration on top of the defaults.
func Parse(data []byte) (Config, error) {
	c := DefaultConfig()
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
