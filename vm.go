// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package resdl defines the lifecycle shared by reSDL ledger VMs.
package resdl

import (
	"context"
	"net/http"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

// VM is a ledger run by a chain.
type VM interface {
	// Initialize opens the ledger persisted in the context database
	Initialize(context.Context, *Context) error

	// SetState transitions the VM to the specified state
	SetState(context.Context, State) error

	// Shutdown cleanly stops the VM
	Shutdown(context.Context) error

	// Version returns the VM version
	Version(context.Context) (string, error)

	// CreateHandlers returns the HTTP handlers keyed by path extension
	CreateHandlers(context.Context) (map[string]http.Handler, error)
}

// Context holds the resources a chain hands to its VM.
type Context struct {
	ChainID    ids.ID
	Log        log.Logger
	DB         database.Database
	Registerer metric.Registerer

	// Config is the JSON encoded VM configuration. Empty means defaults.
	Config []byte
}
