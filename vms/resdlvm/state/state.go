// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists ledger snapshots.
package state

import (
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"

	"github.com/luxfi/resdl/vms/resdlvm/pool"
)

var (
	SingletonPrefix = []byte("singleton")

	SnapshotKey = []byte("snapshot")
	HeightKey   = []byte("height")

	ErrCorrupted = errors.New("corrupted ledger state")
)

// State stores the latest snapshot of a ledger. Writes are buffered until
// Commit and discarded by Abort.
type State struct {
	baseDB      *versiondb.Database
	singletonDB database.Database
}

func New(db database.Database) *State {
	baseDB := versiondb.New(db)
	return &State{
		baseDB:      baseDB,
		singletonDB: prefixdb.New(SingletonPrefix, baseDB),
	}
}

// GetSnapshot returns the last stored snapshot. It returns
// database.ErrNotFound if nothing was stored yet.
func (s *State) GetSnapshot() (*pool.Snapshot, error) {
	bytes, err := s.singletonDB.Get(SnapshotKey)
	if err != nil {
		return nil, err
	}
	snapshot := &pool.Snapshot{}
	if _, err := Codec.Unmarshal(bytes, snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	return snapshot, nil
}

// PutSnapshot stores [snapshot] and bumps the height.
func (s *State) PutSnapshot(snapshot *pool.Snapshot) error {
	bytes, err := Codec.Marshal(CodecVersion, snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	height, err := s.GetHeight()
	if err != nil {
		return err
	}
	if err := s.singletonDB.Put(SnapshotKey, bytes); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return database.PutUInt64(s.singletonDB, HeightKey, height+1)
}

// GetHeight returns the number of stored snapshots.
func (s *State) GetHeight() (uint64, error) {
	height, err := database.GetUInt64(s.singletonDB, HeightKey)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return height, err
}

func (s *State) Commit() error {
	return s.baseDB.Commit()
}

func (s *State) Abort() {
	s.baseDB.Abort()
}

// Close closes the underlying database.
func (s *State) Close() error {
	return s.baseDB.Close()
}
