// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInbound(t *testing.T) {
	require := require.New(t)

	var in inbound
	first := &Envelope{Session: 1, Sequence: 1}
	require.False(in.applied(first))
	in.record(first)
	require.True(in.applied(first))
	require.False(in.applied(&Envelope{Session: 1, Sequence: 2}))

	// a restarted sender numbers from 1 again
	restarted := &Envelope{Session: 2, Sequence: 1}
	require.False(in.applied(restarted))
	in.record(restarted)
	require.True(in.applied(restarted))
}

func TestOutboxSessions(t *testing.T) {
	require := require.New(t)

	a := newOutbox()
	b := newOutbox()
	require.NotZero(a.session)
	require.NotEqual(a.session, b.session)
}
