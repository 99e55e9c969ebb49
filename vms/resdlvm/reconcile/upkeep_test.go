// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl/utils/units"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/reconcile/reconcilemock"
)

var errTest = errors.New("non-nil error")

func TestPerformUpkeepRetriesUnsentUpdate(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	require.NoError(env.secondary.Stake(alice, 0, 100, units.Year))

	var sent [][]byte
	record := func(_ context.Context, msg []byte) error {
		sent = append(sent, msg)
		return nil
	}
	transport := reconcilemock.NewTransport(ctrl)
	gomock.InOrder(
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errTest),
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(record),
	)
	controller := NewSecondaryController(log.NoLog{}, env.chainID, env.secondary, transport)

	ctx := context.Background()
	require.True(controller.CheckUpkeep())
	require.ErrorIs(controller.PerformUpkeep(ctx), errTest)

	// the batch is closed, only the unsent message is left
	require.False(env.secondary.ShouldUpdate())
	require.True(controller.CheckUpkeep())

	require.NoError(controller.PerformUpkeep(ctx))
	require.False(controller.CheckUpkeep())
	require.Len(sent, 1)

	e, err := Parse(sent[0])
	require.NoError(err)
	require.Equal(env.chainID, e.ChainID)
	require.Equal(uint64(1), e.Sequence)
	update, ok := e.Message.(*UpdateMessage)
	require.True(ok)
	require.Equal(uint64(1), update.NumNewLocks)
	require.Equal(int64(200), update.NetSupplyChange)
}

func TestSendRelocationKeepsUnsentMessage(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	require.NoError(env.secondary.Stake(alice, 0, 100, units.Year))
	require.NoError(env.secondaryController.PerformUpkeep(ctx))
	require.NoError(env.primaryController.HandleMessage(ctx, env.chainID, receive(t, env.primaryEnd)))
	require.NoError(env.secondaryController.HandleMessage(receive(t, env.secondaryEnd)))
	require.NoError(env.secondary.ExecuteQueuedOperations(alice, nil))

	var sent [][]byte
	transport := reconcilemock.NewTransport(ctrl)
	gomock.InOrder(
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errTest),
		transport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg []byte) error {
			sent = append(sent, msg)
			return nil
		}),
	)
	controller := NewSecondaryController(log.NoLog{}, env.chainID, env.secondary, transport)

	require.ErrorIs(controller.SendRelocation(ctx, alice, bob, 1), errTest)
	require.Empty(env.secondary.LockIDsByOwner(alice))
	require.True(controller.CheckUpkeep())

	require.NoError(controller.PerformUpkeep(ctx))
	require.Len(sent, 1)

	e, err := Parse(sent[0])
	require.NoError(err)
	relocation, ok := e.Message.(*RelocationMessage)
	require.True(ok)
	require.Equal(bob, relocation.Receiver)
	require.Equal(uint64(1), relocation.LockID)
	require.Equal(uint64(100), relocation.Lock.Amount)
}

// blockingSend returns a Send implementation that blocks until [release] is
// closed. [sending] is closed once the send started.
func blockingSend(sending, release chan struct{}) func(context.Context, []byte) error {
	return func(context.Context, []byte) error {
		close(sending)
		<-release
		return nil
	}
}

// callWithin fails the test if [f] does not return within a second.
func callWithin(t *testing.T, f func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- f()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		require.FailNow(t, "call blocked by a pending send")
		return nil
	}
}

func TestSecondaryHandlesMessagesWhileSending(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	require.NoError(env.secondary.Stake(alice, 0, 100, 0))

	sending := make(chan struct{})
	release := make(chan struct{})
	transport := reconcilemock.NewTransport(ctrl)
	transport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(blockingSend(sending, release))
	controller := NewSecondaryController(log.NoLog{}, env.chainID, env.secondary, transport)

	upkeepErr := make(chan error, 1)
	go func() {
		upkeepErr <- controller.PerformUpkeep(context.Background())
	}()
	<-sending

	relocation, err := Marshal(&Envelope{
		ChainID:  env.chainID,
		Session:  1,
		Sequence: 1,
		Message: &RelocationMessage{
			Receiver: bob,
			LockID:   7,
			Lock:     lock.Lock{Amount: 10},
		},
	})
	require.NoError(err)
	err = callWithin(t, func() error {
		return controller.HandleMessage(relocation)
	})
	close(release)
	require.NoError(err)
	require.NoError(<-upkeepErr)
	require.Equal([]uint64{7}, env.secondary.LockIDsByOwner(bob))
}

func TestPrimaryHandlesMessagesWhileSending(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	env := newTestEnv(t)
	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()

	id, err := env.primary.Stake(alice, 0, 100, 0)
	require.NoError(err)

	sending := make(chan struct{})
	release := make(chan struct{})
	transport := reconcilemock.NewTransport(ctrl)
	transport.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(blockingSend(sending, release))
	otherChain := ids.GenerateTestID()
	require.NoError(env.primaryController.Connect(otherChain, transport))

	relocationErr := make(chan error, 1)
	go func() {
		relocationErr <- env.primaryController.SendRelocation(ctx, otherChain, alice, bob, id)
	}()
	<-sending

	// other chains are served while the relocation is being sent
	require.NoError(env.secondary.Stake(alice, 0, 50, 0))
	require.NoError(env.secondaryController.PerformUpkeep(ctx))
	update := receive(t, env.primaryEnd)
	err = callWithin(t, func() error {
		return env.primaryController.HandleMessage(ctx, env.chainID, update)
	})
	close(release)
	require.NoError(err)
	require.NoError(<-relocationErr)

	require.NoError(env.secondaryController.HandleMessage(receive(t, env.secondaryEnd)))
	require.Equal(uint64(50), env.primary.RemoteSupply(env.chainID))
	require.Equal(uint64(100), env.primary.RemoteSupply(otherChain))
}
