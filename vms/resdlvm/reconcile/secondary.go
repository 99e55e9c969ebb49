// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/queue"
)

// SecondaryLedger is the part of a secondary ledger driven by the
// reconciliation protocol. Implementations must be safe for concurrent use.
type SecondaryLedger interface {
	ShouldUpdate() bool
	InFlightUpdate() (*queue.Update, bool)
	HandleOutgoingUpdate() (*queue.Update, error)
	HandleIncomingUpdate(batchIndex, lastMintedID uint64) error
	HandleOutgoingRESDL(sender, receiver ids.ShortID, id uint64) (lock.Lock, error)
	HandleIncomingRESDL(receiver ids.ShortID, id uint64, l lock.Lock) error
}

// SecondaryController relays the messages of a secondary ledger on [chainID]
// to the primary ledger. An update that was in flight when the controller
// was created is sent again by the first upkeep.
type SecondaryController struct {
	log       log.Logger
	chainID   ids.ID
	ledger    SecondaryLedger
	transport Transport
	out       *outbox

	mu     sync.Mutex
	in     inbound
	resend bool
	rounds uint64
}

func NewSecondaryController(
	logger log.Logger,
	chainID ids.ID,
	ledger SecondaryLedger,
	transport Transport,
) *SecondaryController {
	return &SecondaryController{
		log:       logger,
		chainID:   chainID,
		ledger:    ledger,
		transport: transport,
		out:       newOutbox(),
		resend:    true,
	}
}

// CheckUpkeep reports whether PerformUpkeep has work to do.
func (c *SecondaryController) CheckUpkeep() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resend {
		if _, ok := c.ledger.InFlightUpdate(); ok {
			return true
		}
	}
	return c.ledger.ShouldUpdate() || c.out.len() != 0
}

// PerformUpkeep sends an update for the queued operations, if any, and
// retries messages the transport has not accepted yet.
func (c *SecondaryController) PerformUpkeep(ctx context.Context) error {
	if err := c.queueUpdate(); err != nil {
		return err
	}
	return c.out.flush(ctx, c.transport)
}

func (c *SecondaryController) queueUpdate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resend {
		if update, ok := c.ledger.InFlightUpdate(); ok {
			msg := newUpdateMessage(update)
			if err := c.out.push(c.chainID, msg); err != nil {
				return err
			}
			c.log.Info("resending reconciliation update",
				log.Stringer("chainID", c.chainID),
				log.Stringer("update", msg),
			)
		}
		c.resend = false
	}

	if !c.ledger.ShouldUpdate() {
		return nil
	}
	update, err := c.ledger.HandleOutgoingUpdate()
	if err != nil {
		return err
	}
	msg := newUpdateMessage(update)
	if err := c.out.push(c.chainID, msg); err != nil {
		return err
	}
	c.log.Debug("queued reconciliation update",
		log.Stringer("chainID", c.chainID),
		log.Stringer("update", msg),
	)
	return nil
}

// SendRelocation releases lock [id] of [sender] and sends it to [receiver]
// on the primary ledger.
func (c *SecondaryController) SendRelocation(ctx context.Context, sender, receiver ids.ShortID, id uint64) error {
	if err := c.queueRelocation(sender, receiver, id); err != nil {
		return err
	}
	return c.out.flush(ctx, c.transport)
}

func (c *SecondaryController) queueRelocation(sender, receiver ids.ShortID, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, err := c.ledger.HandleOutgoingRESDL(sender, receiver, id)
	if err != nil {
		return err
	}
	return c.out.push(c.chainID, &RelocationMessage{
		Receiver: receiver,
		LockID:   id,
		Lock:     l,
	})
}

// HandleMessage applies a message from the primary ledger. Messages that
// were already applied, and acknowledgments of batches that are not in
// flight, are dropped.
func (c *SecondaryController) HandleMessage(msg []byte) error {
	e, err := Parse(msg)
	if err != nil {
		return err
	}
	if e.ChainID != c.chainID {
		return fmt.Errorf("%w: %s", ErrWrongChain, e.ChainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.in.applied(e) {
		c.log.Debug("dropping redelivered message",
			log.Stringer("chainID", c.chainID),
			log.Uint64("sequence", e.Sequence),
		)
		return nil
	}

	switch m := e.Message.(type) {
	case *AckMessage:
		err := c.ledger.HandleIncomingUpdate(m.BatchIndex, m.LastMintedID)
		switch {
		case errors.Is(err, queue.ErrNoUpdateInProgress), errors.Is(err, queue.ErrUnexpectedBatch):
			c.log.Debug("dropping stale acknowledgment",
				log.Stringer("chainID", c.chainID),
				log.Stringer("ack", m),
				log.Err(err),
			)
		case err != nil:
			return fmt.Errorf("applying %s: %w", m, err)
		default:
			c.rounds++
			c.log.Info("reconciliation round completed",
				log.Stringer("chainID", c.chainID),
				log.Uint64("batchIndex", m.BatchIndex),
				log.Uint64("lastMintedID", m.LastMintedID),
			)
		}
	case *RelocationMessage:
		if err := c.ledger.HandleIncomingRESDL(m.Receiver, m.LockID, m.Lock); err != nil {
			return fmt.Errorf("applying %s: %w", m, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, e.Message)
	}
	c.in.record(e)
	return nil
}

// Rounds returns the number of acknowledged updates.
func (c *SecondaryController) Rounds() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rounds
}

// Run receives messages and performs upkeep every [interval] until [ctx] is
// done or the transport is closed.
func (c *SecondaryController) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return receiveLoop(ctx, c.log, c.transport, c.HandleMessage)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if !c.CheckUpkeep() {
				continue
			}
			if err := c.PerformUpkeep(ctx); err != nil {
				if errors.Is(err, ErrTransportClosed) {
					return err
				}
				c.log.Warn("upkeep failed",
					log.Stringer("chainID", c.chainID),
					log.Err(err),
				)
			}
		}
	})
	return ignoreShutdown(g.Wait())
}

// receiveLoop hands inbound messages to [handle]. Rejected messages are
// logged and skipped.
func receiveLoop(ctx context.Context, logger log.Logger, transport Transport, handle func([]byte) error) error {
	for {
		msg, err := transport.Receive(ctx)
		if err != nil {
			return err
		}
		if err := handle(msg); err != nil {
			logger.Warn("dropping message",
				log.Err(err),
			)
		}
	}
}

func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTransportClosed) {
		return nil
	}
	return err
}
