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

	lru "github.com/hashicorp/golang-lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

var (
	ErrUnknownChain   = errors.New("unknown chain")
	ErrChainConnected = errors.New("chain already connected")
)

// PrimaryLedger is the part of a primary ledger driven by the reconciliation
// protocol. Implementations must be safe for concurrent use and must answer a
// repeated update with the answer given the first time.
type PrimaryLedger interface {
	HandleIncomingUpdate(chainID ids.ID, batchIndex, numNewLocks uint64, supplyChange int64) (uint64, error)
	HandleOutgoingRESDL(chainID ids.ID, sender, receiver ids.ShortID, id uint64) (lock.Lock, error)
	HandleIncomingRESDL(chainID ids.ID, receiver ids.ShortID, id uint64, l lock.Lock) error
}

type replyKey struct {
	chainID    ids.ID
	batchIndex uint64
}

type connection struct {
	transport Transport
	out       *outbox
	in        inbound
}

// PrimaryController answers the updates of any number of secondary ledgers.
// Answers are cached by batch so that a repeated update is acknowledged
// again without going through the ledger.
type PrimaryController struct {
	log    log.Logger
	ledger PrimaryLedger

	mu      sync.Mutex
	chains  map[ids.ID]*connection
	replies *lru.Cache
}

func NewPrimaryController(logger log.Logger, ledger PrimaryLedger, replyCacheSize int) (*PrimaryController, error) {
	replies, err := lru.New(replyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply cache: %w", err)
	}
	return &PrimaryController{
		log:     logger,
		ledger:  ledger,
		chains:  make(map[ids.ID]*connection),
		replies: replies,
	}, nil
}

// Connect registers the transport to the secondary ledger on [chainID].
func (c *PrimaryController) Connect(chainID ids.ID, transport Transport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.chains[chainID]; ok {
		return fmt.Errorf("%w: %s", ErrChainConnected, chainID)
	}
	c.chains[chainID] = &connection{
		transport: transport,
		out:       newOutbox(),
	}
	return nil
}

// HandleMessage applies a message received from [chainID] and sends the
// answer, if any.
func (c *PrimaryController) HandleMessage(ctx context.Context, chainID ids.ID, msg []byte) error {
	conn, err := c.handleMessage(chainID, msg)
	if err != nil || conn == nil {
		return err
	}
	return conn.out.flush(ctx, conn.transport)
}

// handleMessage applies [msg] and queues the answer. It returns the
// connection to flush.
func (c *PrimaryController) handleMessage(chainID ids.ID, msg []byte) (*connection, error) {
	e, err := Parse(msg)
	if err != nil {
		return nil, err
	}
	if e.ChainID != chainID {
		return nil, fmt.Errorf("%w: %s on %s", ErrWrongChain, e.ChainID, chainID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}

	applied := conn.in.applied(e)
	switch m := e.Message.(type) {
	case *UpdateMessage:
		// redelivered updates are answered again
		lastMintedID, err := c.applyUpdate(chainID, m)
		if err != nil {
			return nil, fmt.Errorf("applying %s: %w", m, err)
		}
		err = conn.out.push(chainID, &AckMessage{
			BatchIndex:   m.BatchIndex,
			LastMintedID: lastMintedID,
		})
		if err != nil {
			return nil, err
		}
	case *RelocationMessage:
		if applied {
			c.log.Debug("dropping redelivered message",
				log.Stringer("chainID", chainID),
				log.Uint64("sequence", e.Sequence),
			)
			return nil, nil
		}
		if err := c.ledger.HandleIncomingRESDL(chainID, m.Receiver, m.LockID, m.Lock); err != nil {
			return nil, fmt.Errorf("applying %s: %w", m, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMessage, e.Message)
	}
	if !applied {
		conn.in.record(e)
	}
	return conn, nil
}

func (c *PrimaryController) applyUpdate(chainID ids.ID, m *UpdateMessage) (uint64, error) {
	key := replyKey{
		chainID:    chainID,
		batchIndex: m.BatchIndex,
	}
	if reply, ok := c.replies.Get(key); ok {
		c.log.Debug("answering repeated update",
			log.Stringer("chainID", chainID),
			log.Uint64("batchIndex", m.BatchIndex),
		)
		return reply.(uint64), nil
	}

	lastMintedID, err := c.ledger.HandleIncomingUpdate(chainID, m.BatchIndex, m.NumNewLocks, m.NetSupplyChange)
	if err != nil {
		return 0, err
	}
	c.replies.Add(key, lastMintedID)
	c.log.Info("applied reconciliation update",
		log.Stringer("chainID", chainID),
		log.Stringer("update", m),
		log.Uint64("lastMintedID", lastMintedID),
	)
	return lastMintedID, nil
}

// SendRelocation releases lock [id] of [sender] and sends it to [receiver]
// on [chainID].
func (c *PrimaryController) SendRelocation(ctx context.Context, chainID ids.ID, sender, receiver ids.ShortID, id uint64) error {
	conn, err := c.queueRelocation(chainID, sender, receiver, id)
	if err != nil {
		return err
	}
	return conn.out.flush(ctx, conn.transport)
}

func (c *PrimaryController) queueRelocation(chainID ids.ID, sender, receiver ids.ShortID, id uint64) (*connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chainID)
	}
	l, err := c.ledger.HandleOutgoingRESDL(chainID, sender, receiver, id)
	if err != nil {
		return nil, err
	}
	err = conn.out.push(chainID, &RelocationMessage{
		Receiver: receiver,
		LockID:   id,
		Lock:     l,
	})
	return conn, err
}

// Flush retries the messages the transports have not accepted yet.
func (c *PrimaryController) Flush(ctx context.Context) error {
	c.mu.Lock()
	conns := make([]*connection, 0, len(c.chains))
	for _, conn := range c.chains {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.out.flush(ctx, conn.transport); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run receives the messages of every connected chain and retries unsent
// answers every [interval] until [ctx] is done.
func (c *PrimaryController) Run(ctx context.Context, interval time.Duration) error {
	c.mu.Lock()
	chains := make(map[ids.ID]Transport, len(c.chains))
	for chainID, conn := range c.chains {
		chains[chainID] = conn.transport
	}
	c.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for chainID, transport := range chains {
		g.Go(func() error {
			err := receiveLoop(ctx, c.log, transport, func(msg []byte) error {
				return c.HandleMessage(ctx, chainID, msg)
			})
			return ignoreShutdown(err)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			if err := c.Flush(ctx); err != nil {
				c.log.Debug("flush failed",
					log.Err(err),
				)
			}
		}
	})
	return ignoreShutdown(g.Wait())
}
