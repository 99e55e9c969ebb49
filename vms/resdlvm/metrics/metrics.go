// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"

	"github.com/luxfi/metric"
)

var _ Metrics = (*metricsImpl)(nil)

type Metrics interface {
	// MarkLedger records the aggregates of a ledger after an operation.
	MarkLedger(totalStaked, totalEffectiveBalance uint64, numLocks int)
	// MarkQueue records the reconciliation state of a secondary ledger.
	MarkQueue(supplyChange int64, updateBatchIndex uint64)
	MarkOperation(succeeded bool)
	IncRounds()
}

type metricsImpl struct {
	totalStaked           metric.Gauge
	totalEffectiveBalance metric.Gauge
	numLocks              metric.Gauge
	queuedSupplyChange    metric.Gauge
	updateBatchIndex      metric.Gauge

	operations       metric.Counter
	failedOperations metric.Counter
	rounds           metric.Counter
}

func New(registerer metric.Registerer) (Metrics, error) {
	m := &metricsImpl{
		totalStaked: metric.NewGauge(metric.GaugeOpts{
			Name: "resdl_total_staked",
			Help: "Principal held in locks",
		}),
		totalEffectiveBalance: metric.NewGauge(metric.GaugeOpts{
			Name: "resdl_total_effective_balance",
			Help: "Sum of the effective balances of every account",
		}),
		numLocks: metric.NewGauge(metric.GaugeOpts{
			Name: "resdl_num_locks",
			Help: "Number of minted locks",
		}),
		queuedSupplyChange: metric.NewGauge(metric.GaugeOpts{
			Name: "resdl_queued_supply_change",
			Help: "Net committed balance change not yet sent to the primary ledger",
		}),
		updateBatchIndex: metric.NewGauge(metric.GaugeOpts{
			Name: "resdl_update_batch_index",
			Help: "Index of the batch currently collecting queued operations",
		}),
		operations: metric.NewCounter(metric.CounterOpts{
			Name: "resdl_operations",
			Help: "Number of accepted ledger operations",
		}),
		failedOperations: metric.NewCounter(metric.CounterOpts{
			Name: "resdl_failed_operations",
			Help: "Number of rejected ledger operations",
		}),
		rounds: metric.NewCounter(metric.CounterOpts{
			Name: "resdl_reconciliation_rounds",
			Help: "Number of completed reconciliation rounds",
		}),
	}

	err := errors.Join(
		registerer.Register(metric.AsCollector(m.totalStaked)),
		registerer.Register(metric.AsCollector(m.totalEffectiveBalance)),
		registerer.Register(metric.AsCollector(m.numLocks)),
		registerer.Register(metric.AsCollector(m.queuedSupplyChange)),
		registerer.Register(metric.AsCollector(m.updateBatchIndex)),
		registerer.Register(metric.AsCollector(m.operations)),
		registerer.Register(metric.AsCollector(m.failedOperations)),
		registerer.Register(metric.AsCollector(m.rounds)),
	)
	return m, err
}

func (m *metricsImpl) MarkLedger(totalStaked, totalEffectiveBalance uint64, numLocks int) {
	m.totalStaked.Set(float64(totalStaked))
	m.totalEffectiveBalance.Set(float64(totalEffectiveBalance))
	m.numLocks.Set(float64(numLocks))
}

func (m *metricsImpl) MarkQueue(supplyChange int64, updateBatchIndex uint64) {
	m.queuedSupplyChange.Set(float64(supplyChange))
	m.updateBatchIndex.Set(float64(updateBatchIndex))
}

func (m *metricsImpl) MarkOperation(succeeded bool) {
	if succeeded {
		m.operations.Inc()
		return
	}
	m.failedOperations.Inc()
}

func (m *metricsImpl) IncRounds() {
	m.rounds.Inc()
}
