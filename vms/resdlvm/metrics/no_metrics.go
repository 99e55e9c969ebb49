// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

var Noop Metrics = noopMetrics{}

type noopMetrics struct{}

func (noopMetrics) MarkLedger(uint64, uint64, int) {}

func (noopMetrics) MarkQueue(int64, uint64) {}

func (noopMetrics) MarkOperation(bool) {}

func (noopMetrics) IncRounds() {}
