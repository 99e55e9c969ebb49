// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of SDL. Amounts are held in uint64 base units with 6 decimals.
const (
	MicroSDL uint64 = 1
	MilliSDL uint64 = 1000 * MicroSDL
	SDL      uint64 = 1000 * MilliSDL
	KiloSDL  uint64 = 1000 * SDL
	MegaSDL  uint64 = 1000 * KiloSDL
)

// Durations in seconds, the unit lock start times, durations and expiries are
// recorded in.
const (
	Second uint64 = 1
	Minute uint64 = 60 * Second
	Hour   uint64 = 60 * Minute
	Day    uint64 = 24 * Hour
	Year   uint64 = 365 * Day
)
