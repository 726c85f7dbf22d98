// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package wave merges several event sources into a single timeline of
// (delay, rising-mask, falling-mask) operations and drives a Backend with
// it.
//
// A Source never emits rising and falling on the same pin within one Event,
// and no two sources drive one pin; that discipline is the caller's
// responsibility, same as in the reference C driver this package is based
// on. Generate ORs the masks of sources due on the same tick without
// checking them.
package wave

import "fmt"

// MaxSources bounds how many Source values a Context can hold.
//
// The multiplexer polls every source on every outer iteration, so this is
// also a rough upper bound on per-tick CPU work. Sized for four stepper
// motors plus two tone channels (§4.5's motor indices run 0-3).
const MaxSources = 6

// Event is a single (rising, falling) pin transition, disjoint by
// construction: rising&falling must be 0.
type Event struct {
	Rising  uint32
	Falling uint32
}

// Source produces a stream of Events, spaced by however many ticks until
// the next one is due.
//
// GenEvent populates ev in place (accumulating into whatever it already
// holds, so multiple sources due on the same tick can share one Event) and
// returns the number of ticks until this source next wants to run. The
// returned value must be strictly positive.
type Source interface {
	GenEvent(ev *Event) uint32
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ev *Event) uint32

// GenEvent calls f.
func (f SourceFunc) GenEvent(ev *Event) uint32 { return f(ev) }

// Backend is the sink a Context drives. Only AddEvent and AddDelay are
// required; StartWave/EndWave are optional lifecycle hooks called at most
// once per Generate call, in that order, if the concrete Backend exposes
// them (see StartEnder).
type Backend interface {
	// AddEvent asks src to generate its next event and accumulates the
	// resulting rising/falling masks. It must not emit a delay. It
	// returns the strictly-positive tick count src reported until its
	// next desired event.
	AddEvent(src Source) uint32
	// AddDelay emits the accumulated pending masks together with a delay
	// of the given number of ticks, then clears the pending masks.
	AddDelay(ticks uint32)
}

// StartEnder is implemented by backends that need bracketing calls around
// a whole Generate invocation, such as the DMA backend inserting a fence at
// the start and a dummy terminator at the end.
type StartEnder interface {
	StartWave()
	EndWave()
}

// errNonPositiveDelay is the message used when a Source misbehaves; it is a
// programming error, not a runtime condition, so callers panic on it the
// same way the reference implementation's assert(t[i] > 0) does.
func errNonPositiveDelay(i int, t uint32) string {
	return fmt.Sprintf("wave: source %d returned non-positive delay %d", i, int32(t))
}
