// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package plot is a wave.Backend that writes a gnuplot-readable
// step-function CSV of the pin-mask state over time, for quick visual
// inspection off a Raspberry Pi. Grounded on gnuplot_backend.c.
package plot

import (
	"bufio"
	"fmt"
	"io"

	"github.com/usedbytes/yapidh/wave"
)

// Backend writes "tick, mask" rows to w: a row at tick-1 with the state
// before a transition and a row at tick with the state after, so gnuplot's
// default linespoints produces a step plot rather than a ramp between
// samples.
type Backend struct {
	w        *bufio.Writer
	time     uint32
	mask     uint32 // accumulates this round's Rising/Falling as events arrive
	prevMask uint32 // mask as of the last AddDelay, i.e. before this round
}

// New wraps w. The header line names the columns for gnuplot's "set
// datafile" conventions.
func New(w io.Writer) *Backend {
	be := &Backend{w: bufio.NewWriter(w)}
	fmt.Fprintln(be.w, "# tick, mask")
	return be
}

// AddEvent implements wave.Backend.
func (be *Backend) AddEvent(src wave.Source) uint32 {
	var ev wave.Event
	t := src.GenEvent(&ev)
	be.mask |= ev.Rising
	be.mask &^= ev.Falling
	return t
}

// AddDelay implements wave.Backend. It prints the mask as it stood before
// this round's events at time-1, then the post-event mask at time, so a
// transition's pre-image is never overwritten by its own cause.
func (be *Backend) AddDelay(ticks uint32) {
	if be.time > 0 {
		fmt.Fprintf(be.w, "%d, %d\n", be.time-1, be.prevMask)
	}
	fmt.Fprintf(be.w, "%d, %d\n", be.time, be.mask)
	be.prevMask = be.mask
	be.time += ticks
}

// Flush flushes any buffered output.
func (be *Backend) Flush() error {
	return be.w.Flush()
}
