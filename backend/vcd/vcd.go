// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vcd is a wave.Backend that renders a waveform as a GTKWave-style
// Value Change Dump instead of driving real hardware, for development off
// a Raspberry Pi. Grounded on vcd_backend.c.
package vcd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/usedbytes/yapidh/wave"
)

// Backend writes one VCD change line per AddDelay call, at the 10us tick
// timescale the rest of the pipeline assumes.
type Backend struct {
	w    *bufio.Writer
	pins []uint32
	ids  map[uint32]byte

	time            uint32
	rising, falling uint32
}

// New declares pins (in the order they should appear in the VCD header)
// and writes the VCD preamble to w.
func New(w io.Writer, pins []uint32) *Backend {
	be := &Backend{
		w:    bufio.NewWriter(w),
		pins: append([]uint32(nil), pins...),
		ids:  make(map[uint32]byte, len(pins)),
	}

	fmt.Fprintf(be.w, "$timescale 10 us $end\n")
	for i, pin := range pins {
		id := byte('!' + i)
		be.ids[pin] = id
		fmt.Fprintf(be.w, "$var wire 1 %c pin%d $end\n", id, pin)
	}
	fmt.Fprintf(be.w, "$enddefinitions $end\n")

	return be
}

// AddEvent implements wave.Backend.
func (be *Backend) AddEvent(src wave.Source) uint32 {
	var ev wave.Event
	t := src.GenEvent(&ev)
	be.rising |= ev.Rising
	be.falling |= ev.Falling
	return t
}

// AddDelay implements wave.Backend, emitting one change line covering
// every pin that toggled since the last delay.
func (be *Backend) AddDelay(ticks uint32) {
	fmt.Fprintf(be.w, "#%d ", be.time)
	for pin := uint32(0); pin < 32; pin++ {
		mask := uint32(1) << pin
		id, known := be.ids[pin]
		if !known {
			continue
		}
		if be.rising&mask != 0 {
			fmt.Fprintf(be.w, "1%c ", id)
		}
		if be.falling&mask != 0 {
			fmt.Fprintf(be.w, "0%c ", id)
		}
	}
	fmt.Fprintf(be.w, "\n")

	be.rising, be.falling = 0, 0
	be.time += ticks
}

// Flush flushes any buffered output, which callers should do before
// process exit.
func (be *Backend) Flush() error {
	return be.w.Flush()
}
