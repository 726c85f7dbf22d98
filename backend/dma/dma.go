// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dma drives the real waveform output: a ping-pong pair of DMA
// control-block chains in physically-contiguous memory, paced by the PWM
// peripheral's DREQ, so the ARM core builds the next wave's chain while the
// DMA engine plays the previous one. Grounded on pi_backend.c and
// pi_hw/pi_dma.c.
package dma

import (
	"fmt"

	"github.com/kr/pretty"

	"github.com/usedbytes/yapidh/host/bcm283x"
	"github.com/usedbytes/yapidh/wave"
)

const (
	tickUs = 10
	nCBs   = 4096

	// idleDelayTicks is the bootstrap loop's delay, matching
	// pi_backend.c's dma_delay(be->dma, 8000, ...) at a 10us tick.
	idleDelayTicks = 8000 / tickUs

	cbBytes = 32 // sizeof(bcm283x.ControlBlock): 8 uint32 words

	// cbsPerEvent is how many control blocks one wave.Backend.AddDelay
	// call emits: a rising-edge CB, a falling-edge CB, and a paced-delay
	// CB, always all three regardless of whether either mask is empty
	// (matching pi_backend_add_delay's unconditional three calls).
	cbsPerEvent = 3
)

// pacer is the subset of *bcm283x.Pacer the backend depends on.
type pacer interface {
	FIFOPhysAddr() uint32
	PerMap() uint32
	TickUs() uint32
}

// channel is the subset of *bcm283x.Channel the backend depends on.
type channel interface {
	Reset()
	Start(busAddr uint32)
}

// Backend is a wave.Backend and wave.StartEnder driving one DMA channel.
type Backend struct {
	phys *bcm283x.PhysMem // nil in tests built over a bare arena
	ch   channel
	pc   pacer

	gpioSetPhys uint32
	gpioClrPhys uint32

	cbs     []bcm283x.ControlBlock
	busBase uint32
	waveLen int

	waveIdx  int
	cursor   int // absolute index of the next free CB in the wave under construction
	fenceIdx int
	// prevTail is the terminator control block of the wave the DMA engine
	// is currently playing (or about to play); EndWave splices the wave
	// it just finished building onto it.
	prevTail int
	rising   uint32
	falling  uint32
	err      error
}

// New allocates DMA-visible memory, maps channel chanNum and a PWM pacer,
// and starts the channel looping idle.
func New(board bcm283x.Board, chanNum int, gpio *bcm283x.GPIO) (*Backend, error) {
	phys, err := bcm283x.AllocPhysMem(board, nCBs*cbBytes)
	if err != nil {
		return nil, fmt.Errorf("dma: alloc control block arena: %w", err)
	}
	ch, err := bcm283x.MapDMAChannel(board, chanNum)
	if err != nil {
		return nil, fmt.Errorf("dma: map channel %d: %w", chanNum, err)
	}
	pc, err := bcm283x.MapPWMPacer(board, tickUs)
	if err != nil {
		return nil, fmt.Errorf("dma: map pwm pacer: %w", err)
	}

	be := newBackend(phys.ControlBlocks(), phys.BusAddr(), gpio.PhysSet0(), gpio.PhysClr0(), pc, ch)
	be.phys = phys
	be.bootstrap()
	return be, nil
}

// newBackend builds a Backend over an already-allocated control-block
// arena. Split out of New so tests can exercise the chain-building logic
// over a plain slice, without mapping real hardware.
func newBackend(cbs []bcm283x.ControlBlock, busBase, gpioSetPhys, gpioClrPhys uint32, pc pacer, ch channel) *Backend {
	if len(cbs) < 2 {
		panic("dma: control block arena too small")
	}
	return &Backend{
		ch:          ch,
		pc:          pc,
		gpioSetPhys: gpioSetPhys,
		gpioClrPhys: gpioClrPhys,
		cbs:         cbs,
		busBase:     busBase,
		waveLen:     len(cbs) / 2,
	}
}

// MaxEventsPerWave is how many AddEvent/AddDelay pairs fit in one wave's
// half of the arena, after reserving slots for the leading fence and the
// trailing terminator.
func (be *Backend) MaxEventsPerWave() int {
	return (be.waveLen - 2) / cbsPerEvent
}

func (be *Backend) busAddr(idx int) uint32 {
	return be.busBase + uint32(idx)*cbBytes
}

func (be *Backend) waveStart(idx int) int { return idx * be.waveLen }

// bootstrap primes wave 0 with a fence followed by an idle delay looping
// back to itself, then starts the DMA channel running it. Grounded on
// pi_backend_create's bootstrap sequence.
func (be *Backend) bootstrap() {
	start := be.waveStart(0)
	fence := &be.cbs[start]
	fence.InitFence(be.busAddr(start))
	fence.NextCB = be.busAddr(start + 1)

	delay := &be.cbs[start+1]
	delay.InitPacedDelay(be.busAddr(start+1), be.pc.FIFOPhysAddr(), idleDelayTicks, be.pc.PerMap())
	delay.NextCB = be.busAddr(start)

	be.fenceIdx = start
	be.prevTail = start + 1
	be.waveIdx = 1

	be.ch.Reset()
	be.ch.Start(be.busAddr(start))
}

// StartWave begins a new control-block chain in the wave half not
// currently playing, opening it with a fence.
func (be *Backend) StartWave() {
	start := be.waveStart(be.waveIdx)
	be.cursor = start

	fence := &be.cbs[be.cursor]
	fence.InitFence(be.busAddr(be.cursor))
	fence.NextCB = be.busAddr(be.cursor + 1)
	be.fenceIdx = be.cursor
	be.cursor++
}

// AddEvent asks src for its next event, accumulating the resulting pin
// masks, and returns its requested tick count.
func (be *Backend) AddEvent(src wave.Source) uint32 {
	var ev wave.Event
	t := src.GenEvent(&ev)
	be.rising |= ev.Rising
	be.falling |= ev.Falling
	return t
}

// AddDelay emits the pending rising/falling edge and a paced-delay control
// block for ticks, then clears the pending masks. Mirrors
// pi_backend_add_delay's unconditional three-CB emission.
func (be *Backend) AddDelay(ticks uint32) {
	if be.err != nil {
		return
	}
	if be.cursor+cbsPerEvent+1 > be.waveStart(be.waveIdx)+be.waveLen {
		be.err = fmt.Errorf("dma: wave exceeded %d events, need a smaller Generate budget", be.MaxEventsPerWave())
		return
	}

	rising := &be.cbs[be.cursor]
	rising.InitEdge(be.busAddr(be.cursor), be.gpioSetPhys, be.rising)
	rising.NextCB = be.busAddr(be.cursor + 1)
	be.cursor++

	falling := &be.cbs[be.cursor]
	falling.InitEdge(be.busAddr(be.cursor), be.gpioClrPhys, be.falling)
	falling.NextCB = be.busAddr(be.cursor + 1)
	be.cursor++

	delay := &be.cbs[be.cursor]
	delay.InitPacedDelay(be.busAddr(be.cursor), be.pc.FIFOPhysAddr(), ticks, be.pc.PerMap())
	delay.NextCB = be.busAddr(be.cursor + 1)
	be.cursor++

	be.rising, be.falling = 0, 0
}

// EndWave closes the chain with a dummy terminator control block (so a
// long trailing delay can't have its NextCB read before the splice below
// runs), splices the previous wave's tail onto this wave's start, and
// flips which half is under construction next time. Grounded on
// pi_backend_wave_end.
func (be *Backend) EndWave() {
	if be.err != nil {
		return
	}
	if be.cursor >= be.waveStart(be.waveIdx)+be.waveLen {
		be.err = fmt.Errorf("dma: wave exceeded %d events, need a smaller Generate budget", be.MaxEventsPerWave())
		return
	}

	term := &be.cbs[be.cursor]
	term.InitFence(be.busAddr(be.cursor))
	term.NextCB = 0

	be.cbs[be.prevTail].NextCB = be.busAddr(be.waveStart(be.waveIdx))
	be.prevTail = be.cursor

	be.cursor = 0
	be.waveIdx = 1 - be.waveIdx
}

// Err returns the first error AddDelay/EndWave encountered since the
// backend was created, if the wave budget was exceeded.
func (be *Backend) Err() error { return be.err }

// WaitFence blocks until the most recently started wave's leading fence
// has been reached by the DMA engine, polling every pollMs milliseconds,
// or returns an error after timeoutMs. Grounded on dma_fence_wait.
func (be *Backend) WaitFence(timeoutMs, pollMs int) error {
	return waitFence(&be.cbs[be.fenceIdx], timeoutMs, pollMs)
}

// Dump renders the backend's two wave buffers for debugging.
func (be *Backend) Dump() string {
	return fmt.Sprintf("%# v", pretty.Formatter(be.cbs))
}

// Close stops the DMA channel and releases the control-block arena.
func (be *Backend) Close() error {
	be.ch.Reset()
	if be.phys != nil {
		return be.phys.Close()
	}
	return nil
}
