// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"fmt"
	"time"
	"unsafe"
)

const (
	clockOffset = 0x101000
	pwmOffset   = 0x20C000

	pacerClockHz = 1000000 // PWM/PCM clock is always run at 1MHz, so RNG1/MODE1 is a tick period in microseconds.
)

// PWM register offsets, in words, from pwmOffset. Grounded on
// pi_dma/pi_dma.c's PWM_CTL/PWM_DMAC/PWM_RNG1/PWM_FIFO layout.
const (
	pwmCTL  = 0x00 / 4
	pwmDMAC = 0x08 / 4
	pwmRNG1 = 0x10 / 4
	pwmFIF1 = 0x18 / 4
)

const (
	pwmCtlPWEN1 uint32 = 1 << 0 // channel 1 enable
	pwmCtlUSEF1 uint32 = 1 << 5 // channel 1 reads from the FIFO, not DAT1
	pwmCtlClrF1 uint32 = 1 << 6 // clear FIFO (self-clearing)

	pwmDMACEnable   uint32 = 1 << 31
	pwmDMACThresh   uint32 = 15<<8 | 15<<0
)

// MapClock maps the clock-manager register block. Safe to call more than
// once; later calls are no-ops.
func MapClock(b Board) error {
	if clockMemory != nil {
		return nil
	}
	virt, err := mmapPeripheral(baseAddr+clockOffset, 4096)
	if err != nil {
		return fmt.Errorf("bcm283x: map clock manager: %w", err)
	}
	clockMemory = (*clockMap)(unsafe.Pointer(&virt[0]))
	return nil
}

// Pacer drains one DMA FIFO word every tickUs microseconds: chaining a
// paced-delay control block that transfers N words blocks the DMA engine
// for N*tickUs microseconds before it moves to the next control block.
// Grounded on pi_hw/pi_dma.c's dma_channel_setup_pacer(PACER_PWM, ...) and
// dma_delay.
type Pacer struct {
	regs     []uint32
	fifoPhys uint32
	tickUs   uint32
}

// MapPWMPacer maps the PWM peripheral and configures it to drain one FIFO
// word every tickUs microseconds.
func MapPWMPacer(b Board, tickUs uint32) (*Pacer, error) {
	if err := MapClock(b); err != nil {
		return nil, err
	}
	virt, err := mmapPeripheral(baseAddr+pwmOffset, 4096)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: map pwm: %w", err)
	}
	regs := bytesToWords(virt)

	regs[pwmCTL] = 0
	Nanospin(10 * time.Microsecond)

	if _, _, err := (&clockMemory.pwm).set(pacerClockHz, 1); err != nil {
		return nil, fmt.Errorf("bcm283x: set pwm clock to %dHz: %w", pacerClockHz, err)
	}
	Nanospin(10 * time.Microsecond)

	regs[pwmRNG1] = tickUs
	Nanospin(10 * time.Microsecond)
	regs[pwmDMAC] = pwmDMACEnable | pwmDMACThresh
	Nanospin(10 * time.Microsecond)
	regs[pwmCTL] = pwmCtlClrF1
	Nanospin(10 * time.Microsecond)
	regs[pwmCTL] = pwmCtlUSEF1 | pwmCtlPWEN1

	return &Pacer{regs: regs, fifoPhys: baseAddr + pwmOffset + pwmFIF1*4, tickUs: tickUs}, nil
}

// TickUs is the pacer's configured tick period in microseconds.
func (p *Pacer) TickUs() uint32 { return p.tickUs }

// FIFOPhysAddr is the physical address a paced-delay control block's
// destination must target.
func (p *Pacer) FIFOPhysAddr() uint32 { return p.fifoPhys }

// PerMap is the DMA transfer-info PER_MAP value for pacing off this
// peripheral's DREQ (PWM is always 5 in this pipeline; see spec §6).
func (p *Pacer) PerMap() uint32 { return PerMapPWM }

// Disable stops the PWM channel, used on shutdown so a stale DREQ doesn't
// wedge a subsequent run's DMA chain.
func (p *Pacer) Disable() {
	p.regs[pwmCTL] = 0
	p.regs[pwmDMAC] = 0
}
