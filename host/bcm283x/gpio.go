// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"fmt"
)

// GPIO offsets within the peripheral block, in bytes. Grounded on
// pi_hw/pi_gpio.c's register layout and spec §6's control-block encoding
// table (SET0 at 0x1c, CLR0 at 0x28).
const (
	gpioOffset = 0x200000

	gpioFSEL0 = 0x00 // GPFSEL0, 10 pins per 32-bit word, 3 bits each
	gpioSET0  = 0x1c // GPSET0
	gpioCLR0  = 0x28 // GPCLR0
	gpioLEV0  = 0x34 // GPLEV0

	gpioFuncOutput = 1 // FSEL value for a general-purpose output
)

// GPIO is the memory-mapped GPIO register block, and the block's physical
// base address, from which PhysSet0/PhysClr0 derive the SET0/CLR0
// addresses that DMA control blocks target.
type GPIO struct {
	base uint32 // physical base address of the GPIO block
	regs []uint32
}

// MapGPIO maps the GPIO register block for board b.
func MapGPIO(b Board) (*GPIO, error) {
	base := baseAddr + gpioOffset
	virt, err := mmapPeripheral(base, 4096)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: map gpio: %w", err)
	}

	g := &GPIO{base: base}
	g.attach(virt)
	return g, nil
}

// attach installs the mmap'd region as this GPIO's register window. Split
// out of MapGPIO so tests can construct a GPIO over a plain byte slice.
func (g *GPIO) attach(virt []byte) {
	g.regs = bytesToWords(virt)
}

// PhysSet0 is the physical address CPU-side code or a DMA control block
// writes to set (drive high) any of pins 0-31.
func (g *GPIO) PhysSet0() uint32 { return g.base + gpioSET0 }

// PhysClr0 is the physical address for clearing (driving low) pins 0-31.
func (g *GPIO) PhysClr0() uint32 { return g.base + gpioCLR0 }

// SetOutput configures pin as a general-purpose output. Must be called
// before any edge is driven on it, CPU-side, once at startup.
func (g *GPIO) SetOutput(pin uint32) error {
	if pin > 31 {
		return fmt.Errorf("bcm283x: pin %d out of range 0-31", pin)
	}
	word := gpioFSEL0/4 + int(pin/10)
	shift := (pin % 10) * 3
	g.regs[word] = (g.regs[word] &^ (7 << shift)) | (gpioFuncOutput << shift)
	return nil
}

// Set drives the given pins (bitmask) high immediately, bypassing DMA.
// Used only for the platform init sequence (e.g. priming dir/enable
// before the first waveform splices in), never from the hot path.
func (g *GPIO) Set(mask uint32) {
	g.regs[gpioSET0/4] = mask
}

// Clear drives the given pins (bitmask) low immediately, bypassing DMA.
func (g *GPIO) Clear(mask uint32) {
	g.regs[gpioCLR0/4] = mask
}

// Level reads the current level of pins 0-31.
func (g *GPIO) Level() uint32 {
	return g.regs[gpioLEV0/4]
}
