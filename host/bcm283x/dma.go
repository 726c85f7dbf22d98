// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"fmt"
	"strings"
	"unsafe"
)

// DMA transfer-info bits used by this repository's control blocks.
// Grounded bit-for-bit on spec §6 and simokawa-periph/host/bcm283x/dma.go's
// dmaTransferInfo constants, trimmed to the subset the waveform pipeline
// actually uses (edge and paced-delay CBs, never 128-bit or interrupt
// transfers).
const (
	dmaWaitcyclesMax = 0x1F

	tiNoWideBursts  uint32 = 1 << 26
	tiWaitCycShift         = 21
	tiWaitCycMask   uint32 = 0x1F << tiWaitCycShift
	tiPerMapShift          = 16
	tiPerMapMask    uint32 = 31 << tiPerMapShift
	tiSrcIgnore     uint32 = 1 << 11
	tiSrcInc        uint32 = 1 << 8
	tiDstDReq       uint32 = 1 << 6
	tiDstInc        uint32 = 1 << 4
	tiWaitResp      uint32 = 1 << 3
	tiTDMode        uint32 = 1 << 1

	// PerMapPWM and PerMapPCM select which peripheral's DREQ paces a
	// transfer (spec §6: "PER_MAP(5 for PWM, 2 for PCM)").
	PerMapPWM uint32 = 5 << tiPerMapShift
	PerMapPCM uint32 = 2 << tiPerMapShift
)

// DMA channel CS register bits.
const (
	csReset  uint32 = 1 << 31
	csActive uint32 = 1 << 0
)

// ControlBlock is the 32-byte hardware DMA control block (spec §3's CB):
// transfer-info, source/destination bus addresses, length, stride, the
// next-CB pointer, and two scratch words used by this pipeline for the
// edge pin-mask payload and the fence sentinel. Fields are exported so
// backend/dma, in a different package, can build and chain them.
type ControlBlock struct {
	TransferInfo uint32
	SrcAddr      uint32
	DstAddr      uint32
	Length       uint32
	Stride       uint32
	NextCB       uint32
	Scratch0     uint32
	Scratch1     uint32
}

// InitEdge turns cb into an edge control block: a 4-byte write of `mask`
// (held in Scratch0) to the GPIO SET0 or CLR0 register. Bit-exact per
// spec §6.
func (cb *ControlBlock) InitEdge(selfBusAddr, gpioRegPhys, mask uint32) {
	cb.Scratch0 = mask
	cb.TransferInfo = tiNoWideBursts | tiWaitResp
	cb.SrcAddr = selfBusAddr + uint32(unsafe.Offsetof(ControlBlock{}.Scratch0))
	cb.DstAddr = physToBus(gpioRegPhys)
	cb.Length = 4
	cb.Stride = 0
}

// InitPacedDelay turns cb into a paced-delay control block: a transfer of
// `ticks` words from Scratch0 into the pacer's FIFO, gated by its DREQ.
func (cb *ControlBlock) InitPacedDelay(selfBusAddr, pacerFifoPhys uint32, ticks uint32, perMap uint32) {
	cb.Scratch0 = 0
	cb.TransferInfo = tiNoWideBursts | tiWaitResp | tiDstDReq | perMap | tiSrcIgnore | tiTDMode
	cb.SrcAddr = selfBusAddr + uint32(unsafe.Offsetof(ControlBlock{}.Scratch0))
	cb.DstAddr = physToBus(pacerFifoPhys)
	cb.Length = ((ticks - 1) << 16) | 4
	cb.Stride = 0
}

// InitFence turns cb into a fence control block: a 4-byte memory-to-memory
// copy from its own Scratch0 (1) to its own Scratch1, so that observing
// Scratch1 become 1 proves the DMA engine reached this point in the
// chain.
func (cb *ControlBlock) InitFence(selfBusAddr uint32) {
	cb.Scratch0 = 1
	cb.Scratch1 = 0
	cb.TransferInfo = tiNoWideBursts | tiWaitResp
	cb.SrcAddr = selfBusAddr + uint32(unsafe.Offsetof(ControlBlock{}.Scratch0))
	cb.DstAddr = selfBusAddr + uint32(unsafe.Offsetof(ControlBlock{}.Scratch1))
	cb.Length = 4
	cb.Stride = 0
}

func (cb *ControlBlock) GoString() string {
	return fmt.Sprintf(
		"{TI:%#x Src:%#x Dst:%#x Len:%#x Next:%#x S0:%#x S1:%#x}",
		cb.TransferInfo, cb.SrcAddr, cb.DstAddr, cb.Length, cb.NextCB, cb.Scratch0, cb.Scratch1)
}

// ControlBlocks reinterprets a PhysMem region as a slice of ControlBlock,
// sharing the same DMA-visible backing memory. The region's bus address
// corresponds to &cbs[0].
func (p *PhysMem) ControlBlocks() []ControlBlock {
	b := p.Bytes()
	n := len(b) / int(unsafe.Sizeof(ControlBlock{}))
	return unsafe.Slice((*ControlBlock)(unsafe.Pointer(&b[0])), n)
}

const (
	periphMask = 0x00FFFFFF
	periphBus  = 0x7E000000
)

func physToBus(phys uint32) uint32 {
	return (phys & periphMask) | periphBus
}

// Channel is one memory-mapped DMA channel's register block: its CS and
// CONBLK_AD registers.
type Channel struct {
	cs     *uint32
	cbAddr *uint32
}

// MapDMAChannel maps the register block of DMA channel n (0-14) for board
// b.
func MapDMAChannel(b Board, n int) (*Channel, error) {
	if n < 0 || n > 14 {
		return nil, fmt.Errorf("bcm283x: dma channel %d out of range", n)
	}
	base := baseAddr + 0x7000 + uint32(n*0x100)
	virt, err := mmapPeripheral(base, 4096)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: map dma channel %d: %w", n, err)
	}
	regs := bytesToWords(virt)
	return &Channel{cs: &regs[0], cbAddr: &regs[1]}, nil
}

// Reset forces the channel off; it is safe to call before the first Start.
func (c *Channel) Reset() {
	*c.cs = csReset
	*c.cbAddr = 0
}

// Start begins execution of the control-block chain at busAddr.
func (c *Channel) Start(busAddr uint32) {
	*c.cbAddr = busAddr
	*c.cs = csActive
}

// Running reports whether the channel is still executing its chain
// (has not reached a CB with NextCB == 0).
func (c *Channel) Running() bool {
	return *c.cs&csActive != 0
}

// String renders the channel's CS register for debug logging, in the same
// flag-listing style host/bcm283x/clock.go's GoString methods use.
func (c *Channel) String() string {
	var out []string
	cs := *c.cs
	if cs&csReset != 0 {
		out = append(out, "Reset")
	}
	if cs&csActive != 0 {
		out = append(out, "Active")
	}
	if len(out) == 0 {
		return fmt.Sprintf("cs(%#x)", cs)
	}
	return strings.Join(out, "|")
}
