// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bcm283x

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// memFlag selects the VideoCore memory alias used for a DMA-visible
// allocation: 0x0c (direct | coherent) on a Pi 1, 0x04 (direct) on later
// boards. Grounded on pi_util.c's get_model_and_revision.
func (b Board) memFlag() uint32 {
	if b.IsPi1 {
		return 0x0c
	}
	return 0x04
}

const (
	mboxDevice = "/dev/vcio"

	mboxTagAllocateMemory = 0x3000c
	mboxTagLockMemory     = 0x3000d
	mboxTagUnlockMemory   = 0x3000e
	mboxTagReleaseMemory  = 0x3000f

	// IOCTL_MBOX_PROPERTY, from linux/include/uapi/linux/broadcom/vc_mem.h-
	// style definitions used by every userspace mailbox client.
	iocMboxProperty = 0xc0046400

	busAliasMask = 0xC0000000
)

// mailbox is a handle to the VideoCore property-channel mailbox used to
// allocate DMA-visible, physically-contiguous memory. Grounded on
// pi_dma/pi_util.c's phys_alloc, which drives the same three-tag sequence
// through a mailbox.h helper this repository re-implements directly with
// an ioctl on /dev/vcio instead of a kernel mailbox driver char device.
type mailbox struct {
	f *os.File
}

func openMailbox() (*mailbox, error) {
	f, err := os.OpenFile(mboxDevice, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: open %s: %w", mboxDevice, err)
	}
	return &mailbox{f: f}, nil
}

func (m *mailbox) Close() error { return m.f.Close() }

// call sends one mailbox property request: a single tag with the given
// request words, and returns the tag's response words.
func (m *mailbox) call(tag uint32, req ...uint32) ([]uint32, error) {
	// Property buffer layout (all little-endian uint32 words):
	// size, code, tag, tagSize, tagReqSize, req..., pad..., end-tag(0).
	bufWords := len(req)
	buf := make([]uint32, 6+bufWords+1)
	buf[0] = uint32(len(buf) * 4)
	buf[1] = 0 // process request
	buf[2] = tag
	buf[3] = uint32(bufWords * 4)
	buf[4] = uint32(bufWords * 4)
	copy(buf[5:], req)
	buf[len(buf)-1] = 0

	raw := make([]byte, len(buf)*4)
	for i, w := range buf {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, m.f.Fd(), uintptr(iocMboxProperty), uintptr(unsafe.Pointer(&raw[0])))
	if errno != 0 {
		return nil, fmt.Errorf("bcm283x: mailbox ioctl tag %#x: %w", tag, errno)
	}

	resp := make([]uint32, bufWords)
	for i := range resp {
		resp[i] = binary.LittleEndian.Uint32(raw[(5+i)*4:])
	}
	return resp, nil
}

func (m *mailbox) allocate(size, align, flags uint32) (uint32, error) {
	resp, err := m.call(mboxTagAllocateMemory, size, align, flags)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

func (m *mailbox) lock(handle uint32) (uint32, error) {
	resp, err := m.call(mboxTagLockMemory, handle)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

func (m *mailbox) unlock(handle uint32) error {
	_, err := m.call(mboxTagUnlockMemory, handle)
	return err
}

func (m *mailbox) release(handle uint32) error {
	_, err := m.call(mboxTagReleaseMemory, handle)
	return err
}

// bytesToWords reinterprets a byte slice backing an mmap'd register window
// as a slice of 32-bit registers, sharing the same memory.
func bytesToWords(b []byte) []uint32 {
	if len(b)%4 != 0 {
		panic("bcm283x: register window is not a multiple of 4 bytes")
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// PhysMem is a page-aligned, physically-contiguous region of memory,
// allocated through the VideoCore mailbox and mapped into this process
// through /dev/mem. It backs the DMA control-block arena and is owned by
// whatever backend requested it for its lifetime.
type PhysMem struct {
	size    uint32
	busAddr uint32
	handle  uint32

	mbox *mailbox
	virt []byte
}

// AllocPhysMem allocates size bytes (rounded up to a page) of DMA-visible
// memory for board b.
func AllocPhysMem(b Board, size uint32) (*PhysMem, error) {
	size = (size + 0xFFF) &^ 0xFFF

	mbox, err := openMailbox()
	if err != nil {
		return nil, err
	}

	handle, err := mbox.allocate(size, 4096, b.memFlag())
	if err != nil {
		mbox.Close()
		return nil, fmt.Errorf("bcm283x: allocate %d bytes: %w", size, err)
	}
	busAddr, err := mbox.lock(handle)
	if err != nil {
		mbox.release(handle)
		mbox.Close()
		return nil, fmt.Errorf("bcm283x: lock memory: %w", err)
	}

	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		mbox.unlock(handle)
		mbox.release(handle)
		mbox.Close()
		return nil, fmt.Errorf("bcm283x: open /dev/mem: %w", err)
	}
	defer f.Close()

	phys := int64(busAddr &^ busAliasMask)
	virt, err := unix.Mmap(int(f.Fd()), phys, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		mbox.unlock(handle)
		mbox.release(handle)
		mbox.Close()
		return nil, fmt.Errorf("bcm283x: mmap physical memory: %w", err)
	}

	return &PhysMem{size: size, busAddr: busAddr, handle: handle, mbox: mbox, virt: virt}, nil
}

// BusAddr returns the DMA-engine-visible bus address of the start of the
// region.
func (p *PhysMem) BusAddr() uint32 { return p.busAddr }

// Bytes returns the CPU-visible mapping of the region.
func (p *PhysMem) Bytes() []byte { return p.virt }

// Close unmaps and releases the region back to the VideoCore.
func (p *PhysMem) Close() error {
	if err := unix.Munmap(p.virt); err != nil {
		return fmt.Errorf("bcm283x: munmap: %w", err)
	}
	if err := p.mbox.unlock(p.handle); err != nil {
		return err
	}
	if err := p.mbox.release(p.handle); err != nil {
		return err
	}
	return p.mbox.Close()
}
