// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bcm283x maps the BCM283x peripheral registers (GPIO, DMA, clocks)
// that the waveform-generation pipeline needs, and allocates the
// DMA-visible memory its control-block chains live in.
//
// It only implements the subset of the SoC this repository drives: GPIO
// pin set/clear, one DMA channel, and the PWM/PCM pacer clocks. It is not
// a general-purpose Raspberry Pi peripheral library.
package bcm283x

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// baseAddr is the physical base address of the peripheral block, set by
// Board detection. It is 0x20000000 on BCM2835 (Pi 1) and 0x3F000000 on
// BCM2836/7 (Pi 2/3).
var baseAddr uint32

const (
	baseAddrBCM2835 = 0x20000000
	baseAddrBCM2836 = 0x3F000000
)

// Board describes the subset of a Raspberry Pi's /proc/cpuinfo that this
// package needs to pick a peripheral base address and a DMA bus alias.
//
// Grounded on pi_platform.c's get_model_and_revision: that function reads
// the "Revision" line from /proc/cpuinfo and switches on the high nibble
// of the new-style encoding to tell a BCM2835 board from a BCM2836/7 one.
type Board struct {
	Revision string
	IsPi1    bool
}

// DetectBoard reads /proc/cpuinfo and returns the detected Board.
func DetectBoard() (Board, error) {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return Board{}, fmt.Errorf("bcm283x: open /proc/cpuinfo: %w", err)
	}
	defer f.Close()

	var revision string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if !strings.HasPrefix(line, "Revision") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		revision = strings.TrimSpace(parts[1])
	}
	if err := s.Err(); err != nil {
		return Board{}, fmt.Errorf("bcm283x: read /proc/cpuinfo: %w", err)
	}
	if revision == "" {
		return Board{}, fmt.Errorf("bcm283x: no Revision line in /proc/cpuinfo")
	}
	return boardFromRevision(revision)
}

func boardFromRevision(revision string) (Board, error) {
	v, err := strconv.ParseUint(revision, 16, 32)
	if err != nil {
		return Board{}, fmt.Errorf("bcm283x: unparseable revision %q: %w", revision, err)
	}
	b := Board{Revision: revision}
	if v&(1<<23) != 0 {
		// New-style encoded revision: bits 12:4 carry the SoC number.
		soc := (v >> 12) & 0xF
		b.IsPi1 = soc == 0
	} else {
		// Old-style revision codes are all BCM2835 (Pi 1 / Zero).
		b.IsPi1 = true
	}
	return b, nil
}

// Init picks the peripheral base address for this board. It must be called
// once before any register-mapping operation in this package.
func (b Board) Init() {
	if b.IsPi1 {
		baseAddr = baseAddrBCM2835
	} else {
		baseAddr = baseAddrBCM2836
	}
}

// Nanospin busy-waits for approximately d, used for the short settle times
// the clock manager's password-protected registers need between writes.
func Nanospin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

// mmapPeripheral opens /dev/mem and maps size bytes starting at the given
// physical address. Every register window in this package (GPIO, DMA
// channel, clock manager, PWM) goes through this one path.
func mmapPeripheral(physBase uint32, size int) ([]byte, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: open /dev/mem: %w", err)
	}
	defer f.Close()
	virt, err := unix.Mmap(int(f.Fd()), int64(physBase), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("bcm283x: mmap %#x: %w", physBase, err)
	}
	return virt, nil
}
