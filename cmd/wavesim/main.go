// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// wavesim drives two stepper motors against the VCD backend instead of
// real DMA hardware, for development off a Raspberry Pi.
// Grounded on main.c's vcd_backend_create(4, names) demo.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/usedbytes/yapidh/backend/vcd"
	"github.com/usedbytes/yapidh/motion/stepper"
	"github.com/usedbytes/yapidh/wave"
)

func mainImpl() error {
	iterations := flag.Int("n", 60, "number of wave.Generate calls to run")
	budget := flag.Uint("budget", 1600, "ticks per wave.Generate call")
	speedA := flag.Float64("speed-a", 24, "rad/s commanded to the first motor")
	speedB := flag.Float64("speed-b", 7, "rad/s commanded to the second motor")
	flag.Parse()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	be := vcd.New(out, []uint32{0, 1, 2, 3, 4, 5})

	m1 := stepper.New(0, 1, 2, 200, 100000, 1000)
	m2 := stepper.New(3, 4, 5, 200, 100000, 1000)
	m1.SetVelocity(*speedA)
	m2.SetVelocity(*speedB)

	ctx := wave.NewContext(m1, m2)
	for i := 0; i < *iterations; i++ {
		wave.Generate(be, ctx, uint32(*budget))
	}

	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "wavesim: %s.\n", err)
		os.Exit(1)
	}
}
