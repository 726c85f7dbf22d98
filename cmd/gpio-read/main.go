// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gpio-read reads a single BCM283x GPIO pin's level, for bringup and
// wiring checks independent of the DMA waveform pipeline.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/usedbytes/yapidh/host/bcm283x"
	"github.com/usedbytes/yapidh/internal/logging"
)

func mainImpl() error {
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()
	logging.Setup(*verbose)

	if flag.NArg() != 1 {
		return errors.New("specify GPIO pin to read")
	}
	pin, err := strconv.ParseUint(flag.Arg(0), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid pin number: %w", err)
	}

	board, err := bcm283x.DetectBoard()
	if err != nil {
		return err
	}
	board.Init()

	g, err := bcm283x.MapGPIO(board)
	if err != nil {
		return err
	}

	level := (g.Level() >> pin) & 1
	_, err = fmt.Println(level)
	return err
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "gpio-read: %s.\n", err)
		os.Exit(1)
	}
}
