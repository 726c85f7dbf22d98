// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// gpio-write sets a single BCM283x GPIO pin to low or high, for bringup
// and wiring checks independent of the DMA waveform pipeline.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/usedbytes/yapidh/host/bcm283x"
	"github.com/usedbytes/yapidh/internal/logging"
)

func mainImpl() error {
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()
	logging.Setup(*verbose)

	if flag.NArg() != 2 {
		return errors.New("specify GPIO pin number and level (0 or 1)")
	}
	pin, err := strconv.ParseUint(flag.Arg(0), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid pin number: %w", err)
	}
	var high bool
	switch flag.Arg(1) {
	case "0":
	case "1":
		high = true
	default:
		return errors.New("specify level as 0 or 1")
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

	if err := g.SetOutput(uint32(pin)); err != nil {
		return err
	}
	if high {
		log.Printf("set pin %d high", pin)
		g.Set(1 << pin)
	} else {
		log.Printf("set pin %d low", pin)
		g.Clear(1 << pin)
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "gpio-write: %s.\n", err)
		os.Exit(1)
	}
}
