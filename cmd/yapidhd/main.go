// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// yapidhd drives stepper motors and tone channels through Raspberry Pi
// DMA control blocks, taking commands over a Unix domain socket.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"

	"github.com/usedbytes/yapidh/backend/dma"
	"github.com/usedbytes/yapidh/host/bcm283x"
	"github.com/usedbytes/yapidh/internal/logging"
	"github.com/usedbytes/yapidh/motion/stepper"
	"github.com/usedbytes/yapidh/motion/tone"
	"github.com/usedbytes/yapidh/proto"
	"github.com/usedbytes/yapidh/wave"
)

// Pin assignment: four stepper motors (step, dir, enable) followed by two
// tone channels, packed into the low half of the 32-pin mask so
// platform_init-style bring-up can configure them as outputs in one pass.
var (
	motorPins = [4][3]uint32{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{9, 10, 11},
	}
	tonePins = [2]uint32{12, 13}
)

const (
	dmaChannel    = 6 // matches pi_backend.c's hardcoded channel choice
	stepsPerRev   = 200
	accelRadSS    = 1000.0
	tickFreqHz    = 100000.0 // 10us tick, matching dma.tickUs
	waveBudget    = 1600     // ticks per Generate call; matches main.c's wave_gen(&ctx, 1600)
	fenceTimeoutMs = 1000
	fencePollMs    = 1
)

func outputMask() uint32 {
	var mask uint32
	for _, m := range motorPins {
		for _, p := range m {
			mask |= 1 << p
		}
	}
	for _, p := range tonePins {
		mask |= 1 << p
	}
	return mask
}

// server accepts one client connection at a time on the command socket and
// forwards decoded records to recordsCh, where the main loop applies them
// between wave chunks. This keeps all stepper/tone state mutation on a
// single goroutine even though the socket read itself blocks on a
// goroutine of its own, matching §5's single-threaded-mutation invariant
// without reproducing comm_poll's non-blocking accept/read state machine.
type server struct {
	ln *proto.Listener

	mu   sync.Mutex
	conn net.Conn
}

func (s *server) acceptLoop(recordsCh chan<- proto.Record) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			rec, err := proto.ReadRecord(conn)
			if err != nil {
				conn.Close()
				break
			}
			recordsCh <- rec
		}

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}
}

func (s *server) writeReports(d *proto.Dispatcher) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		// Drain motors' step counters even with nobody listening, so a
		// client that connects later doesn't see a burst of stale deltas.
		for _, m := range d.Motors {
			if m != nil {
				m.Steps()
			}
		}
		return
	}
	if err := proto.WriteReports(conn, d); err != nil {
		log.Printf("yapidhd: write report: %v", err)
	}
}

func mainImpl() error {
	sockPath := flag.String("sock", "/tmp/sock", "command socket path")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()
	logging.Setup(*verbose)

	board, err := bcm283x.DetectBoard()
	if err != nil {
		return fmt.Errorf("detect board: %w", err)
	}
	board.Init()

	gpio, err := bcm283x.MapGPIO(board)
	if err != nil {
		return fmt.Errorf("map gpio: %w", err)
	}
	for _, pin := range pinList() {
		if err := gpio.SetOutput(pin); err != nil {
			return fmt.Errorf("set pin %d as output: %w", pin, err)
		}
	}

	be, err := dma.New(board, dmaChannel, gpio)
	if err != nil {
		return fmt.Errorf("create dma backend: %w", err)
	}
	defer be.Close()

	dispatcher := &proto.Dispatcher{
		Tones: make([]*tone.Source, len(tonePins)),
	}
	sources := make([]wave.Source, 0, len(motorPins)+len(tonePins))
	for i, pins := range motorPins {
		m := stepper.New(pins[0], pins[1], pins[2], stepsPerRev, tickFreqHz, accelRadSS)
		dispatcher.Motors[i] = m
		sources = append(sources, m)
	}
	for i, pin := range tonePins {
		t := tone.New(pin)
		dispatcher.Tones[i] = t
		sources = append(sources, t)
	}
	ctx := wave.NewContext(sources...)

	ln, err := proto.Listen(*sockPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *sockPath, err)
	}
	defer ln.Close()

	srv := &server{ln: ln}
	recordsCh := make(chan proto.Record, 64)
	go srv.acceptLoop(recordsCh)

	// No filter: the DMA engine must be reset (be.Close()) on death by any
	// signal, not just SIGINT/SIGTERM, or it keeps driving pins after this
	// process is gone.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop)

	for {
		select {
		case <-stop:
			log.Print("yapidhd: signal received, shutting down")
			return nil
		default:
		}

	drain:
		for {
			select {
			case rec := <-recordsCh:
				if err := dispatcher.Dispatch(rec); err != nil {
					log.Print(err)
				}
			default:
				break drain
			}
		}

		if err := be.WaitFence(fenceTimeoutMs, fencePollMs); err != nil {
			log.Print(be.Dump())
			return fmt.Errorf("fence wait: %w", err)
		}

		wave.Generate(be, ctx, waveBudget)
		if err := be.Err(); err != nil {
			log.Print(be.Dump())
			return fmt.Errorf("generate: %w", err)
		}

		srv.writeReports(dispatcher)
	}
}

func pinList() []uint32 {
	var pins []uint32
	for _, m := range motorPins {
		pins = append(pins, m[0], m[1], m[2])
	}
	pins = append(pins, tonePins[:]...)
	return pins
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "yapidhd: %s.\n", err)
		os.Exit(1)
	}
}
