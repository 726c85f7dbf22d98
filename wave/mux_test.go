// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wave

import "testing"

// square is a fixed-period, single-pin square wave source, used to drive
// the multiplexer deterministically in tests.
type square struct {
	pin    uint32
	period uint32
	high   bool
}

func (s *square) GenEvent(ev *Event) uint32 {
	mask := uint32(1) << s.pin
	if s.high {
		ev.Falling |= mask
	} else {
		ev.Rising |= mask
	}
	s.high = !s.high
	return s.period / 2
}

func TestGenerateSingleIdleTick(t *testing.T) {
	t.Parallel()
	// S1: one square-wave source, period 100, pin 16, initial phase low.
	src := &square{pin: 16, period: 100}
	rec := &Recorder{}
	c := NewContext(src)
	Generate(rec, c, 100)

	want := []Recorded{
		{Delay: 50, Rising: 1 << 16},
		{Delay: 50, Falling: 1 << 16},
	}
	if len(rec.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(rec.Events), len(want), rec.Events)
	}
	for i, w := range want {
		if rec.Events[i] != w {
			t.Fatalf("event %d = %+v, want %+v", i, rec.Events[i], w)
		}
	}
	if rec.TotalDelay() != 100 {
		t.Fatalf("total delay = %d, want 100", rec.TotalDelay())
	}
}

func TestGenerateTwoSourceMerge(t *testing.T) {
	t.Parallel()
	// S2: source A period 100 pin 16 (low), source B period 30 pin 19
	// (starts high). Budget 60. Both sources fire at tick 0: A rises then
	// and falls at 50, B toggles every 15 ticks starting from high, so the
	// merge points are 15, 30, 45, 50 and 60.
	a := &square{pin: 16, period: 100}
	b := &square{pin: 19, period: 30, high: true}
	rec := &Recorder{}
	c := NewContext(a, b)
	Generate(rec, c, 60)

	if got := rec.TotalDelay(); got != 60 {
		t.Fatalf("total delay = %d, want 60", got)
	}
	want := []Recorded{
		{Delay: 15, Rising: 1 << 16, Falling: 1 << 19},
		{Delay: 15, Rising: 1 << 19},
		{Delay: 15, Falling: 1 << 19},
		{Delay: 5, Rising: 1 << 19},
		{Delay: 10, Falling: 1 << 16},
	}
	if len(rec.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(rec.Events), len(want), rec.Events)
	}
	for i, w := range want {
		if rec.Events[i] != w {
			t.Fatalf("event %d = %+v, want %+v", i, rec.Events[i], w)
		}
	}
}

// fixedSource always returns a constant delay and never sets any pin; it is
// used to check that Generate always consumes exactly budgetTicks (§8.1).
type fixedSource struct{ delay uint32 }

func (f fixedSource) GenEvent(ev *Event) uint32 { return f.delay }

func TestGenerateMonotoneTime(t *testing.T) {
	t.Parallel()
	for _, budget := range []uint32{1, 7, 100, 4999} {
		for _, delay := range []uint32{1, 3, 10} {
			rec := &Recorder{}
			c := NewContext(fixedSource{delay: delay})
			Generate(rec, c, budget)
			if got := rec.TotalDelay(); got != budget {
				t.Fatalf("budget=%d delay=%d: total = %d, want %d", budget, delay, got, budget)
			}
		}
	}
}

func TestGenerateDisjointMasks(t *testing.T) {
	t.Parallel()
	a := &square{pin: 1, period: 6}
	b := &square{pin: 1, period: 4, high: true}
	rec := &Recorder{}
	c := NewContext(a, b)
	Generate(rec, c, 24)
	for i, e := range rec.Events {
		if e.Rising&e.Falling != 0 {
			t.Fatalf("event %d: rising & falling = %#x, want 0", i, e.Rising&e.Falling)
		}
	}
}

func TestGeneratePanicsOnNonPositiveDelay(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero delay from source")
		}
	}()
	c := NewContext(fixedSource{delay: 0})
	Generate(&Recorder{}, c, 10)
}

func TestGenerateStartEndCalledOnce(t *testing.T) {
	t.Parallel()
	wrapped := &startEndRecorder{Recorder: &Recorder{}}
	c := NewContext(fixedSource{delay: 5})
	Generate(wrapped, c, 20)
	if wrapped.starts != 1 || wrapped.ends != 1 {
		t.Fatalf("starts=%d ends=%d, want 1,1", wrapped.starts, wrapped.ends)
	}
}

type startEndRecorder struct {
	*Recorder
	starts, ends int
}

func (s *startEndRecorder) StartWave() { s.starts++ }
func (s *startEndRecorder) EndWave()   { s.ends++ }
