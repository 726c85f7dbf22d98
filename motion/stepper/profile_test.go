// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"math"
	"testing"
)

func TestProfileFirstDelayMatchesFormula(t *testing.T) {
	t.Parallel()
	p := newProfile(200, 100000, 50)
	p.set(10)
	got := p.tick()
	want := uint32(math.Round(0.676 * p.f * math.Sqrt((2*p.alpha)/p.accel)))
	if got != want {
		t.Fatalf("first delay = %d, want %d", got, want)
	}
	if got == 0 {
		t.Fatal("first delay must be strictly positive")
	}
}

// TestProfileRampIsMonotoneThenSteady exercises property 4 (§8): once moving,
// consecutive per-step delays never increase while accelerating towards a
// target, and eventually settle to the constant steady-state delay implied
// by alpha*f/speed.
func TestProfileRampIsMonotoneThenSteady(t *testing.T) {
	t.Parallel()
	p := newProfile(200, 1000, 50)
	p.set(10)

	prev := p.tick()
	steadyWant := uint32(math.Round((p.alpha * p.f) / 10))

	reachedSteady := false
	for i := 0; i < 500; i++ {
		c := p.tick()
		if c == 0 {
			t.Fatalf("tick %d: delay dropped to 0 while accelerating towards a nonzero target", i)
		}
		if p.steady {
			if c != steadyWant {
				t.Fatalf("tick %d: steady delay = %d, want %d", i, c, steadyWant)
			}
			reachedSteady = true
			break
		}
		if c > prev {
			t.Fatalf("tick %d: delay increased from %d to %d during acceleration", i, prev, c)
		}
		prev = c
	}
	if !reachedSteady {
		t.Fatal("ramp never reached steady state within 500 ticks")
	}
}

// TestProfileDecelerateToStop exercises the target=0 path used by Motor when
// it commands a stop: delays must grow and tick must eventually return 0.
func TestProfileDecelerateToStop(t *testing.T) {
	t.Parallel()
	p := newProfile(200, 1000, 50)
	p.set(10)
	for !p.steady {
		p.tick()
	}
	p.set(0)

	prev := p.tick()
	stopped := false
	for i := 0; i < 500; i++ {
		c := p.tick()
		if c == 0 {
			stopped = true
			break
		}
		if c < prev {
			t.Fatalf("tick %d: delay shrank from %d to %d while decelerating to a stop", i, prev, c)
		}
		prev = c
	}
	if !stopped {
		t.Fatal("deceleration never reached a full stop within 500 ticks")
	}
	if got := p.tick(); got != 0 {
		t.Fatalf("tick() after reaching n==0 with targetN==0 = %d, want 0", got)
	}
}

// TestProfileMidRampSpeedDrop checks the sameSign bookkeeping used when a
// lower target is set before the ramp reaches its original target: n must
// flip to track the (now smaller) target from the other side.
func TestProfileMidRampSpeedDrop(t *testing.T) {
	t.Parallel()
	p := newProfile(200, 1000, 50)
	p.set(20)
	for i := 0; i < 5; i++ {
		p.tick()
	}
	if p.n <= 0 {
		t.Fatalf("n = %v, want > 0 a few ticks into an acceleration", p.n)
	}

	p.set(2)
	if p.targetN >= 0 {
		t.Fatalf("targetN = %v, want negative: lowering the target mid-ramp should approach it from above", p.targetN)
	}
	if p.n >= 0 {
		t.Fatalf("n = %v, want negative right after a mid-ramp speed drop", p.n)
	}
}
