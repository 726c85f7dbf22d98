// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"testing"

	"github.com/usedbytes/yapidh/wave"
)

const (
	testStepPin   = 4
	testDirPin    = 5
	testEnablePin = 6
)

func newTestMotor() *Motor {
	return New(testStepPin, testDirPin, testEnablePin, 200, 100000, 2000)
}

func TestMotorIdleWhenStopped(t *testing.T) {
	t.Parallel()
	m := newTestMotor()
	rec := &wave.Recorder{}
	c := wave.NewContext(m)
	wave.Generate(rec, c, 5*countPer1ms*3)

	for i, e := range rec.Events {
		if e.Rising != 0 || e.Falling != 0 {
			t.Fatalf("event %d = %+v, want an idle tick with no pin activity", i, e)
		}
		if e.Delay != 5*countPer1ms {
			t.Fatalf("event %d delay = %d, want %d", i, e.Delay, 5*countPer1ms)
		}
	}
	if got := m.Steps(); got != 0 {
		t.Fatalf("Steps() = %d, want 0 while idle", got)
	}
}

// TestMotorAccelerateAndStep checks that commanding a forward velocity from
// rest asserts dir and enable before the first step, and that every rising
// edge on the step pin is matched by a later falling edge (the pulsewidth).
func TestMotorAccelerateAndStep(t *testing.T) {
	t.Parallel()
	m := newTestMotor()
	m.SetVelocity(10)

	rec := &wave.Recorder{}
	c := wave.NewContext(m)
	wave.Generate(rec, c, 2000)

	sawDirRising := false
	sawEnableFalling := false
	risingSteps, fallingSteps := 0, 0
	for _, e := range rec.Events {
		if e.Rising&(1<<testDirPin) != 0 {
			sawDirRising = true
		}
		if e.Falling&(1<<testEnablePin) != 0 {
			sawEnableFalling = true
		}
		if e.Rising&(1<<testStepPin) != 0 {
			risingSteps++
		}
		if e.Falling&(1<<testStepPin) != 0 {
			fallingSteps++
		}
	}
	if !sawDirRising {
		t.Fatal("dir pin never asserted rising for a forward move")
	}
	if !sawEnableFalling {
		t.Fatal("enable pin (active-low) never asserted for a moving motor")
	}
	if risingSteps == 0 {
		t.Fatal("no step pulses emitted")
	}
	if risingSteps != fallingSteps && risingSteps != fallingSteps+1 {
		t.Fatalf("rising steps = %d, falling steps = %d: every pulse but possibly the last must close", risingSteps, fallingSteps)
	}
	if got := m.Steps(); got <= 0 {
		t.Fatalf("Steps() = %d, want > 0 after a forward move", got)
	}
}

func TestMotorStepsCounterResets(t *testing.T) {
	t.Parallel()
	m := newTestMotor()
	m.SetVelocity(10)
	wave.Generate(&wave.Recorder{}, wave.NewContext(m), 2000)

	first := m.Steps()
	if first <= 0 {
		t.Fatalf("first Steps() = %d, want > 0", first)
	}
	if second := m.Steps(); second != 0 {
		t.Fatalf("second Steps() = %d, want 0 immediately after a drain", second)
	}
}

// TestMotorZeroCrossing exercises property 5 (§8) and scenario S4: a
// reversal must decelerate fully to a stop before any step in the new
// direction, and once a step in the new direction has been emitted, no
// further step in the old direction may follow.
func TestMotorZeroCrossing(t *testing.T) {
	t.Parallel()
	m := newTestMotor()
	m.SetVelocity(10)
	wave.Generate(&wave.Recorder{}, wave.NewContext(m), 3000)
	m.Steps() // drain, not under test here

	m.SetVelocity(-10)

	rec := &wave.Recorder{}
	wave.Generate(rec, wave.NewContext(m), 6000)

	dir := uint32(1) // forward, latched by the prior SetVelocity(10) run
	sawNewDirStep := false
	for i, e := range rec.Events {
		if e.Rising&(1<<testDirPin) != 0 {
			dir = 1
		}
		if e.Falling&(1<<testDirPin) != 0 {
			dir = 0
		}
		if e.Rising&(1<<testStepPin) != 0 {
			if dir == 1 && sawNewDirStep {
				t.Fatalf("event %d: stepped forward again after reversing to reverse", i)
			}
			if dir == 0 {
				sawNewDirStep = true
			}
		}
	}
	if !sawNewDirStep {
		t.Fatal("never observed a step pulse in the reversed direction")
	}
	if got := m.Steps(); got >= 0 {
		t.Fatalf("Steps() = %d, want < 0 after reversing to a negative velocity", got)
	}
}
