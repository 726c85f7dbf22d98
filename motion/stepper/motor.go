// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package stepper

import (
	"math"
	"sync/atomic"

	"github.com/usedbytes/yapidh/wave"
)

// state is the coarse motion state of a Motor.
type state int

const (
	stopped state = iota
	forward
	reverse
)

// Motor is a wave.Source driving one stepper motor's step/dir/enable pins
// through David Austin's acceleration profile.
//
// Enable is active-low, matching the reference hardware: Motor asserts it
// (drives it low) only while the motor is actually turning.
type Motor struct {
	stepPin, dirPin, enablePin uint32
	pulsewidth                 uint32

	profile profile

	st         state
	gap        uint32 // ticks remaining until the matching falling edge
	targetRads float64

	dsteps int32 // signed step taken by the last pulse, +1 or -1
	steps  int64 // accumulated step counter, atomic so Steps() can be polled
}

// New creates a Motor. stepsPerRev and accelRadSS parameterize the
// acceleration profile; tickFreq is the pacer tick frequency (ticks per
// second) that the caller's wave.Generate loop runs at.
func New(stepPin, dirPin, enablePin uint32, stepsPerRev int, tickFreq, accelRadSS float64) *Motor {
	return &Motor{
		stepPin:    stepPin,
		dirPin:     dirPin,
		enablePin:  enablePin,
		pulsewidth: 5,
		profile:    newProfile(stepsPerRev, tickFreq, accelRadSS),
	}
}

// SetVelocity commands a new signed angular velocity, in radians/second.
// Positive is forward. If this reverses the current direction of travel,
// the motor first decelerates to a stop; the commanded velocity is
// re-applied automatically once it crosses zero (see GenEvent).
func (m *Motor) SetVelocity(radsPerSec float64) {
	m.targetRads = radsPerSec
	target := radsPerSec
	if (m.st == forward && target <= 0) || (m.st == reverse && target >= 0) {
		target = 0
	}
	m.profile.set(math.Abs(target))
}

// Steps returns the accumulated step count since the last call and resets
// the counter to zero.
func (m *Motor) Steps() int64 {
	return atomic.SwapInt64(&m.steps, 0)
}

// Status values for report packets (§6): Idle means stopped with no
// pending target, the motor is powered down.
const (
	StatusIdle int32 = iota
	StatusForward
	StatusReverse
)

// Status reports the motor's coarse motion state for the command channel's
// report packets. A stopped motor with a pending nonzero target reports the
// direction of that target.
func (m *Motor) Status() int32 {
	switch {
	case m.st == forward:
		return StatusForward
	case m.st == reverse:
		return StatusReverse
	case m.targetRads > 0:
		return StatusForward
	case m.targetRads < 0:
		return StatusReverse
	default:
		return StatusIdle
	}
}

const countPer1ms = 100 // ticks per millisecond at the reference 100kHz tick rate

// GenEvent implements wave.Source.
func (m *Motor) GenEvent(ev *wave.Event) uint32 {
	if m.st == stopped && m.targetRads == 0 {
		return 5 * countPer1ms
	}

	if m.gap != 0 {
		ev.Falling |= 1 << m.stepPin
		c := m.gap
		m.gap = 0
		return c - m.pulsewidth
	}

	c := m.profile.tick()
	if c != 0 {
		if m.st == stopped {
			// First pulse of a (re)start, or the post-zero-crossing
			// re-application: latch direction and enable the motor.
			if m.targetRads > 0 {
				m.st = forward
				ev.Rising |= 1 << m.dirPin
			} else {
				m.st = reverse
				ev.Falling |= 1 << m.dirPin
			}
			ev.Falling |= 1 << m.enablePin
		}

		ev.Rising |= 1 << m.stepPin
		m.gap = c

		if m.st == forward {
			m.dsteps = 1
		} else {
			m.dsteps = -1
		}
		atomic.AddInt64(&m.steps, int64(m.dsteps))

		return m.pulsewidth
	}

	// Stopped, possibly a zero-crossing: re-apply the pending target, which
	// continues acceleration in the opposite direction if one was
	// commanded, or powers the motor down if not.
	m.st = stopped
	if m.targetRads == 0 {
		ev.Rising |= 1 << m.enablePin
	}
	m.SetVelocity(m.targetRads)

	return m.GenEvent(ev)
}
