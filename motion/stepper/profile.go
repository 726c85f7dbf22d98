// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package stepper implements David Austin's real-time stepper motor
// acceleration profile generator as a wave.Source.
//
// See: https://www.embedded.com/design/mcus-processors-and-socs/4006438/Generate-stepper-motor-speed-profiles-in-real-time
package stepper

import "math"

// profile is the David-Austin acceleration-ramp controller (speed_ctrl in
// the reference implementation). It tracks a signed step index n along the
// ramp, so a negative n/target encodes "decelerating towards zero before
// reversing."
type profile struct {
	alpha float64 // radians per step
	accel float64 // rad/s^2
	f     float64 // tick frequency

	n        float64
	targetN  float64
	c        float64 // ticks until next step
	setSpeed float64 // magnitude of the requested steady-state speed
	steady   bool
}

func newProfile(stepsPerRev int, tickFreq, accelRadSS float64) profile {
	return profile{
		alpha: (2 * math.Pi) / float64(stepsPerRev),
		f:     tickFreq,
		accel: accelRadSS,
	}
}

// sameSign returns a value with the same magnitude as a but the sign of b.
func sameSign(a, b float64) float64 {
	if math.Signbit(b) {
		if math.Signbit(a) {
			return a
		}
		return -a
	}
	if math.Signbit(a) {
		return -a
	}
	return a
}

// set records a newly-commanded speed, which must be non-negative: sign
// (direction) is handled by the caller via zero-crossing, never by this
// profile directly.
func (p *profile) set(speed float64) {
	targetN := (speed * speed) / (2 * p.alpha * p.accel)
	n := p.n
	if targetN < math.Abs(p.n) {
		if targetN > 0 {
			targetN = -targetN
		}
		n = sameSign(n, -1)
	} else {
		n = sameSign(n, 1)
	}

	p.steady = false
	p.setSpeed = speed
	p.targetN = targetN
	p.n = n
}

// tick advances the ramp by one decision point and returns the delay (in
// ticks) until the next step, or 0 if the motor is fully stopped.
func (p *profile) tick() uint32 {
	if p.n == 0 {
		if p.targetN != 0 {
			p.c = 0.676 * p.f * math.Sqrt((2*p.alpha)/p.accel)
			p.n = 1
			return uint32(p.c)
		}
		return 0
	}

	if p.n < p.targetN-1 {
		p.n++
		p.c = p.c - ((2 * p.c) / ((4 * p.n) + 1))
	} else if !p.steady {
		if p.setSpeed != 0 {
			p.c = (p.alpha * p.f) / p.setSpeed
		} else {
			p.c = 0
		}
		p.steady = true
		p.n = p.targetN
	}

	return uint32(math.Round(p.c))
}
