// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wave

// Recorded is one (delay, rising, falling) triple captured by a Recorder.
type Recorded struct {
	Delay   uint32
	Rising  uint32
	Falling uint32
}

// Recorder is a deterministic, in-memory Backend. It is used by tests to
// check the §8 testable properties without touching any hardware.
type Recorder struct {
	Events []Recorded

	rising, falling uint32
}

// AddEvent implements Backend.
func (r *Recorder) AddEvent(src Source) uint32 {
	var ev Event
	t := src.GenEvent(&ev)
	r.rising |= ev.Rising
	r.falling |= ev.Falling
	return t
}

// AddDelay implements Backend.
func (r *Recorder) AddDelay(ticks uint32) {
	r.Events = append(r.Events, Recorded{Delay: ticks, Rising: r.rising, Falling: r.falling})
	r.rising, r.falling = 0, 0
}

// TotalDelay sums the Delay field of every recorded event, used to verify
// the "monotone time" property (§8.1).
func (r *Recorder) TotalDelay() uint32 {
	var total uint32
	for _, e := range r.Events {
		total += e.Delay
	}
	return total
}
