// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wave

// Context holds the sources being multiplexed and their per-source
// countdowns. It is not safe for concurrent use; it is owned by whichever
// goroutine drives the main loop.
type Context struct {
	sources [MaxSources]Source
	t       [MaxSources]uint32
	n       int
}

// NewContext builds a Context over the given sources, in declaration order.
// Order matters only for tie-breaking: when several sources are due on the
// same tick, they are serviced in this order before the shared delay is
// emitted.
func NewContext(sources ...Source) *Context {
	if len(sources) > MaxSources {
		panic("wave: too many sources")
	}
	c := &Context{n: len(sources)}
	copy(c.sources[:], sources)
	return c
}

// Generate runs the multiplexer until budgetTicks of delay have been
// emitted through be. See spec §4.1 for the algorithm.
//
// If be also implements StartEnder, StartWave is called exactly once before
// any event emission and EndWave exactly once after the last.
func Generate(be Backend, c *Context, budgetTicks uint32) {
	if se, ok := be.(StartEnder); ok {
		se.StartWave()
		defer se.EndWave()
	}

	for budgetTicks > 0 {
		min := budgetTicks

		for i := 0; i < c.n; i++ {
			if c.t[i] == 0 {
				t := be.AddEvent(c.sources[i])
				if int32(t) <= 0 {
					panic(errNonPositiveDelay(i, t))
				}
				c.t[i] = t
			}
			if c.t[i] < min {
				min = c.t[i]
			}
		}

		be.AddDelay(min)

		for i := 0; i < c.n; i++ {
			c.t[i] -= min
		}
		budgetTicks -= min
	}
}
