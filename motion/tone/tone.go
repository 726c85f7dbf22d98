// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tone implements a queued square-wave event source: a channel
// plays a FIFO of notes, each a fixed-period square wave on one pin for a
// bounded duration, starting at an absolute tick timestamp.
package tone

import "github.com/usedbytes/yapidh/wave"

// tickUs is the system tick period in microseconds (§6); UsToTicks divides
// by it to convert wire-format microsecond fields into ticks.
const tickUs = 10

// UsToTicks converts a duration in microseconds, as carried by command
// records (§4.5), into the tick unit notes are queued in.
func UsToTicks(us uint32) uint32 {
	return us / tickUs
}

// countPer1ms is the number of ticks in one millisecond at the 10µs tick.
const countPer1ms = 100

// Note is one queued square-wave burst: Lambda is the full period in
// ticks, Duration the remaining playtime in ticks. StartTick is an
// absolute value against the channel's own timestamp, not wall-clock time.
type Note struct {
	StartTick uint32
	Lambda    uint32
	Duration  uint32
}

// Source is a wave.Source driving one square-wave output pin from a FIFO
// of notes.
type Source struct {
	pin uint32

	high    bool
	playing bool

	timestamp uint32

	current *Note
	queue   []Note
}

// New creates a Source on the given pin, initially playing (an empty queue
// just idles).
func New(pin uint32) *Source {
	return &Source{pin: pin, playing: true}
}

// Enqueue appends a note to the FIFO. startTick and duration are absolute
// and relative tick counts respectively, against the channel's own
// Timestamp; lambda is the full period of the square wave, in ticks.
func (s *Source) Enqueue(startTick, lambda, duration uint32) {
	s.queue = append(s.queue, Note{StartTick: startTick, Lambda: lambda, Duration: duration})
}

// Play pauses or resumes the channel. While paused, GenEvent still advances
// the channel's timestamp but never toggles the pin or drains the queue.
func (s *Source) Play(playing bool) {
	s.playing = playing
}

// Clear empties the note queue and drops whatever note is currently
// playing.
func (s *Source) Clear() {
	s.queue = nil
	s.current = nil
}

// Timestamp returns the channel's monotonic tick counter.
func (s *Source) Timestamp() uint32 {
	return s.timestamp
}

// SetTimestamp resets the channel's tick counter, used to resynchronize it
// against an external time base before a batch of notes with absolute
// start ticks is enqueued.
func (s *Source) SetTimestamp(t uint32) {
	s.timestamp = t
}

func (s *Source) advance(amount uint32) uint32 {
	s.timestamp += amount
	return amount
}

// GenEvent implements wave.Source.
func (s *Source) GenEvent(ev *wave.Event) uint32 {
	if !s.playing {
		return s.advance(countPer1ms)
	}

	if s.current == nil {
		if len(s.queue) == 0 {
			return s.advance(countPer1ms)
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.current = &n
	}

	cur := s.current
	if s.timestamp < cur.StartTick {
		return s.advance(cur.StartTick - s.timestamp)
	}

	mask := uint32(1) << s.pin
	if s.high {
		ev.Falling |= mask
		s.high = false
		if cur.Duration < cur.Lambda {
			// Less than a full period left: end on this falling edge
			// rather than starting another half-cycle.
			cur.Duration = 0
		}
	} else {
		ev.Rising |= mask
		s.high = true
	}

	delay := cur.Lambda / 2
	if cur.Duration < delay {
		s.current = nil
	} else {
		cur.Duration -= delay
	}

	return s.advance(delay)
}
