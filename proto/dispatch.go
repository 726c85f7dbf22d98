// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/usedbytes/yapidh/motion/stepper"
	"github.com/usedbytes/yapidh/motion/tone"
)

// Record types understood by the dispatcher (§4.5).
const (
	TypeSetVelocity    uint32 = 1
	TypeControlledMove uint32 = 2
	TypeEnqueueNote    uint32 = 3

	// TypeReport is emitted by the dispatcher, never received.
	TypeReport uint32 = 0x12
)

// ProtocolError reports a malformed command record: unknown type, a length
// mismatch against the expected payload, or a channel/motor index out of
// range. The command loop logs it and discards the record; it never
// propagates to the main loop (§7).
type ProtocolError struct {
	Type   uint32
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("proto: record type %d: %s", e.Type, e.Reason)
}

// Dispatcher routes decoded records to the stepper and tone sources they
// name, and encodes the report packets the main loop sends back. Motors is
// indexed 0-3; record type 2 applies to the fixed pairing (0,2) and (1,3)
// described in §4.5. Tones is indexed by channel number.
type Dispatcher struct {
	Motors [4]*stepper.Motor
	Tones  []*tone.Source
}

// Dispatch decodes one record and applies it, or returns a *ProtocolError
// if the record is malformed. The caller (the command socket's read loop)
// logs and continues past a ProtocolError rather than tearing down the
// connection.
func (d *Dispatcher) Dispatch(rec Record) error {
	switch rec.Type {
	case TypeSetVelocity:
		return d.dispatchSetVelocity(rec)
	case TypeControlledMove:
		return d.dispatchControlledMove(rec)
	case TypeEnqueueNote:
		return d.dispatchEnqueueNote(rec)
	default:
		return &ProtocolError{Type: rec.Type, Reason: "unknown record type"}
	}
}

const setVelocityLen = 8

func (d *Dispatcher) dispatchSetVelocity(rec Record) error {
	if len(rec.Payload) != setVelocityLen {
		return &ProtocolError{Type: rec.Type, Reason: fmt.Sprintf("payload length %d, want %d", len(rec.Payload), setVelocityLen)}
	}
	motor := int(rec.Payload[0])
	if motor < 0 || motor >= len(d.Motors) || d.Motors[motor] == nil {
		return &ProtocolError{Type: rec.Type, Reason: fmt.Sprintf("motor index %d out of range", motor)}
	}
	fixed := int32(binary.LittleEndian.Uint32(rec.Payload[4:8]))
	speed := float64(fixed) / 65536.0
	d.Motors[motor].SetVelocity(speed)
	return nil
}

const controlledMoveLen = 32

// dispatchControlledMove applies spd_a/spd_b to the two motor pairs (0,2)
// and (1,3). dist_a/dist_b are decoded and validated for wire
// compatibility but not otherwise actioned: Motor only exposes a velocity
// target (§4.3), it has no step-limited move primitive to hand a distance
// to.
func (d *Dispatcher) dispatchControlledMove(rec Record) error {
	if len(rec.Payload) != controlledMoveLen {
		return &ProtocolError{Type: rec.Type, Reason: fmt.Sprintf("payload length %d, want %d", len(rec.Payload), controlledMoveLen)}
	}
	_ = readFloat64(rec.Payload, 0) // dist_a
	spdA := readFloat64(rec.Payload, 8)
	_ = readFloat64(rec.Payload, 16) // dist_b
	spdB := readFloat64(rec.Payload, 24)

	for _, idx := range [2]int{0, 2} {
		if d.Motors[idx] != nil {
			d.Motors[idx].SetVelocity(spdA)
		}
	}
	for _, idx := range [2]int{1, 3} {
		if d.Motors[idx] != nil {
			d.Motors[idx].SetVelocity(spdB)
		}
	}
	return nil
}

func readFloat64(b []byte, off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
}

const enqueueNoteLen = 16

func (d *Dispatcher) dispatchEnqueueNote(rec Record) error {
	if len(rec.Payload) != enqueueNoteLen {
		return &ProtocolError{Type: rec.Type, Reason: fmt.Sprintf("payload length %d, want %d", len(rec.Payload), enqueueNoteLen)}
	}
	channel := binary.LittleEndian.Uint32(rec.Payload[0:4])
	timestampUs := binary.LittleEndian.Uint32(rec.Payload[4:8])
	note := binary.LittleEndian.Uint32(rec.Payload[8:12])
	durationUs := binary.LittleEndian.Uint32(rec.Payload[12:16])

	if int(channel) >= len(d.Tones) || d.Tones[channel] == nil {
		return &ProtocolError{Type: rec.Type, Reason: fmt.Sprintf("channel index %d out of range", channel)}
	}
	d.Tones[channel].Enqueue(tone.UsToTicks(timestampUs), note, tone.UsToTicks(durationUs))
	return nil
}

// ServeRecords reads records from r until it errors, dispatching each one
// and logging (rather than failing on) a ProtocolError. A clean close
// (io.EOF) returns nil; any other error propagates to the caller.
func (d *Dispatcher) ServeRecords(r io.Reader) error {
	for {
		rec, err := ReadRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.Dispatch(rec); err != nil {
			log.Print(err)
		}
	}
}

// ReportPacket encodes one §6 report record for motor at index idx:
// payload { u32 motor, i32 steps_delta, i32 status }.
func ReportPacket(idx int, stepsDelta int64, status int32) Record {
	payload := make([]byte, 12)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(idx))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(int32(stepsDelta)))
	binary.LittleEndian.PutUint32(payload[8:12], uint32(status))
	return Record{Type: TypeReport, Payload: payload}
}

// WriteReports emits one report packet per motor in d.Motors that took
// steps or is not idle this iteration, matching §6's "once per main-loop
// iteration per active motor".
func WriteReports(w io.Writer, d *Dispatcher) error {
	for i, m := range d.Motors {
		if m == nil {
			continue
		}
		delta := m.Steps()
		status := m.Status()
		if delta == 0 && status == stepper.StatusIdle {
			continue
		}
		rec := ReportPacket(i, delta, status)
		if err := WriteRecord(w, rec.Type, rec.Payload); err != nil {
			return err
		}
	}
	return nil
}
