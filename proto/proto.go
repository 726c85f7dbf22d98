// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package proto implements the length-prefixed command protocol spoken over
// the core's Unix domain socket. Grounded on comm.c/comm.h: a record is an
// 8-byte header (type, length) followed by length bytes of payload.
package proto

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
)

// Record is one decoded wire record: an opaque type tag and its payload.
type Record struct {
	Type    uint32
	Payload []byte
}

const headerLen = 8

// ReadRecord reads one length-prefixed record from r, blocking until the
// full header and payload have arrived. Mirrors comm_poll's incremental
// accumulation of a header then a body, except io.ReadFull does the
// short-read tolerance that comm_poll hand-rolled across multiple polls.
// A clean close with nothing read returns io.EOF; a close mid-record
// returns io.ErrUnexpectedEOF, matching comm_poll's "zero-byte read
// discards any in-progress record".
func ReadRecord(r io.Reader) (Record, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Record{}, err
	}
	typ := binary.LittleEndian.Uint32(hdr[0:4])
	length := binary.LittleEndian.Uint32(hdr[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}
	return Record{Type: typ, Payload: payload}, nil
}

// WriteRecord writes typ/payload in wire format, used for report packets
// flowing back to the client (spec type 0x12).
func WriteRecord(w io.Writer, typ uint32, payload []byte) error {
	var hdr [headerLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], typ)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// Listener accepts one client connection at a time on a Unix domain
// socket, matching comm_init's single-client assumption.
type Listener struct {
	ln   net.Listener
	path string
}

// Listen removes any stale socket file at path and binds a new one.
// Grounded on make_named_socket + comm_init's access()/unlink() dance.
func Listen(path string) (*Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("proto: remove stale socket %s: %w", path, err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("proto: listen %s: %w", path, err)
	}
	return &Listener{ln: ln, path: path}, nil
}

// Accept blocks for the next client connection.
func (l *Listener) Accept() (net.Conn, error) {
	return l.ln.Accept()
}

// Close closes the listening socket and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}
