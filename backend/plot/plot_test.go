// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package plot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/usedbytes/yapidh/wave"
)

type toggler struct {
	pin    uint32
	period uint32
	high   bool
}

func (s *toggler) GenEvent(ev *wave.Event) uint32 {
	mask := uint32(1) << s.pin
	if s.high {
		ev.Falling |= mask
	} else {
		ev.Rising |= mask
	}
	s.high = !s.high
	return s.period / 2
}

func TestHeaderIsWritten(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	be := New(&buf)
	be.Flush()
	if !strings.Contains(buf.String(), "# tick, mask") {
		t.Fatalf("missing header: %q", buf.String())
	}
}

func TestStepTransitionsBracketEachDelay(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	be := New(&buf)

	src := &toggler{pin: 1, period: 20}
	ctx := wave.NewContext(src)
	wave.Generate(be, ctx, 40)
	be.Flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"# tick, mask",
		"0, 2",
		"9, 2",
		"10, 0",
		"19, 0",
		"20, 2",
		"29, 2",
		"30, 0",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), buf.String())
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}
