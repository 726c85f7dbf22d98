// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dma

import (
	"fmt"
	"time"

	"github.com/usedbytes/yapidh/host/bcm283x"
)

// fenceSignaled reports whether the DMA engine has reached cb: InitFence
// sets Scratch0 to 1 and copies it into Scratch1 as its own transfer, so
// Scratch1 going nonzero proves the engine executed this control block.
func fenceSignaled(cb *bcm283x.ControlBlock) bool {
	return cb.Scratch1 != 0
}

// waitFence polls cb until fenceSignaled or timeoutMs elapses. A negative
// timeoutMs waits forever, matching dma_fence_wait's -1 convention.
func waitFence(cb *bcm283x.ControlBlock, timeoutMs, pollMs int) error {
	if pollMs <= 0 {
		pollMs = 1
	}
	elapsed := 0
	for {
		if fenceSignaled(cb) {
			return nil
		}
		if timeoutMs >= 0 && elapsed >= timeoutMs {
			return fmt.Errorf("dma: fence wait timed out after %dms", timeoutMs)
		}
		time.Sleep(time.Duration(pollMs) * time.Millisecond)
		elapsed += pollMs
	}
}
