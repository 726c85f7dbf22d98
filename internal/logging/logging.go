// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging centralizes the verbose/quiet log setup repeated across
// this repo's cmd/ binaries.
package logging

import (
	"io/ioutil"
	"log"
)

// Setup configures the standard logger: microsecond timestamps always, and
// output discarded entirely unless verbose is set. Matches the pattern
// every cmd/ main here used to duplicate individually.
func Setup(verbose bool) {
	if !verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)
}
