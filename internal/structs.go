// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import (
	"time"
)

// ErrorClass categorizes why a dispatch failed.
type ErrorClass string

// ErrorClass values. ClassNone is used for successful dispatches.
const (
	ClassNone       ErrorClass = ""
	ClassHTTPStatus ErrorClass = "http_status"
	ClassTimeout    ErrorClass = "timeout"
	ClassConnection ErrorClass = "connection"
	ClassCanceled   ErrorClass = "canceled"
	ClassRequest    ErrorClass = "request"
)

// Outcome contains the result of a single dispatch. Every dispatch
// produces exactly one Outcome.
type Outcome struct {
	Success bool
	// HTTPStatus is zero when no response was received
	HTTPStatus int
	// Latency is only meaningful when HasLatency is true. Failed dispatches
	// that never got a response carry the penalty latency, canceled ones
	// carry none.
	Latency    time.Duration
	HasLatency bool
	Class      ErrorClass
	Err        error
}
