// Copyright (c) 2020 Richard Youngkin. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package internal

import "github.com/pkg/errors"

var (
	// ErrTargetUnreachable is returned when the health probe can't reach the
	// target. No suite is run.
	ErrTargetUnreachable = errors.New("target unreachable")
	// ErrReportWrite is returned when the report artifact couldn't be
	// persisted. The in-memory report is still valid.
	ErrReportWrite = errors.New("report write failed")
	// ErrInvalidConfig wraps configuration validation failures
	ErrInvalidConfig = errors.New("invalid configuration")
)
