// Copyright (c) Sony Research Inc. All rights reserved.

package device

import "errors"

var (
	// ErrUnknownBias is returned for bias parameter names the sensor does
	// not expose. It is raised to the caller, never swallowed.
	ErrUnknownBias = errors.New("bias parameter not found")

	// ErrInvalidSyncMode is a fatal configuration error raised during
	// initialization for sync mode values outside
	// {standalone, primary, secondary}.
	ErrInvalidSyncMode = errors.New("invalid sync mode")

	// ErrNoBiasFile is returned by a bias save when no file path was
	// configured at initialization.
	ErrNoBiasFile = errors.New("no bias file specified at startup")

	// ErrNotRunning is returned by device stop when the device was never
	// started.
	ErrNotRunning = errors.New("device not running")
)
