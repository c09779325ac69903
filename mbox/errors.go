package mbox

import "errors"

var (
	// ErrNotFound means Open was given a name no registered channel has.
	ErrNotFound = errors.New("mbox: no such channel")

	// ErrNoDevice means the hardware could not be brought up; the open was
	// rolled back and the channel is unusable until a later open succeeds.
	ErrNoDevice = errors.New("mbox: device startup failed")

	// ErrQueueFull means the transmit software queue has no room. The
	// message was not accepted; the caller decides when to retry.
	ErrQueueFull = errors.New("mbox: transmit queue full")
)
