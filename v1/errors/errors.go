package errors

import "errors"

var (
	ErrWouldBlock = errors.New("lock would block")
	ErrNotHeld    = errors.New("lock not held")
	ErrHeld       = errors.New("lock still held")
	ErrClosed     = errors.New("lock closed")
)
