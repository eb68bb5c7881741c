package capture

import (
	"errors"
)

// Error kinds returned by the capture pipeline. Match with errors.Is.
var (
	ErrNoReceiver          = errors.New("no receiver available")
	ErrCaptureInProgress   = errors.New("capture already in progress")
	ErrInvalidRange        = errors.New("invalid range parameters")
	ErrExceedsCapability   = errors.New("requested sample rate exceeds receiver capabilities")
	ErrInvalidFFTSize      = errors.New("FFT size must be a power of 2")
	ErrFFTExtractionFailed = errors.New("FFT data extraction failed")
	ErrStopped             = errors.New("capture stopped by user")
)

// Error is a capture failure. Kind is one of the Err* sentinels and Err the
// underlying cause, if any.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Kind.Error() + ": " + e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Kind.Error() + ": " + e.Msg
	case e.Err != nil:
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}
