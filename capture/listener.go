package capture

import (
	"github.com/hb9tf/specview/sdr"
)

// Listener receives capture lifecycle events. Calls are made synchronously
// from the goroutine running CaptureRange (or Stop) and must not block.
//
// Per CaptureRange call, exactly one of CaptureStarted or CaptureError is
// emitted before any work begins. A call that emitted CaptureStarted
// emits CaptureComplete exactly once, after it.
type Listener interface {
	CaptureStarted(r sdr.CaptureRange)
	CaptureComplete(res *sdr.CaptureResult)
	CaptureError(msg string)
	Progress(percent int)
}

// ListenerFuncs adapts optional plain functions to a Listener.
type ListenerFuncs struct {
	OnStarted  func(r sdr.CaptureRange)
	OnComplete func(res *sdr.CaptureResult)
	OnError    func(msg string)
	OnProgress func(percent int)
}

func (l ListenerFuncs) CaptureStarted(r sdr.CaptureRange) {
	if l.OnStarted != nil {
		l.OnStarted(r)
	}
}

func (l ListenerFuncs) CaptureComplete(res *sdr.CaptureResult) {
	if l.OnComplete != nil {
		l.OnComplete(res)
	}
}

func (l ListenerFuncs) CaptureError(msg string) {
	if l.OnError != nil {
		l.OnError(msg)
	}
}

func (l ListenerFuncs) Progress(percent int) {
	if l.OnProgress != nil {
		l.OnProgress(percent)
	}
}
