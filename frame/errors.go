package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrWaitTimeout is returned by Fence.Wait implementations when the
	// timeout elapses.
	ErrWaitTimeout = errors.New("frame: fence wait timed out")

	// ErrClosed is returned by AdvanceFrame after Destroy.
	ErrClosed = errors.New("frame: context destroyed")

	// ErrNoRecorder is returned by NewContext without a Recorder.
	ErrNoRecorder = errors.New("frame: recorder is required")
)

// Op names a step of the frame protocol in an Error.
type Op string

const (
	OpWaitCompute    Op = "wait compute fence"
	OpUpdateUniforms Op = "update uniforms"
	OpRecordCompute  Op = "record compute"
	OpSubmitCompute  Op = "submit compute"
	OpWaitGraphics   Op = "wait graphics fence"
	OpAcquire        Op = "acquire image"
	OpRecordGraphics Op = "record graphics"
	OpSubmitGraphics Op = "submit graphics"
	OpPresent        Op = "present"
	OpRecreate       Op = "recreate surface"
)

// Error is a fatal frame loop failure. The context must not be advanced
// again after one is returned.
type Error struct {
	Op   Op
	Slot SlotIndex
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("frame: %s (slot %d): %v", e.Op, e.Slot, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
