package balar

import "fmt"

type (
	// UserError wraps a value recovered from a panicking [Processor],
	// giving it an Error method so it can be recorded against the
	// offending input in a [Result]'s Errors map alongside ordinary
	// returned errors. A panicking bulk function is reported as a
	// [BulkError] instead.
	UserError struct {
		// Recovered is the value passed to panic.
		Recovered any
	}

	// BulkError wraps an error returned (or panicked) by a bulk function
	// itself, as opposed to an error concerning one specific input. It is
	// returned from [RegisterCall] to every processor waiting on the
	// batch.
	BulkError struct {
		// OperationID identifies the bulk operation that failed.
		OperationID string
		// Err is the error returned by the bulk function.
		Err error
	}

	// OutsideContextError indicates RegisterCall or RunScope was invoked
	// with a context.Context that carries no ambient *Execution, i.e. from
	// outside a Run-driven processor.
	OutsideContextError struct{}

	// InternalError indicates an engine invariant was violated (e.g. a
	// processor index missing from an ambient context that must carry
	// one). It is never expected in correct use of the package and always
	// indicates a bug in balar itself.
	InternalError struct {
		// Msg describes the violated invariant.
		Msg string
	}

	// ResultShapeError is a StopAll-class engine error: a bulk function
	// returned an ordered sequence whose length did not match the number
	// of inputs given to it, so the engine can no longer trust the
	// correspondence between inputs and outputs for that batch.
	ResultShapeError struct {
		// OperationID identifies the offending bulk operation.
		OperationID string
		// Want is the number of inputs given to the bulk function.
		Want int
		// Got is the length of the sequence the bulk function returned.
		Got int
	}
)

func (e *UserError) Error() string {
	return fmt.Sprintf("balar: panic: %v", e.Recovered)
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("balar: bulk operation %q failed: %v", e.OperationID, e.Err)
}

func (e *BulkError) Unwrap() error { return e.Err }

func (*OutsideContextError) Error() string {
	return "balar: called outside an active Execution"
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("balar: internal error: %s", e.Msg)
}

func (e *ResultShapeError) Error() string {
	return fmt.Sprintf("balar: bulk operation %q returned %d results for %d inputs", e.OperationID, e.Got, e.Want)
}

// stopAll marks ResultShapeError as fatal to the entire chunk: it
// force-fails every pending deferred rather than being routed to a single
// waiter.
func (e *ResultShapeError) stopAll() bool { return true }

// stopAller is satisfied by engine errors that must force-fail a chunk,
// rather than being delivered only to the processor(s) that caused them.
type stopAller interface {
	error
	stopAll() bool
}

var (
	_ stopAller = (*ResultShapeError)(nil)
)
