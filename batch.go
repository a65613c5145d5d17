package balar

import (
	"context"
	"fmt"
)

// BulkFunc is a user-supplied operation that accepts every distinct input
// registered for it within one checkpoint and returns the corresponding
// input→output mapping. extraArgs is whatever was passed to the first
// RegisterCall that created this batch (same operationID and fingerprint,
// same checkpoint); the engine never inspects it.
type BulkFunc[In comparable, Out any] func(ctx context.Context, inputs []In, extraArgs any) (map[In]Out, error)

// RegisterCall registers one processor's interest in a wrapped bulk
// operation and blocks until that operation's checkpoint drains. Every
// call sharing the same operationID and fingerprint within one checkpoint
// is coalesced into a single invocation of fn.
//
// operationID identifies "the same wrapped function" across processors —
// stable per wrapped function, per façade instance. fingerprint is an
// opaque string distinguishing calls to the same operationID with
// different extraArgs; the engine never interprets it (see
// DefaultFingerprint for a reasonable default a façade can use).
//
// RegisterCall must be called with a context derived from the one a
// Processor received, or from a nested call already inside an Execution —
// calling it with any other context returns OutsideContextError.
func RegisterCall[In comparable, Out any](ctx context.Context, operationID, fingerprint string, fn BulkFunc[In, Out], inputs []In, extraArgs any) (map[In]Out, error) {
	execution, p, err := ambientProcessor(ctx)
	if err != nil {
		return nil, err
	}

	key := batchKey{operationID: operationID, fingerprint: fingerprint}

	anyFn := anyBulkFunc(func(ctx context.Context, anyInputs []any, extraArgs any) (map[any]any, error) {
		typed := make([]In, len(anyInputs))
		for i, v := range anyInputs {
			typed[i] = v.(In)
		}
		out, err := fn(ctx, typed, extraArgs)
		if err != nil {
			return nil, err
		}
		result := make(map[any]any, len(out))
		for k, v := range out {
			result[any(k)] = v
		}
		return result, nil
	})

	anyInputs := make([]any, len(inputs))
	for i, in := range inputs {
		anyInputs[i] = in
	}

	def, err := execution.registerBatch(p, key, anyFn, anyInputs, extraArgs)
	if err != nil {
		return nil, err
	}

	resolved, err := def.wait(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[In]Out, len(inputs))
	for _, in := range inputs {
		if v, ok := resolved[any(in)]; ok {
			out[in] = v.(Out)
		}
	}
	return out, nil
}

// RegisterCallSlice is RegisterCall for bulk functions that return results
// as an ordered sequence parallel to inputs, rather than a map. A returned
// sequence whose length does not match len(inputs) is reported as a
// ResultShapeError, which force-fails the whole chunk.
func RegisterCallSlice[In comparable, Out any](ctx context.Context, operationID, fingerprint string, fn func(ctx context.Context, inputs []In, extraArgs any) ([]Out, error), inputs []In, extraArgs any) (map[In]Out, error) {
	wrapped := BulkFunc[In, Out](func(ctx context.Context, inputs []In, extraArgs any) (map[In]Out, error) {
		seq, err := fn(ctx, inputs, extraArgs)
		if err != nil {
			return nil, err
		}
		if len(seq) != len(inputs) {
			return nil, &ResultShapeError{OperationID: operationID, Want: len(inputs), Got: len(seq)}
		}
		out := make(map[In]Out, len(inputs))
		for i, in := range inputs {
			out[in] = seq[i]
		}
		return out, nil
	})
	return RegisterCall(ctx, operationID, fingerprint, wrapped, inputs, extraArgs)
}

// registerBatch finds or creates the batch entry for key, folds inputs
// into its ordered set, marks processor p as awaiting, and triggers a
// drain if the checkpoint condition now holds.
func (e *Execution) registerBatch(p int, key batchKey, fn anyBulkFunc, inputs []any, extraArgs any) (*deferred[map[any]any], error) {
	e.mu.Lock()

	if e.forceFailed {
		err := e.forceFailErr
		e.mu.Unlock()
		return nil, err
	}

	entry, ok := e.checkpointCache[key]
	if !ok {
		entry = &batchEntry{
			fn:        fn,
			extraArgs: extraArgs,
			inputs:    newOrderedSet[any](),
			call:      newDeferred[map[any]any](),
		}
		e.checkpointCache[key] = entry
		e.checkpointOrder = append(e.checkpointOrder, key)
	}
	for _, in := range inputs {
		entry.inputs.add(in)
	}

	e.awaiting[p] = struct{}{}
	equal := len(e.awaiting)+e.done == e.total
	def := entry.call

	e.mu.Unlock()

	if equal {
		e.drain()
	}
	return def, nil
}

// runBatch invokes one batch entry's bulk function and resolves or rejects
// its Deferred with the outcome. A panic in fn is treated the same as a
// returned error.
func (e *Execution) runBatch(ctx context.Context, key batchKey, entry *batchEntry) {
	inputs := entry.inputs.values()
	e.logger.Debug().Str("operation_id", key.operationID).Int("size", len(inputs)).Log("dispatching batch")

	result, err := callBulk(ctx, entry.fn, inputs, entry.extraArgs)
	if err != nil {
		if _, ok := err.(stopAller); ok {
			entry.call.reject(err)
			return
		}
		entry.call.reject(&BulkError{OperationID: key.operationID, Err: err})
		return
	}
	entry.call.resolve(result)
}

func callBulk(ctx context.Context, fn anyBulkFunc, inputs []any, extraArgs any) (result map[any]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, inputs, extraArgs)
}
