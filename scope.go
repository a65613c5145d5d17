package balar

import (
	"context"
	"strconv"
)

// RunScope opens a nested scope from within a running Processor: a branch
// of the engine's recursion that drains alongside the outer checkpoint but
// forms its own dedicated Execution over the inputs every processor
// reaching the same call site contributes.
//
// RunScope is called from three kinds of site: a plain nested Run (see
// Run, which delegates here with an empty partitionKey when an ambient
// Execution already exists), and each branch of an if/switch-style
// combinator built on top of it, which must pass a partitionKey stable per
// branch (e.g. "true"/"false", or a switch case label) so that distinct
// branches of the same construct do not coalesce into one partition while
// identical branches reached from different processors do.
//
// RunScope panics if processor is nil, rather than returning a
// configuration error.
func RunScope[In comparable, Out any](ctx context.Context, inputs []In, processor Processor[In, Out], partitionKey string) (Result[In, Out], error) {
	if processor == nil {
		panic(`balar: nil processor`)
	}

	execution, p, err := ambientProcessor(ctx)
	if err != nil {
		return Result[In, Out]{}, err
	}

	k := execution.nextOrderKey(p)
	key := partitionKey
	if key == "" {
		key = "0"
	}
	branchKey := "$" + strconv.Itoa(k) + "/" + key

	anyInputs := make([]any, len(inputs))
	for i, in := range inputs {
		anyInputs[i] = in
	}

	anyProc := anyProcessor(func(ctx context.Context, input any) (any, error) {
		return processor(ctx, input.(In))
	})

	def, err := execution.registerScope(p, branchKey, anyInputs, anyProc)
	if err != nil {
		return Result[In, Out]{}, err
	}

	res, err := def.wait(ctx)
	if err != nil {
		return Result[In, Out]{}, err
	}

	out := Result[In, Out]{
		Successes: make(map[In]Out),
		Errors:    make(map[In]error),
	}
	for _, in := range inputs {
		if v, ok := res.successes[any(in)]; ok {
			out.Successes[in] = v.(Out)
		} else if e, ok := res.errs[any(in)]; ok {
			out.Errors[in] = e
		}
	}
	return out, nil
}

// nextOrderKey returns this processor's next lexical-order counter and
// advances it. The counter is reset to empty at the end of every drain, so
// it only distinguishes concurrent scope calls made by one processor
// within a single checkpoint cycle, not across cycles.
func (e *Execution) nextOrderKey(p int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := e.scopeOrderKey[p]
	e.scopeOrderKey[p] = k + 1
	return k
}

// registerScope finds or creates the scope entry for branchKey, appends
// inputs (duplicates preserved) and records fn against each one, marks
// processor p as awaiting, and triggers a drain if the checkpoint
// condition now holds.
func (e *Execution) registerScope(p int, branchKey string, inputs []any, fn anyProcessor) (*deferred[scopeResult], error) {
	e.mu.Lock()

	if e.forceFailed {
		err := e.forceFailErr
		e.mu.Unlock()
		return nil, err
	}

	entry, ok := e.scopeCache[branchKey]
	if !ok {
		entry = &scopeEntry{
			fnByInput: make(map[any]anyProcessor),
			call:      newDeferred[scopeResult](),
		}
		e.scopeCache[branchKey] = entry
		e.scopeOrder = append(e.scopeOrder, branchKey)
	}
	entry.inputs = append(entry.inputs, inputs...)
	for _, in := range inputs {
		entry.fnByInput[in] = fn
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

// runScopePartition opens the nested Execution for one scope entry: its
// processor selection is entry.fnByInput, so each contributing input runs
// under the processor the call site that registered it supplied.
func (e *Execution) runScopePartition(ctx context.Context, entry *scopeEntry) {
	e.logger.Debug().Int("size", len(entry.inputs)).Log("opening nested scope")

	procFor := func(in any) anyProcessor { return entry.fnByInput[in] }
	successes, errs := execute(ctx, entry.inputs, procFor, e.logger, e.concurrency)
	entry.call.resolve(scopeResult{successes: successes, errs: errs})
}
