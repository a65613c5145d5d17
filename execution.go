package balar

import (
	"context"
	"fmt"
	"sync"
)

// anyProcessor is the type-erased form of a Processor[In, Out]: the engine's
// coordinator never knows In/Out, only that it can hand an input to a
// function and get back an output or an error. Run and RunScope do the
// conversion at the generic boundary.
type anyProcessor func(ctx context.Context, input any) (any, error)

// anyBulkFunc is the type-erased form of a BulkFunc[In, Out].
type anyBulkFunc func(ctx context.Context, inputs []any, extraArgs any) (map[any]any, error)

type batchKey struct {
	operationID string
	fingerprint string
}

// batchEntry accumulates one distinct wrapped-call operation within a
// checkpoint (see batch.go for registration).
type batchEntry struct {
	fn        anyBulkFunc
	extraArgs any
	inputs    *orderedSet[any]
	call      *deferred[map[any]any]
}

// scopeEntry accumulates one branch partition's nested-scope inputs within
// a checkpoint (see scope.go for registration).
type scopeEntry struct {
	inputs    []any
	fnByInput map[any]anyProcessor
	call      *deferred[scopeResult]
}

// scopeResult is the structured outcome a scope entry's Deferred resolves
// to: the full result of the nested Execution it opens, keyed over every
// input that contributed to the partition (not just one caller's inputs —
// RunScope projects it down before returning).
type scopeResult struct {
	successes map[any]any
	errs      map[any]error
}

// Execution is one cooperative batching cycle: it owns the checkpoint
// detector and the two per-checkpoint buffers, and drives one chunk of
// processors at a time. It is addressed from goroutines only through the
// ambient context.Context carried by withExecution/withProcessor, never
// constructed directly by user code.
//
// All mutable state is owned by Execution's methods under a single mutex,
// mirroring microbatch.Batcher's single-owner-of-state design — the
// difference is a mutex rather than a dedicated goroutine, since Balar's
// tasks are already goroutines that must block on their own Deferred, not
// messages a central loop would need to multiplex.
type Execution struct {
	mu          sync.Mutex
	logger      Logger
	concurrency int
	baseCtx     context.Context

	total    int
	done     int
	awaiting map[int]struct{}

	checkpointOrder []batchKey
	checkpointCache map[batchKey]*batchEntry

	scopeOrder    []string
	scopeCache    map[string]*scopeEntry
	scopeOrderKey map[int]int

	// inFlight holds the batch/scope Deferreds dispatched by the drain
	// cycle currently running, i.e. entries no longer in
	// checkpointCache/scopeCache but not yet resolved. forceFail must be
	// able to reject these directly: by the time it runs, drain has
	// already emptied the caches it would otherwise have checked.
	inFlight []rejecter

	forceFailed  bool
	forceFailErr error

	successes map[any]any
	errs      map[any]error
}

func newExecution(logger Logger, concurrency int, successes map[any]any, errs map[any]error) *Execution {
	return &Execution{
		logger:      logger,
		concurrency: concurrency,
		successes:   successes,
		errs:        errs,
	}
}

// resetForChunk clears per-checkpoint buffers and counters ahead of driving
// a new chunk. successes/errs are not reset: they accumulate across every
// chunk of one top-level run.
func (e *Execution) resetForChunk(ctx context.Context, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseCtx = ctx
	e.total = total
	e.done = 0
	e.awaiting = make(map[int]struct{})
	e.checkpointOrder = nil
	e.checkpointCache = make(map[batchKey]*batchEntry)
	e.scopeOrder = nil
	e.scopeCache = make(map[string]*scopeEntry)
	e.scopeOrderKey = make(map[int]int)
	e.inFlight = nil
	e.forceFailed = false
	e.forceFailErr = nil
}

// runChunk drives chunkInputs (already deduplicated by the caller) to
// completion: one goroutine per input, each tagged with its processor
// index via the ambient context, then waits for every one to finish.
// procFor selects the processor for a given input (a single function in
// the ordinary case, or a per-input lookup when this Execution was
// constructed to drain a scope partition).
func (e *Execution) runChunk(ctx context.Context, chunkInputs []any, procFor func(any) anyProcessor) {
	e.resetForChunk(ctx, len(chunkInputs))

	var wg sync.WaitGroup
	wg.Add(len(chunkInputs))
	for i, input := range chunkInputs {
		go func(i int, input any) {
			defer wg.Done()
			taskCtx := withProcessor(withExecution(ctx, e), i)
			out, err := callAnyProcessor(taskCtx, procFor(input), input)
			e.taskComplete(i, input, out, err)
		}(i, input)
	}
	wg.Wait()
}

func callAnyProcessor(ctx context.Context, proc anyProcessor, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &UserError{Recovered: r}
		}
	}()
	return proc(ctx, input)
}

// taskComplete records one processor's outcome and re-evaluates the
// checkpoint condition, or, for a StopAll-class error, force-fails the
// whole chunk instead of counting the task as done.
func (e *Execution) taskComplete(i int, input any, out any, err error) {
	if sf, ok := err.(stopAller); ok && sf.stopAll() {
		e.forceFail(err)
		e.mu.Lock()
		e.errs[input] = err
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	if err != nil {
		e.errs[input] = err
	} else {
		e.successes[input] = out
	}
	delete(e.awaiting, i)
	e.done++
	equal := len(e.awaiting)+e.done == e.total
	e.mu.Unlock()

	if equal {
		e.drain()
	}
}

// forceFail rejects every pending Deferred — both those still waiting to
// be dispatched (in the checkpoint caches, for a checkpoint that hasn't
// drained yet) and those already dispatched by the drain cycle currently
// running (e.inFlight) — with err, and poisons the Execution so further
// registrations short-circuit with the same error, instead of silently
// hanging. Idempotent: only the first caller within one chunk has any
// effect.
//
// Rejecting an in-flight entry races with its own goroutine resolving it
// normally; deferred's resolve/reject is idempotent, so whichever reaches
// the Deferred first wins. This is what converts a still-awaiting input
// to the force-fail error even though drain has already moved its entry
// out of the checkpoint caches before this runs.
func (e *Execution) forceFail(err error) {
	e.mu.Lock()
	if e.forceFailed {
		e.mu.Unlock()
		return
	}
	e.forceFailed = true
	e.forceFailErr = err
	batchCache := e.checkpointCache
	scopeCache := e.scopeCache
	inFlight := e.inFlight
	e.inFlight = nil
	e.checkpointOrder = nil
	e.checkpointCache = make(map[batchKey]*batchEntry)
	e.scopeOrder = nil
	e.scopeCache = make(map[string]*scopeEntry)
	e.scopeOrderKey = make(map[int]int)
	e.awaiting = make(map[int]struct{})
	e.mu.Unlock()

	e.logger.Debug().Str("error", err.Error()).Log("force-failing chunk")

	for _, entry := range batchCache {
		entry.call.reject(err)
	}
	for _, entry := range scopeCache {
		entry.call.reject(err)
	}
	for _, r := range inFlight {
		r.reject(err)
	}
}

// drain fires every pending wrapped call and opens every pending nested
// scope for the checkpoint just detected. Per-entry work runs in its own
// goroutine so that completions may interleave arbitrarily, but goroutines
// are launched in insertion order, matching the "scheduled in insertion
// order" guarantee.
//
// Every dispatched entry's Deferred is recorded in e.inFlight before its
// goroutine is launched, so a force-fail triggered by a sibling entry from
// this same drain cycle (e.g. one batch fails fast while another is still
// running) can still reject it — see forceFail.
//
// taskComplete, registerBatch, and registerScope call drain directly, in
// the goroutine whose completion or registration made the checkpoint
// condition hold, after releasing the mutex. drain takes the buffers under
// the mutex, so a registration that lands after that point goes into the
// next checkpoint's buffers. Detections are not coalesced: every caller
// that observes the condition calls drain, and a drain that finds the
// buffers empty dispatches nothing.
func (e *Execution) drain() {
	e.mu.Lock()
	batchOrder := e.checkpointOrder
	batchCache := e.checkpointCache
	scopeOrder := e.scopeOrder
	scopeCache := e.scopeCache
	ctx := e.baseCtx

	inFlight := make([]rejecter, 0, len(batchOrder)+len(scopeOrder))
	for _, key := range batchOrder {
		inFlight = append(inFlight, batchCache[key].call)
	}
	for _, key := range scopeOrder {
		inFlight = append(inFlight, scopeCache[key].call)
	}
	e.inFlight = inFlight

	e.checkpointOrder = nil
	e.checkpointCache = make(map[batchKey]*batchEntry)
	e.scopeOrder = nil
	e.scopeCache = make(map[string]*scopeEntry)
	e.scopeOrderKey = make(map[int]int)
	e.awaiting = make(map[int]struct{})
	e.mu.Unlock()

	e.logDrain(len(batchOrder), len(scopeOrder))

	for _, key := range batchOrder {
		entry := batchCache[key]
		go e.runBatch(ctx, key, entry)
	}
	for _, key := range scopeOrder {
		entry := scopeCache[key]
		go e.runScopePartition(ctx, entry)
	}
}

func (e *Execution) logDrain(batches, scopes int) {
	e.logger.Debug().Int("batches", batches).Int("scopes", scopes).Log("draining checkpoint")
}

func internalBug(msg string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(msg, args...)}
}
