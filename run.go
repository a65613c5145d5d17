package balar

import "context"

// Processor is user-provided per-item work: given one input, it produces
// one output or an error. A Processor that needs to coalesce outbound
// calls with its concurrent siblings does so by calling RegisterCall or
// RunScope with the context it was given (or a descendant of it).
type Processor[In any, Out any] func(ctx context.Context, input In) (Out, error)

// Result is the outcome of a Run or RunScope: every input is present in
// exactly one of Successes or Errors.
type Result[In comparable, Out any] struct {
	Successes map[In]Out
	Errors    map[In]error
}

// Options configures a top-level Run. The zero value is valid: unbounded
// concurrency (one chunk holding every deduplicated input) and a silent
// logger.
type Options struct {
	// Concurrency caps how many processors run at once, chunking the
	// deduplicated input list into sequential groups of at most this
	// size. Non-positive means unbounded (default).
	Concurrency int
	// Logger receives structured diagnostic events from the engine. A
	// nil Logger is a safe no-op.
	Logger Logger
}

func resolveOptions(opts *Options) (concurrency int, logger Logger) {
	if opts == nil {
		return 0, nil
	}
	return opts.Concurrency, opts.Logger
}

// Run drives processor over inputs. If ctx already carries an ambient
// Execution (this call happened from inside another Processor), Run
// delegates to RunScope with an empty partition key instead of starting a
// fresh top-level Execution — this is how a Processor can open a plain
// nested run over a derived input list.
//
// Otherwise Run deduplicates inputs, partitions the unique set into
// sequential chunks of size opts.Concurrency (default: one chunk holding
// everything), and drives each chunk in turn, merging their outcomes into
// one Result.
//
// Run panics if processor is nil, rather than returning a configuration
// error.
func Run[In comparable, Out any](ctx context.Context, inputs []In, processor Processor[In, Out], opts *Options) (Result[In, Out], error) {
	if processor == nil {
		panic(`balar: nil processor`)
	}

	if _, ok := currentExecution(ctx); ok {
		return RunScope(ctx, inputs, processor, "")
	}

	concurrency, logger := resolveOptions(opts)

	anyInputs := make([]any, len(inputs))
	for i, in := range inputs {
		anyInputs[i] = in
	}

	procFor := func(in any) anyProcessor {
		return func(ctx context.Context, input any) (any, error) {
			return processor(ctx, input.(In))
		}
	}

	successesAny, errsAny := execute(ctx, anyInputs, procFor, logger, concurrency)

	result := Result[In, Out]{
		Successes: make(map[In]Out, len(successesAny)),
		Errors:    make(map[In]error, len(errsAny)),
	}
	for _, in := range inputs {
		if v, ok := successesAny[any(in)]; ok {
			result.Successes[in] = v.(Out)
		} else if e, ok := errsAny[any(in)]; ok {
			result.Errors[in] = e
		}
	}
	return result, nil
}

// execute is the shared chunk-driving core behind both Run's top-level
// entry and a scope partition's nested Execution: deduplicate, chunk by
// concurrency, and run each chunk on the same Execution in turn (reset
// between chunks), short circuiting the remaining chunks if one
// force-fails.
func execute(ctx context.Context, inputs []any, procFor func(any) anyProcessor, logger Logger, concurrency int) (map[any]any, map[any]error) {
	unique := newOrderedSet[any]()
	for _, in := range inputs {
		unique.add(in)
	}
	all := unique.values()

	successes := make(map[any]any, len(all))
	errs := make(map[any]error, len(all))
	if len(all) == 0 {
		return successes, errs
	}

	chunkSize := concurrency
	if chunkSize <= 0 || chunkSize > len(all) {
		chunkSize = len(all)
	}

	execution := newExecution(logger, concurrency, successes, errs)

	for start := 0; start < len(all); start += chunkSize {
		end := start + chunkSize
		if end > len(all) {
			end = len(all)
		}
		execution.runChunk(ctx, all[start:end], procFor)

		execution.mu.Lock()
		failed, failErr := execution.forceFailed, execution.forceFailErr
		execution.mu.Unlock()

		if failed {
			for _, in := range all[end:] {
				errs[in] = failErr
			}
			break
		}
	}
	return successes, errs
}
