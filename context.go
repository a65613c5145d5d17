package balar

import "context"

// unexported context keys, following the standard Go idiom for
// request-scoped ambient values (see context.WithValue).
type (
	ctxKeyExecution struct{}
	ctxKeyProcessor struct{}
)

// withExecution returns a context carrying execution as the ambient
// Execution, for the duration of a processor invocation.
func withExecution(ctx context.Context, execution *Execution) context.Context {
	return context.WithValue(ctx, ctxKeyExecution{}, execution)
}

// currentExecution returns the ambient Execution, and whether one is set.
func currentExecution(ctx context.Context) (*Execution, bool) {
	execution, ok := ctx.Value(ctxKeyExecution{}).(*Execution)
	return execution, ok
}

// withProcessor returns a context carrying index as the ambient processor
// index, for the duration of a single processor invocation.
func withProcessor(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, ctxKeyProcessor{}, index)
}

// currentProcessor returns the ambient processor index, and whether one is
// set.
func currentProcessor(ctx context.Context) (int, bool) {
	index, ok := ctx.Value(ctxKeyProcessor{}).(int)
	return index, ok
}

// ambientProcessor resolves both the ambient Execution and processor index
// required by RegisterCall and RunScope: a missing Execution is a
// (catchable) OutsideContextError, a missing processor index alongside a
// present Execution is an engine bug.
func ambientProcessor(ctx context.Context) (*Execution, int, error) {
	execution, ok := currentExecution(ctx)
	if !ok {
		return nil, 0, &OutsideContextError{}
	}
	index, ok := currentProcessor(ctx)
	if !ok {
		return nil, 0, internalBug("ambient Execution present without a processor index")
	}
	return execution, index, nil
}
