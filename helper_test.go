package balar_test

import (
	"context"
	"sort"
	"sync"

	"github.com/joeycumines/balar"
)

// wrapBulk is a minimal, test-only stand-in for the façade factories that
// sit outside the engine: it turns a map-returning bulk function into a
// plain Go function that coalesces through RegisterCall whenever called
// from inside a running Processor.
func wrapBulk[In comparable, Out any](operationID string, fn balar.BulkFunc[In, Out]) func(ctx context.Context, inputs []In) (map[In]Out, error) {
	return func(ctx context.Context, inputs []In) (map[In]Out, error) {
		return balar.RegisterCall(ctx, operationID, "", fn, inputs, nil)
	}
}

// wrapBulkSlice is wrapBulk for bulk functions returning an ordered
// sequence rather than a map.
func wrapBulkSlice[In comparable, Out any](operationID string, fn func(ctx context.Context, inputs []In, extraArgs any) ([]Out, error)) func(ctx context.Context, inputs []In) (map[In]Out, error) {
	return func(ctx context.Context, inputs []In) (map[In]Out, error) {
		return balar.RegisterCallSlice(ctx, operationID, "", fn, inputs, nil)
	}
}

// callRecorder captures the argument list of every invocation of a fake
// bulk function, for asserting "called exactly once per checkpoint with
// this exact set of inputs" without depending on goroutine scheduling
// order.
type callRecorder[T any] struct {
	mu    sync.Mutex
	calls [][]T
}

func (c *callRecorder[T]) record(args []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, append([]T(nil), args...))
}

func (c *callRecorder[T]) snapshot() [][]T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]T(nil), c.calls...)
}

func sortedInts(vs []int) []int {
	out := append([]int(nil), vs...)
	sort.Ints(out)
	return out
}

func sortedStrings(vs []string) []string {
	out := append([]string(nil), vs...)
	sort.Strings(out)
	return out
}
