// Package balar implements a cooperative batching scheduler.
//
// Balar lets application code describe per-item processing as if each item
// were handled independently, while coalescing outbound "bulk operations"
// (functions accepting a list of inputs and returning a mapping from input
// to output) so concurrent items share a single underlying call per
// distinct operation per synchronization point ("checkpoint").
//
// # Model
//
// [Run] drives a [Processor] over a list of inputs, one goroutine per
// input. Whenever every live processor is either parked at a wrapped call
// (registered via [RegisterCall] or [RunScope]) or has finished, a
// checkpoint fires: every distinct pending bulk call is invoked exactly
// once, and every pending nested scope is opened as its own [Execution].
// Results are routed back to the processors that requested them, which
// then resume.
//
// # Ambient context
//
// Go has no coroutine-local storage, so the current Execution and current
// processor index are carried explicitly via context.Context, the same way
// any Go API threads request-scoped values through a call graph. [Processor]
// implementations receive this context as their first argument and must
// pass it (or a descendant of it, via context.WithValue-preserving
// derivation) to any code that calls [RegisterCall] or [RunScope].
//
// # What this package does not do
//
// Balar does not generate scalar/bulk façades over bulk functions, and
// does not provide if/switch control-flow sugar — those are thin,
// type-directed adapters built on top of [RegisterCall] and [RunScope],
// external to the engine. A façade calls
// RegisterCall with a stable operation id (unique per wrapped function,
// per façade instance) and a fingerprint of any extra arguments; a branch
// combinator calls RunScope with a partition key derived from the branch
// taken (e.g. "true"/"false" for an if, the case index or "default" for a
// switch). Two branches of the same switch must use distinct partition
// keys so they open independent nested Executions; two calls from the
// same lexical position across different processors must use the same
// partition key so they coalesce.
//
// Balar performs no memoization across runs and no automatic recovery from
// bulk failures: every distinct input registered for a batch within one
// checkpoint is delivered to the bulk function once (equal inputs from
// several registrations collapse to one), and a bulk failure is reported
// to every processor waiting on that batch.
package balar
