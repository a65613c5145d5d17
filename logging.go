package balar

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the engine's opaque log sink. A nil Logger is always safe to
// use: every method in its call chain is nil-receiver-safe and becomes a
// no-op, so Options.Logger can be left unset with no allocation cost.
//
// github.com/joeycumines/stumpy provides the concrete JSON event
// implementation; construct one with stumpy.L.New(stumpy.L.WithStumpy(...))
// when diagnostics are wanted.
type Logger = *logiface.Logger[*stumpy.Event]
