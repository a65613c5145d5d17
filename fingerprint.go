package balar

import "fmt"

// DefaultFingerprint is a reasonable default a façade can use to compute
// RegisterCall's fingerprint argument: empty when extraArgs is nil or an
// empty slice, otherwise a textual representation of it. The engine never
// interprets a fingerprint itself — any stable, collision-resistant string
// keyed the same way across calls to the same operation works equally
// well.
func DefaultFingerprint(extraArgs ...any) string {
	if len(extraArgs) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", extraArgs)
}
