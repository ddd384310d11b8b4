// Package errors provides the coded error taxonomy of the patchwire runtime.
//
// Every failure the runtime reports is an *Error carrying a Kind that tells
// callers how far the failure propagates:
//
//   - ExpressionError: a malformed or throwing expression. Only the owning
//     binding is disabled.
//   - PatchTargetNotFound: an element patch resolved to nothing. The frame is
//     skipped and the stream continues.
//   - MalformedFrame: an unparsable stream frame. The frame is skipped.
//   - StreamTransportError: the network failed. The stream ends in the
//     errored state and the owner decides whether to reconnect.
//   - ReactiveCycleError: a cascade of dependent writes exceeded the maximum
//     depth. The offending write is rejected.
//   - ConfigError: an invalid attribute modifier or configuration value.
//
// # Error Codes
//
// Each error has a unique code (e.g., "E001") that maps to a kind, a short
// message and a detailed explanation:
//
//	err := errors.New("E020").
//	    WithDetail(`selector "#feed" matched no element`)
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E020: Patch target not found
//	//
//	//   selector "#feed" matched no element
//
// Use IsKind to classify an error chain:
//
//	if errors.IsKind(err, errors.KindPatchTargetNotFound) {
//	    logger.Warn("skipping patch", "error", err)
//	}
package errors
