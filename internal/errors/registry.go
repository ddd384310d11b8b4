package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Kind       Kind
	Message    string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Expression Errors (E001-E019)
	// ============================================

	"E001": {
		Kind:       KindExpression,
		Message:    "Expression syntax error",
		Suggestion: "Signals are read with $name, actions are called with @name(...)",
	},
	"E002": {
		Kind:    KindExpression,
		Message: "Expression evaluation failed",
	},
	"E003": {
		Kind:    KindExpression,
		Message: "Expression panicked",
	},
	"E004": {
		Kind:    KindExpression,
		Message: "Unknown action",
	},

	// ============================================
	// Patch Errors (E020-E039)
	// ============================================

	"E020": {
		Kind:       KindPatchTargetNotFound,
		Message:    "Patch target not found",
		Suggestion: "Send a selector, or give the fragment root an id that exists in the page",
	},
	"E021": {
		Kind:    KindPatchTargetNotFound,
		Message: "Invalid selector",
	},

	// ============================================
	// Frame Errors (E040-E059)
	// ============================================

	"E040": {
		Kind:    KindMalformedFrame,
		Message: "Unknown event type",
	},
	"E041": {
		Kind:    KindMalformedFrame,
		Message: "Malformed data line",
	},
	"E042": {
		Kind:    KindMalformedFrame,
		Message: "Invalid frame payload",
	},

	// ============================================
	// Transport Errors (E060-E079)
	// ============================================

	"E060": {
		Kind:    KindStreamTransport,
		Message: "Stream connection failed",
	},
	"E061": {
		Kind:    KindStreamTransport,
		Message: "Stream read failed",
	},
	"E062": {
		Kind:    KindStreamTransport,
		Message: "Unexpected response status",
	},
	"E063": {
		Kind:    KindStreamTransport,
		Message: "Stream idle timeout",
	},

	// ============================================
	// Reactive Errors (E080-E099)
	// ============================================

	"E080": {
		Kind:       KindReactiveCycle,
		Message:    "Reactive cascade depth exceeded",
		Suggestion: "An effect writes a signal that re-triggers itself; break the cycle or use a computed signal",
	},
	"E081": {
		Kind:    KindConfig,
		Message: "Signal path is not writable",
	},

	// ============================================
	// Configuration Errors (E100-E119)
	// ============================================

	"E100": {
		Kind:    KindConfig,
		Message: "Malformed attribute modifier",
	},
	"E101": {
		Kind:    KindConfig,
		Message: "Invalid binding",
	},
	"E102": {
		Kind:       KindConfig,
		Message:    "Config file not found",
		Suggestion: "Create patchwire.json or patchwire.yaml, or pass --config",
	},
	"E103": {
		Kind:    KindConfig,
		Message: "Invalid configuration",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
