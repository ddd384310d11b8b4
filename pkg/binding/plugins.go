package binding

func registerBuiltins(r *Registry) {
	for _, p := range []Plugin{
		{Name: "signals", Factory: pluginSignals, Declaration: true},
		{Name: "computed", Factory: pluginComputed, Expression: ExpressionRequired, Declaration: true},
		{Name: "ref", Factory: pluginRef, Expression: ExpressionNone, Declaration: true},
		{Name: "indicator", Factory: pluginIndicator, Expression: ExpressionNone, Declaration: true},

		{Name: "text", Factory: pluginText, Expression: ExpressionRequired},
		{Name: "show", Factory: pluginShow, Expression: ExpressionRequired},
		{Name: "class", Factory: pluginClass, Expression: ExpressionRequired},
		{Name: "style", Factory: pluginStyle, Expression: ExpressionRequired},
		{Name: "attr", Factory: pluginAttr, Expression: ExpressionRequired},
		{Name: "json-signals", Factory: pluginJSONSignals},

		{Name: "bind", Factory: pluginBind, Expression: ExpressionNone},
		{Name: "effect", Factory: pluginEffect, Expression: ExpressionRequired},
		{Name: "init", Factory: pluginInit, Expression: ExpressionRequired},

		{Name: "on", Factory: pluginOn, Expression: ExpressionRequired},
		{Name: "on-interval", Factory: pluginOnInterval, Expression: ExpressionRequired},
		{Name: "on-signal-patch", Factory: pluginOnSignalPatch, Expression: ExpressionRequired},

		{Name: "ignore", Factory: marker, Expression: ExpressionNone},
		{Name: "ignore-morph", Factory: marker, Expression: ExpressionNone},
		{Name: "preserve-attr", Factory: marker, Expression: ExpressionNone},
	} {
		r.RegisterPlugin(p)
	}
}

// marker plugins only flag the element for the lifecycle manager or the
// morph engine.
func marker(*Binding) (Teardown, error) {
	return func() {}, nil
}
