// Package expr compiles and evaluates binding expressions.
//
// Expressions are github.com/expr-lang/expr programs extended with:
//
//	$user.name            read a signal (tracked by the store)
//	$count = $count + 1   assignment; also +=, -=, *=, /=, ++ and --
//	@post('/save')        call an action from the evaluator's table
//	a; b                  statements; the last value is the result
//
// The environment also exposes el (the bound element), evt (the triggering
// event) and signals (a snapshot of the public signals).
package expr
