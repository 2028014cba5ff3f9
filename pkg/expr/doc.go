// Package expr implements the small expression language used by job
// conditions, concurrency group keys, output declarations and step command
// interpolation.
//
// Expressions are compiled once into a tree and evaluated many times:
//
//	e, err := expr.Compile("${{ matrix.os == 'linux' && success() }}")
//	ok, err := e.EvalBool(ctx)
//
// Supported operators: ==, !=, <, >, <=, >=, &&, ||, ! and parentheses.
// Literals: 'single' or "double" quoted strings, numbers, true, false.
// References: dotted paths (matrix.os, needs.build.outputs.id) resolved by a
// Context. Missing references evaluate to the empty string.
// Functions: always(), success(), failure(), cancelled(), contains(a, b),
// startsWith(a, b), endsWith(a, b).
package expr
