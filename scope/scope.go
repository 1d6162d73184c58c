// Package scope carries typed values through a context.Context and fails loudly when a
// required one is missing.
package scope

import (
	"context"
	"fmt"
)

// MissingContextError is raised (as a panic value) when code that must run inside a
// scope runs outside of it. It is a programming error, never a runtime condition.
type MissingContextError struct {
	Name string
	Hint string
}

func (e *MissingContextError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("missing %s in context", e.Name)
	}
	return fmt.Sprintf("missing %s in context: %s", e.Name, e.Hint)
}

type key[T any] struct{}

// With returns a child context holding v. A later With for the same type shadows it.
func With[T any](ctx context.Context, v T) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key[T]{}, v)
}

// Lookup returns the value of type T stored in ctx.
func Lookup[T any](ctx context.Context) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key[T]{}).(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Must returns the value of type T stored in ctx and panics with *MissingContextError
// when there is none.
func Must[T any](ctx context.Context, name, hint string) T {
	v, ok := Lookup[T](ctx)
	if !ok {
		panic(&MissingContextError{Name: name, Hint: hint})
	}
	return v
}
