package util

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Failure records one identifier whose operation failed inside a batch.
type Failure struct {
	ID  string
	Err error
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %v", f.ID, f.Err) }

// Success pairs an identifier with the value its operation produced.
type Success[T any] struct {
	ID    string
	Value T
}

// BatchResult separates successes from failures. Order follows the input order.
type BatchResult[T any] struct {
	Succeeded []Success[T]
	Failed    []Failure
}

func (r BatchResult[T]) Total() int { return len(r.Succeeded) + len(r.Failed) }

// FailedIDs lists identifiers that failed, in input order.
func (r BatchResult[T]) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.ID
	}
	return ids
}

// MapIsolated applies fn to every id sequentially. A failing (or panicking) item is
// recorded and the pass continues with the next id. Once ctx is done the remaining ids
// are recorded as failed with the context error.
func MapIsolated[T any](ctx context.Context, ids []string, fn func(ctx context.Context, id string) (T, error)) BatchResult[T] {
	res := BatchResult[T]{
		Succeeded: make([]Success[T], 0, len(ids)),
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, Failure{ID: id, Err: err})
			continue
		}
		var v T
		err := Isolate(func() error {
			var ferr error
			v, ferr = fn(ctx, id)
			return ferr
		})
		if err != nil {
			res.Failed = append(res.Failed, Failure{ID: id, Err: err})
			continue
		}
		res.Succeeded = append(res.Succeeded, Success[T]{ID: id, Value: v})
	}
	return res
}

// PanicError is returned by Isolate when fn panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// Isolate runs fn and converts a panic into a *PanicError.
func Isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
