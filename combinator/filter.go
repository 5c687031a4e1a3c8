package combinator

import (
	"github.com/Swind/go-cycle-dispatcher/core"
)

// IgnoreTimeout maps a timeout to (zero, nil).
func IgnoreTimeout[T any](v T, err error) (T, error) {
	return filter(v, err, IsTimeout)
}

// IgnoreCanceled maps a cancellation, including engine shutdown, to (zero, nil).
func IgnoreCanceled[T any](v T, err error) (T, error) {
	return filter(v, err, core.IsCanceled)
}

// IgnoreOwnerGone maps a routine's owner-gone fault to (zero, nil). Teardown
// of the owning object is usually not worth reporting.
func IgnoreOwnerGone[T any](v T, err error) (T, error) {
	return filter(v, err, core.IsOwnerGone)
}

// Ignore returns a filter mapping errors matched by pred to (zero, nil).
//
//	v, err := combinator.Ignore[int](isNotFound)(future.Await(ctx))
func Ignore[T any](pred func(error) bool) func(T, error) (T, error) {
	return func(v T, err error) (T, error) {
		return filter(v, err, pred)
	}
}

func filter[T any](v T, err error, pred func(error) bool) (T, error) {
	if err != nil && pred != nil && pred(err) {
		var zero T
		return zero, nil
	}
	return v, err
}
