package combinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-cycle-dispatcher/core"
)

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("dispatch: await timed out")

// TimeoutError reports that a future did not settle within After.
// The work item behind the future is not affected.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %v", ErrTimeout.Error(), e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsTimeout reports whether err is a combinator timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Timeout awaits f for at most d. When d elapses first it returns a
// *TimeoutError; the item still runs and its outcome is dropped. When ctx
// ends first it returns ctx.Err().
func Timeout[T any](ctx context.Context, f *core.Future[T], d time.Duration) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := f.Await(waitCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		var zero T
		// Prefer the result if it landed at the same instant.
		select {
		case r := <-done:
			return r.v, r.err
		default:
		}
		return zero, &TimeoutError{After: d}
	}
}

// WithTimeout returns a future that mirrors f, or faults with *TimeoutError
// when f has not settled after d. Cancellation suppression is not carried
// over: a mirrored cancellation always reports *core.CanceledError.
func WithTimeout[T any](f *core.Future[T], d time.Duration) *core.Future[T] {
	out, bridge := core.NewPromise[T]()
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-f.Done():
			mirror(f.Completion(), bridge)
		case <-timer.C:
			select {
			case <-f.Done():
				mirror(f.Completion(), bridge)
			default:
				_ = bridge.Fault(&TimeoutError{After: d})
			}
		}
	}()
	return out
}

func mirror(src, dst *core.Completion) {
	switch src.State() {
	case core.StateResolved:
		_ = dst.Resolve(src.Value())
	case core.StateFaulted:
		_ = dst.Fault(src.Err())
	case core.StateCanceled:
		var ce *core.CanceledError
		if errors.As(src.Err(), &ce) {
			_ = dst.Cancel(ce.Cause)
			return
		}
		_ = dst.Cancel(nil)
	}
}
