// Package combinator decorates the futures returned by the dispatcher.
//
// Nothing here touches the dispatcher: a combinator only changes how the
// caller waits for a result or which errors it sees. Timing out a wait never
// cancels the work item; it keeps running on the main context and its
// result is discarded by the combinator.
//
// Filters take the (value, error) pair of an await so they chain directly:
//
//	v, err := combinator.IgnoreCanceled(
//	    combinator.IgnoreTimeout(
//	        combinator.Timeout(ctx, future, 1500*time.Millisecond)))
package combinator
