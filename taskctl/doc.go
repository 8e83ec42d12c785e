// Package taskctl observes, waits for and aborts asynchronous server-side tasks.
//
// Tasks follow a monotonic state machine:
//
//	running -> done
//	running -> failed
//
// The Controller keeps the last state observed per handle and reports
// types.ErrStateRegression if a terminal task is later seen in another state.
//
// Usage:
//
//	handle, _ := api.Backup(ctx, node, req)
//	status, err := tasks.Wait(ctx, handle, 0)
//	if err != nil {
//	    return err // timeout or transport error
//	}
//	if status.State == types.TaskFailed {
//	    // failure is a value, not an error
//	}
package taskctl
