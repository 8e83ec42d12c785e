// Package types provides shared types and error definitions for the syncpoint harness.
//
// This is a leaf package with zero syncpoint imports to prevent import cycles.
// All packages in syncpoint can safely import this package.
//
// # Types
//
// LogMark and PatternMatch describe positions and matches in a node's
// append-only diagnostic stream:
//
//	mark, _ := watcher.Mark(ctx)
//	match, _ := watcher.WaitFor(ctx, "backup task: waiting", mark, time.Minute)
//	// match.Offset >= mark.Offset always holds
//
// TaskHandle and TaskStatus describe server-side asynchronous operations.
// TaskState follows a monotonic state machine:
//
//	running -> done
//	running -> failed
//
// # Errors
//
// Sentinel errors are provided for common failure scenarios:
//
//   - ErrTimeout: A wait_for / wait_task deadline elapsed
//   - ErrMarkNodeMismatch: A mark was used against another node's stream
//   - ErrStateRegression: A task was observed leaving a terminal state
//   - ErrAssertion: A scenario invariant did not hold
//
// Typed errors carry details:
//
//   - TimeoutError: Which operation timed out, on which node, after how long
//   - RemoteCallError: A control API call was rejected; carries the server message
//   - MultiNodeError: A fan-out call failed on one or more nodes
package types
