// Package logwatch implements causal log waits.
//
// A node's diagnostic output is an append-only stream addressed by absolute
// offsets. The Watcher takes a mark (the end offset now) and later waits for
// a line matching a pattern at or after that mark, which is how scenarios
// detect that a server-side pause point has been reached:
//
//	mark, _ := w.Mark(ctx)
//	_ = faults.Enable(ctx, node, "backup_task_pause", true)
//	handle, _ := api.Backup(ctx, node, req)
//	_, err := w.WaitFor(ctx, "backup task: waiting", mark, time.Minute)
//
// # Sources
//
//   - MemorySource: in-process buffer, used by fakes
//   - FileSource: the node's log file on local disk
//   - NATSSource: a JetStream stream fed by a Shipper on the node's host
//
// A Shipper tails any Source and publishes MessagePack-encoded Record values,
// so watchers on other hosts can follow the same stream.
package logwatch
