// Package faultinject drives named fault points inside cluster nodes.
//
// A fault point is a named location in server code where execution can be
// made to pause until released. The harness arms a point before triggering
// the operation that reaches it, detects arrival through the node's log, and
// then releases the paused execution:
//
//	_ = inj.Enable(ctx, node, "stream_mutation_fragments", true)
//	go moveTablet()
//	_, _ = watcher.WaitFor(ctx, "stream_mutation_fragments: waiting", mark, 0)
//	// ... perturb the system while the writer is paused ...
//	_ = inj.Message(ctx, node, "stream_mutation_fragments")
//
// The *On variants fan a command out to several nodes concurrently and
// report every failing node in a *types.MultiNodeError.
package faultinject
