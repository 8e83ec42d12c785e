// Package syncpoint is a harness for deterministic correctness tests against a
// live distributed database cluster.
//
// Tests drive the cluster through its REST control plane and CQL, and
// synchronize with server-internal pause points instead of sleeping. Three
// primitives make that possible:
//
//   - LogWatcher (package logwatch): causal mark and wait-for-pattern over a
//     node's append-only log
//   - FaultInjector (package faultinject): arm, one-shot arm, release and
//     disarm named fault points
//   - TaskController (package taskctl): status, wait-to-terminal and abort of
//     asynchronous server tasks
//
// A ScenarioContext bundles them with the CQL session and the object store,
// and is passed explicitly to every scenario step.
//
// # Basic Usage
//
//	api := restapi.New()
//	sc, err := syncpoint.NewScenarioContext(
//	    syncpoint.WithControlAPI(api),
//	    syncpoint.WithNode("127.0.0.1", logwatch.NewFileSource("/var/log/scylla/node1.log")),
//	    syncpoint.WithCQLSession(v1.NewSession(gocqlSession)),
//	    syncpoint.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sc.Close()
//
//	node := sc.Nodes[0]
//	mark, _ := node.Log.Mark(ctx)
//	_ = sc.Faults.Enable(ctx, node.ID, "backup_task_pause", true)
//	handle, _ := sc.API.Backup(ctx, node.ID, req)
//	_, _ = node.Log.WaitFor(ctx, "backup task: waiting", mark, time.Minute)
//	_ = sc.Tasks.Abort(ctx, handle)
//	_ = sc.Faults.Message(ctx, node.ID, "backup_task_pause")
//	status, _ := sc.Tasks.Wait(ctx, handle, 0)
//
// # Error Handling
//
// Every suspending call takes a context and a timeout and reports expiry as a
// *types.TimeoutError, which wraps types.ErrTimeout:
//
//	if errors.Is(err, types.ErrTimeout) {
//	    // nothing matched in time
//	}
//
// Control API failures are *types.RemoteCallError values carrying the node's
// message. Fan-out commands report every failing node in a
// *types.MultiNodeError. A task that ends in the failed state is not an error;
// inspect TaskStatus.State.
//
// # Metrics
//
// Pass a types.MetricsCollector via WithMetrics; contrib/metrics/vm provides a
// VictoriaMetrics implementation.
package syncpoint
