// Package scenario runs deterministic, assertion-bearing scenarios against a
// live cluster.
//
// A scenario is a sequence of steps over a *syncpoint.ScenarioContext. Steps
// rendezvous with the cluster through log marks and fault points instead of
// sleeps:
//
//	_ = sc.Faults.Enable(ctx, node.ID, "backup_task_pause", true)
//	mark, _ := node.Log.Mark(ctx)
//	handle, _ := sc.API.Backup(ctx, node.ID, req)
//	_, _ = node.Log.WaitFor(ctx, "backup task: waiting", mark, 0)
//	_ = sc.Tasks.Abort(ctx, handle)
//	_ = sc.Faults.Message(ctx, node.ID, "backup_task_pause")
//	status, _ := sc.Tasks.Wait(ctx, handle, 0)
//
// The Runner executes registered scenarios in order and reports each result:
//
//	runner := scenario.NewRunner(scenario.WithLogger(logger))
//	runner.Register(scenario.All(scenario.Settings{})...)
//	report, err := runner.Run(ctx, sc)
//
// Built-in scenarios:
//   - SimpleBackup: snapshot upload reaches the object store in full
//   - AbortableBackup: an aborted upload fails and stops partway
//   - StreamingTopologyGuard: a stale streaming writer cannot resurrect data
//   - TableDroppedDuringStreaming: dropping a migrating table does not wedge the balancer
//   - TabletScans: count and full scans over many tablets
//   - DropWithShuffle: schema churn while tablets are shuffled
package scenario
