// Package restapi is the HTTP client for a node's control API.
//
// It covers the endpoints the harness needs:
//
//   - /v2/error_injection: arm, disarm, message and list fault points, inject disconnects
//   - /task_manager: task status, server-side wait, abort
//   - /storage_service: backup, snapshots, flush, tablet balancing and moves, host id
//   - /raft/read_barrier: group0 catch-up before reading system tables
//
// Every non-2xx response becomes a *types.RemoteCallError carrying the
// server's message, so negative scenarios can match on failure reasons:
//
//	err := api.MoveTablet(ctx, node, req)
//	if types.IsRemoteMessage(err, "Tablet map not found") {
//	    // the table was dropped while the migration ran
//	}
//
// The default transport is a pooled client from go-cleanhttp.
package restapi
