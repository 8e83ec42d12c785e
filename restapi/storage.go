package restapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/types"
)

// BackupRequest describes an upload of a snapshot to object storage.
type BackupRequest struct {
	// Keyspace holds the table to back up.
	Keyspace string

	// Table narrows the backup to one table. Optional.
	Table string

	// Snapshot is the snapshot tag to upload.
	Snapshot string

	// Endpoint names the object storage endpoint configured on the node.
	Endpoint string

	// Bucket is the destination bucket.
	Bucket string

	// Prefix is prepended to uploaded keys. Optional.
	Prefix string
}

// Backup starts an asynchronous backup and returns its task handle.
func (c *Client) Backup(ctx context.Context, node types.NodeID, req BackupRequest) (types.TaskHandle, error) {
	q := url.Values{
		"keyspace": {req.Keyspace},
		"snapshot": {req.Snapshot},
		"endpoint": {req.Endpoint},
		"bucket":   {req.Bucket},
	}
	if req.Table != "" {
		q.Set("table", req.Table)
	}
	if req.Prefix != "" {
		q.Set("prefix", req.Prefix)
	}

	var id string
	if err := c.call(ctx, node, "backup", http.MethodPost, "/storage_service/backup", q, &id); err != nil {
		return types.TaskHandle{}, err
	}

	return types.TaskHandle{Node: node, ID: id}, nil
}

// TakeSnapshot snapshots the given tables of keyspace under tag.
// An empty tables list snapshots the whole keyspace.
func (c *Client) TakeSnapshot(ctx context.Context, node types.NodeID, keyspace, tag string, tables ...string) error {
	q := url.Values{"tag": {tag}, "kn": {keyspace}}
	if len(tables) > 0 {
		q.Set("cf", strings.Join(tables, ","))
	}

	return c.call(ctx, node, "take_snapshot", http.MethodPost, "/storage_service/snapshots", q, nil)
}

// FlushKeyspace flushes memtables of every table in keyspace to disk.
func (c *Client) FlushKeyspace(ctx context.Context, node types.NodeID, keyspace string) error {
	return c.call(ctx, node, "flush_keyspace", http.MethodPost, "/storage_service/keyspace_flush/"+url.PathEscape(keyspace), nil, nil)
}

// SetTabletBalancing enables or disables the automatic tablet load balancer.
func (c *Client) SetTabletBalancing(ctx context.Context, node types.NodeID, enabled bool) error {
	q := url.Values{"enabled": {strconv.FormatBool(enabled)}}
	return c.call(ctx, node, "tablet_balancing", http.MethodPost, "/storage_service/tablets/balancing", q, nil)
}

// DisableTabletBalancing is SetTabletBalancing(ctx, node, false).
func (c *Client) DisableTabletBalancing(ctx context.Context, node types.NodeID) error {
	return c.SetTabletBalancing(ctx, node, false)
}

// MoveTabletRequest describes a tablet replica migration.
type MoveTabletRequest struct {
	Keyspace string
	Table    string

	// Src is the replica to move away from.
	Src types.TabletReplica

	// Dst is the replica to move to.
	Dst types.TabletReplica

	// Token is any token owned by the tablet.
	Token int64
}

// MoveTablet migrates one tablet replica and returns when the migration finished.
//
// The request is bounded only by ctx, since migrations may legitimately stay
// paused at a fault point for a long time.
func (c *Client) MoveTablet(ctx context.Context, node types.NodeID, req MoveTabletRequest) error {
	q := url.Values{
		"ks":        {req.Keyspace},
		"table":     {req.Table},
		"src_host":  {req.Src.HostID.String()},
		"src_shard": {strconv.Itoa(req.Src.Shard)},
		"dst_host":  {req.Dst.HostID.String()},
		"dst_shard": {strconv.Itoa(req.Dst.Shard)},
		"token":     {strconv.FormatInt(req.Token, 10)},
	}

	return c.callUnbounded(ctx, node, "move_tablet", http.MethodPost, "/storage_service/tablets/move", q, nil)
}

// HostID returns the node's host id.
func (c *Client) HostID(ctx context.Context, node types.NodeID) (uuid.UUID, error) {
	var raw string
	if err := c.call(ctx, node, "host_id", http.MethodGet, "/storage_service/hostid/local", nil, &raw); err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &types.RemoteCallError{Node: node, Operation: "host_id", StatusCode: http.StatusOK, Message: "malformed host id " + strconv.Quote(raw), Cause: err}
	}

	return id, nil
}

// ReadBarrier makes node catch up with the latest committed group0 state.
//
// After it returns, the node's view of schema and tablet metadata reflects
// every change committed before the call.
func (c *Client) ReadBarrier(ctx context.Context, node types.NodeID) error {
	return c.call(ctx, node, "read_barrier", http.MethodPost, "/raft/read_barrier", nil, nil)
}
