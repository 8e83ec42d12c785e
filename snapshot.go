package syncpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/arloliu/syncpoint/types"
)

// SnapshotLister enumerates the files of a snapshot on a node.
type SnapshotLister interface {
	// SnapshotFiles returns the base names of the files in the snapshot tag
	// of keyspace.table on node.
	SnapshotFiles(ctx context.Context, node types.NodeID, keyspace, table, tag string) ([]string, error)
}

// DirSnapshotLister reads snapshots from node data directories on local disk.
//
// The layout is "{datadir}/{keyspace}/{table}-{id}/snapshots/{tag}/{file}".
type DirSnapshotLister struct {
	// DataDir returns the data directory of a node.
	DataDir func(node types.NodeID) string
}

var _ SnapshotLister = DirSnapshotLister{}

// SnapshotFiles lists the regular files of the snapshot.
func (d DirSnapshotLister) SnapshotFiles(_ context.Context, node types.NodeID, keyspace, table, tag string) ([]string, error) {
	if d.DataDir == nil {
		return nil, fmt.Errorf("syncpoint: no data directory for node %s", node)
	}

	pattern := filepath.Join(d.DataDir(node), keyspace, table+"-*", "snapshots", tag, "*")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("syncpoint: list snapshot %s: %w", tag, err)
	}

	files := make([]string, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.Base(p))
	}
	sort.Strings(files)

	return files, nil
}
