package scenario

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/syncpoint"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/types"
)

const (
	streamPausePoint   = "stream_mutation_fragments"
	streamWaitingLine  = "stream_mutation_fragments: waiting"
	streamDoneLine     = "stream_mutation_fragments: done"
	dropLine           = "Dropping"
	tabletMapNotFound  = "Tablet map not found"
	shufflePoint       = "tablet_allocator_shuffle"
	defaultTabletsKS   = "test"
	defaultMoveTimeout = 5 * time.Minute

	// A single-tablet table owns every token.
	anyToken int64 = 0
)

// TabletSettings holds what the tablet scenarios share.
type TabletSettings struct {
	// Keyspace is created and dropped by the scenario. Default: "test"
	Keyspace string

	// LogTimeout bounds each log wait. Zero uses the watcher default.
	LogTimeout time.Duration

	// MoveTimeout bounds a tablet migration. Default: 5m
	MoveTimeout time.Duration
}

func (t TabletSettings) withDefaults() TabletSettings {
	if t.Keyspace == "" {
		t.Keyspace = defaultTabletsKS
	}
	if t.MoveTimeout <= 0 {
		t.MoveTimeout = defaultMoveTimeout
	}

	return t
}

// resetKeyspace drops keyspace if present and creates it with the given
// initial tablet count.
func resetKeyspace(ctx context.Context, sc *syncpoint.ScenarioContext, keyspace string, tablets int) error {
	if err := sc.Exec(ctx, "DROP KEYSPACE IF EXISTS "+keyspace); err != nil {
		return err
	}

	return sc.Exec(ctx, fmt.Sprintf(createKeyspaceStmt, keyspace, tablets))
}

// dropKeyspace is deferred by scenarios; it outlives a canceled ctx.
func dropKeyspace(ctx context.Context, sc *syncpoint.ScenarioContext, keyspace string) {
	if err := sc.Exec(context.WithoutCancel(ctx), "DROP KEYSPACE IF EXISTS "+keyspace); err != nil {
		sc.Logger.Warn("Failed to drop keyspace", "keyspace", keyspace, "error", err)
	}
}

// disableBalancing stops the load balancer and returns a func that restarts it.
func disableBalancing(ctx context.Context, sc *syncpoint.ScenarioContext, node types.NodeID) (func(), error) {
	if err := sc.API.DisableTabletBalancing(ctx, node); err != nil {
		return nil, err
	}

	return func() {
		if err := sc.API.SetTabletBalancing(context.WithoutCancel(ctx), node, true); err != nil {
			sc.Logger.Warn("Failed to re-enable tablet balancing", "node", node, "error", err)
		}
	}, nil
}

// startAsync runs fn in its own goroutine and delivers its result on the
// returned channel.
func startAsync(ctx context.Context, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	return done
}

// await waits for a result from startAsync.
func await(ctx context.Context, op string, done <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &types.TimeoutError{Operation: op, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func moveRequest(keyspace, table string, src, dst types.TabletReplica) restapi.MoveTabletRequest {
	return restapi.MoveTabletRequest{
		Keyspace: keyspace,
		Table:    table,
		Src:      src,
		Dst:      dst,
		Token:    anyToken,
	}
}

// StreamingTopologyGuard checks that a streaming writer abandoned by a
// retried migration cannot resurrect truncated data.
type StreamingTopologyGuard struct {
	Settings TabletSettings
}

// Name returns the scenario name.
func (s *StreamingTopologyGuard) Name() string { return "StreamingTopologyGuard" }

// Description returns the scenario description.
func (s *StreamingTopologyGuard) Description() string {
	return "Disconnect a paused tablet migration, truncate, release the stale writer and verify no data comes back"
}

// Run executes the scenario; it needs two nodes.
func (s *StreamingTopologyGuard) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	if err := requireNodes(sc, 2); err != nil {
		return err
	}
	cfg := s.Settings.withDefaults()
	coord := sc.Nodes[0].ID
	ks := cfg.Keyspace
	table := ks + ".test"
	selectPK := "SELECT pk FROM " + table

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restore, err := disableBalancing(ctx, sc, coord)
	if err != nil {
		return err
	}
	defer restore()

	if err := resetKeyspace(ctx, sc, ks, 1); err != nil {
		return err
	}
	defer dropKeyspace(ctx, sc, ks)
	if err := sc.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (pk int PRIMARY KEY, c int)", table)); err != nil {
		return err
	}
	if err := sc.Exec(ctx, fmt.Sprintf("INSERT INTO %s (pk, c) VALUES (?, ?)", table), 7, 0); err != nil {
		return err
	}
	if err := expectRows(ctx, sc, selectPK, 1); err != nil {
		return err
	}

	src, err := firstReplica(ctx, sc, coord, ks, "test", anyToken)
	if err != nil {
		return err
	}
	dstNode, dst, err := otherNode(ctx, sc, src)
	if err != nil {
		return err
	}
	srcNode, err := nodeByHost(ctx, sc, src)
	if err != nil {
		return err
	}

	if err := sc.Faults.Enable(ctx, dstNode.ID, streamPausePoint, true); err != nil {
		return err
	}
	mark, err := dstNode.Log.Mark(ctx)
	if err != nil {
		return err
	}

	sc.Logger.Info("Starting tablet migration", "from", src.HostID, "to", dst.HostID)
	migration := startAsync(ctx, func(ctx context.Context) error {
		return sc.API.MoveTablet(ctx, coord, moveRequest(ks, "test", src, dst))
	})

	// The destination writer has received data but not applied it yet.
	if _, err := dstNode.Log.WaitFor(ctx, streamWaitingLine, mark, cfg.LogTimeout); err != nil {
		return err
	}
	if mark, err = dstNode.Log.Mark(ctx); err != nil {
		return err
	}

	// Streaming fails and is retried, leaving the paused writer behind.
	if err := sc.API.InjectDisconnect(ctx, srcNode, dstNode.ID); err != nil {
		return err
	}

	sc.Logger.Info("Waiting for migration to finish")
	if err := await(ctx, "move_tablet", migration, cfg.MoveTimeout); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sc.Logger.Info("Migration done")

	if err := expectRows(ctx, sc, selectPK, 1); err != nil {
		return err
	}
	if err := sc.Exec(ctx, "TRUNCATE "+table); err != nil {
		return err
	}
	if err := expectRows(ctx, sc, selectPK, 0); err != nil {
		return err
	}

	sc.Logger.Info("Releasing abandoned writer", "node", dstNode.ID)
	if err := sc.Faults.Message(ctx, dstNode.ID, streamPausePoint); err != nil {
		return err
	}
	if _, err := dstNode.Log.WaitFor(ctx, streamDoneLine, mark, cfg.LogTimeout); err != nil {
		return err
	}
	if err := expectRows(ctx, sc, selectPK, 0); err != nil {
		return fmt.Errorf("data resurrected: %w", err)
	}

	sc.Logger.Info("Moving tablet back", "from", dst.HostID, "to", src.HostID)
	back := startAsync(ctx, func(ctx context.Context) error {
		return sc.API.MoveTablet(ctx, coord, moveRequest(ks, "test", dst, src))
	})
	if err := await(ctx, "move_tablet", back, cfg.MoveTimeout); err != nil {
		return fmt.Errorf("move back: %w", err)
	}

	return expectRows(ctx, sc, selectPK, 0)
}

// TableDroppedDuringStreaming drops a table while its migration is paused in
// streaming and checks the balancer can still move other tablets.
type TableDroppedDuringStreaming struct {
	Settings TabletSettings
}

// Name returns the scenario name.
func (s *TableDroppedDuringStreaming) Name() string { return "TableDroppedDuringStreaming" }

// Description returns the scenario description.
func (s *TableDroppedDuringStreaming) Description() string {
	return "Drop a table during a paused tablet migration and verify later migrations proceed"
}

// Run executes the scenario; it needs two nodes.
func (s *TableDroppedDuringStreaming) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	if err := requireNodes(sc, 2); err != nil {
		return err
	}
	cfg := s.Settings.withDefaults()
	coord := sc.Nodes[0].ID
	ks := cfg.Keyspace

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	restore, err := disableBalancing(ctx, sc, coord)
	if err != nil {
		return err
	}
	defer restore()

	if err := resetKeyspace(ctx, sc, ks, 1); err != nil {
		return err
	}
	defer dropKeyspace(ctx, sc, ks)

	sc.Logger.Info("Populating tables")
	for _, table := range []string{"test", "test2"} {
		if err := sc.Exec(ctx, fmt.Sprintf("CREATE TABLE %s.%s (pk int PRIMARY KEY, c int)", ks, table)); err != nil {
			return err
		}
		if err := sc.Exec(ctx, fmt.Sprintf("INSERT INTO %s.%s (pk, c) VALUES (?, ?)", ks, table), 7, 3); err != nil {
			return err
		}
		if err := expectRows(ctx, sc, fmt.Sprintf("SELECT pk FROM %s.%s", ks, table), 1); err != nil {
			return err
		}
	}

	src, err := firstReplica(ctx, sc, coord, ks, "test", anyToken)
	if err != nil {
		return err
	}
	other, err := firstReplica(ctx, sc, coord, ks, "test2", anyToken)
	if err != nil {
		return err
	}
	dstNode, dst, err := otherNode(ctx, sc, src)
	if err != nil {
		return err
	}

	if err := sc.Faults.Enable(ctx, dstNode.ID, streamPausePoint, true); err != nil {
		return err
	}
	mark, err := dstNode.Log.Mark(ctx)
	if err != nil {
		return err
	}

	sc.Logger.Info("Starting tablet migration", "from", src.HostID, "to", dst.HostID)
	migration := startAsync(ctx, func(ctx context.Context) error {
		return sc.API.MoveTablet(ctx, coord, moveRequest(ks, "test", src, dst))
	})
	if _, err := dstNode.Log.WaitFor(ctx, streamWaitingLine, mark, cfg.LogTimeout); err != nil {
		return err
	}

	// Streaming blocks the drop, so it runs concurrently.
	drop := startAsync(ctx, func(ctx context.Context) error {
		return sc.Exec(ctx, fmt.Sprintf("DROP TABLE %s.test", ks))
	})
	if _, err := dstNode.Log.WaitFor(ctx, dropLine, mark, cfg.LogTimeout); err != nil {
		return err
	}

	if err := sc.Faults.Message(ctx, dstNode.ID, streamPausePoint); err != nil {
		return err
	}
	if err := await(ctx, "drop_table", drop, cfg.MoveTimeout); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}

	sc.Logger.Info("Waiting for migration to finish")
	if err := await(ctx, "move_tablet", migration, cfg.MoveTimeout); err != nil {
		if !types.IsRemoteMessage(err, tabletMapNotFound) {
			return fmt.Errorf("migration: %w", err)
		}
		sc.Logger.Info("Migration failed on dropped table", "error", err)
	}

	// The destination saw the drop and its paused writer ran to completion.
	if _, err := dstNode.Log.WaitForAll(ctx, []string{dropLine, streamDoneLine}, mark, cfg.LogTimeout); err != nil {
		return err
	}

	sc.Logger.Info("Verifying that moving the other tablet works")
	if err := expectReplica(ctx, sc, coord, ks, "test2", other); err != nil {
		return err
	}

	_, target, err := otherNode(ctx, sc, other)
	if err != nil {
		return err
	}
	move := startAsync(ctx, func(ctx context.Context) error {
		return sc.API.MoveTablet(ctx, coord, moveRequest(ks, "test2", other, target))
	})
	if err := await(ctx, "move_tablet", move, cfg.MoveTimeout); err != nil {
		return fmt.Errorf("move %s.test2: %w", ks, err)
	}

	return expectReplica(ctx, sc, coord, ks, "test2", target)
}

// TabletScans checks count and full scans over a keyspace split in tablets.
type TabletScans struct {
	Settings TabletSettings

	// Rows is the number of rows inserted. Default: 100
	Rows int

	// Tablets is the initial tablet count. Default: 8
	Tablets int

	// Concurrency bounds parallel inserts. Default: 16
	Concurrency int
}

// Name returns the scenario name.
func (s *TabletScans) Name() string { return "TabletScans" }

// Description returns the scenario description.
func (s *TabletScans) Description() string {
	return "Insert rows across tablets and verify count and full scans"
}

// Run executes the scenario.
func (s *TabletScans) Run(ctx context.Context, sc *syncpoint.ScenarioContext) error {
	cfg := s.Settings.withDefaults()
	rows, tablets, concurrency := s.Rows, s.Tablets, s.Concurrency
	if rows <= 0 {
		rows = 100
	}
	if tablets <= 0 {
		tablets = 8
	}
	if concurrency <= 0 {
		concurrency = 16
	}
	table := cfg.Keyspace + ".test"

	if err := resetKeyspace(ctx, sc, cfg.Keyspace, tablets); err != nil {
		return err
	}
	defer dropKeyspace(ctx, sc, cfg.Keyspace)
	if err := sc.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (pk int PRIMARY KEY, c int)", table)); err != nil {
		return err
	}

	sc.Logger.Info("Populating table", "rows", rows)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	insert := fmt.Sprintf("INSERT INTO %s (pk, c) VALUES (?, ?)", table)
	for k := range rows {
		g.Go(func() error {
			return sc.Exec(gctx, insert, k, k)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	count, err := sc.CountRows(ctx, "SELECT count(*) FROM "+table)
	if err != nil {
		return err
	}
	if count != int64(rows) {
		return types.Assertf("count(*) returned %d, want %d", count, rows)
	}

	iter := sc.CQL.Query(fmt.Sprintf("SELECT pk, c FROM %s", table)).IterContext(ctx)
	var pk, c, seen int
	for iter.Scan(&pk, &c) {
		seen++
		if c != pk {
			_ = iter.Close()
			return types.Assertf("row %d has c=%d", pk, c)
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if seen != rows {
		return types.Assertf("full scan returned %d row(s), want %d", seen, rows)
	}

	return sc.Exec(ctx, "DROP KEYSPACE "+cfg.Keyspace)
}

// DropWithShuffle repeatedly recreates a keyspace while the tablet allocator
// shuffles tablets on every node.
type DropWithShuffle struct {
	Settings TabletSettings

	// Iterations of drop/create/insert. Default: 3
	Iterations int
}

// Name returns the scenario name.
func (s *DropWithShuffle) Name() string { return "DropWithShuffle" }

// Description returns the scenario description.
func (s *DropWithShuffle) Description() string {
	return "Drop and recreate a keyspace repeatedly while tablets are shuffled"
}

// Run executes the scenario.
func (s *DropWithShuffle) Run(ctx context.Context, sc *syncpoint.ScenarioContext) (err error) {
	cfg := s.Settings.withDefaults()
	iterations := s.Iterations
	if iterations <= 0 {
		iterations = 3
	}
	ks := cfg.Keyspace
	nodes := sc.NodeIDs()

	// Raises the chance of a migration racing the schema change.
	if err := sc.Faults.EnableOn(ctx, nodes, shufflePoint, false); err != nil {
		return err
	}
	defer func() {
		if derr := sc.Faults.DisableOn(context.WithoutCancel(ctx), nodes, shufflePoint); derr != nil && err == nil {
			err = derr
		}
	}()

	stmts := []string{
		"DROP KEYSPACE IF EXISTS " + ks,
		fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1} AND tablets = {'initial': 8}", ks),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.tbl_sample_kv (id int, value text, PRIMARY KEY (id))", ks),
	}
	for i := range iterations {
		sc.Logger.Info("Recreating keyspace", "iteration", i+1, "of", iterations)
		for _, stmt := range stmts {
			if err := sc.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		if err := sc.Exec(ctx, fmt.Sprintf("INSERT INTO %s.tbl_sample_kv (id, value) VALUES (?, ?)", ks), 1, "ala"); err != nil {
			return err
		}
	}

	return sc.Exec(ctx, "DROP KEYSPACE "+ks)
}

// nodeByHost returns the id of the node with the replica's host id.
func nodeByHost(ctx context.Context, sc *syncpoint.ScenarioContext, replica types.TabletReplica) (types.NodeID, error) {
	for _, n := range sc.Nodes {
		id, err := sc.HostID(ctx, n.ID)
		if err != nil {
			return "", err
		}
		if id == replica.HostID {
			return n.ID, nil
		}
	}

	return "", types.Assertf("no node has host id %s", replica.HostID)
}
