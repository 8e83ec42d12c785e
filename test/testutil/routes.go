package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/syncpoint/objstore"
	"github.com/arloliu/syncpoint/types"
)

// routes serves the node's control API.
func (n *FakeNode) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v2/error_injection/injection/{name}", n.handleEnableInjection)
	mux.HandleFunc("DELETE /v2/error_injection/injection/{name}", n.handleDisableInjection)
	mux.HandleFunc("POST /v2/error_injection/injection/{name}/message", n.handleMessageInjection)
	mux.HandleFunc("GET /v2/error_injection/injection", n.handleListInjections)
	mux.HandleFunc("POST /v2/error_injection/disconnect/{ip}", n.handleDisconnect)

	mux.HandleFunc("GET /task_manager/task_status/{id}", n.handleTaskStatus)
	mux.HandleFunc("GET /task_manager/wait_task/{id}", n.handleWaitTask)
	mux.HandleFunc("POST /task_manager/abort_task/{id}", n.handleAbortTask)

	mux.HandleFunc("POST /storage_service/backup", n.handleBackup)
	mux.HandleFunc("POST /storage_service/snapshots", n.handleSnapshot)
	mux.HandleFunc("POST /storage_service/keyspace_flush/{keyspace}", n.handleFlush)
	mux.HandleFunc("POST /storage_service/tablets/balancing", n.handleBalancing)
	mux.HandleFunc("POST /storage_service/tablets/move", n.handleMoveTablet)
	mux.HandleFunc("GET /storage_service/hostid/local", n.handleHostID)
	mux.HandleFunc("POST /raft/read_barrier", n.handleReadBarrier)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var he *httpError
	if errors.As(err, &he) {
		status = he.status
	}
	writeJSON(w, status, map[string]any{"message": err.Error(), "code": status})
}

func (n *FakeNode) handleEnableInjection(w http.ResponseWriter, r *http.Request) {
	oneShot := r.URL.Query().Get("one_shot")
	if oneShot != "" && oneShot != "True" && oneShot != "False" {
		writeError(w, badRequest("one_shot must be True or False, got %q", oneShot))
		return
	}
	name := r.PathValue("name")
	n.faults.enable(name, oneShot == "True")
	n.logf("INFO", "main", "debug_error_injection", "Enabling injection %s one_shot=%s", name, oneShot)
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleDisableInjection(w http.ResponseWriter, r *http.Request) {
	n.faults.disable(r.PathValue("name"))
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleMessageInjection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	released := n.faults.message(name)
	n.logf("INFO", "main", "debug_error_injection", "Message to injection %s released %d waiter(s)", name, released)
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleListInjections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.faults.list())
}

func (n *FakeNode) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	peer := types.NodeID(r.PathValue("ip"))
	n.logf("INFO", "main", "messaging_service", "Injected disconnect from %s", peer)
	n.cluster.disconnect(n.ID, peer)
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) task(w http.ResponseWriter, r *http.Request) *fakeTask {
	t := n.tasks.get(r.PathValue("id"))
	if t == nil {
		writeError(w, badRequest("task with id %s not found", r.PathValue("id")))
	}

	return t
}

func (n *FakeNode) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if t := n.task(w, r); t != nil {
		writeJSON(w, http.StatusOK, t.body())
	}
}

func (n *FakeNode) handleWaitTask(w http.ResponseWriter, r *http.Request) {
	t := n.task(w, r)
	if t == nil {
		return
	}

	select {
	case <-t.done:
		writeJSON(w, http.StatusOK, t.body())
	case <-r.Context().Done():
	case <-n.cluster.ctx.Done():
		writeError(w, serverError("node is shutting down"))
	}
}

func (n *FakeNode) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	t := n.task(w, r)
	if t == nil {
		return
	}
	t.aborted.Store(true)
	n.logf("INFO", "main", "task_manager", "Aborting task %s", t.id)
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleBackup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyspace, tag := q.Get("keyspace"), q.Get("snapshot")
	endpoint, bucket := q.Get("endpoint"), q.Get("bucket")
	table, prefix := q.Get("table"), q.Get("prefix")
	if keyspace == "" || tag == "" {
		writeError(w, badRequest("keyspace and snapshot are required"))
		return
	}
	if endpoint == "" || bucket == "" {
		writeError(w, badRequest("endpoint and bucket are required"))
		return
	}

	tables := n.snapshotTables(keyspace, table, tag)
	if len(tables) == 0 {
		writeError(w, badRequest("snapshot %s of keyspace %s not found", tag, keyspace))
		return
	}

	task := n.tasks.start("backup", keyspace, table, func(ctx context.Context, t *fakeTask) error {
		return n.runBackup(ctx, t, keyspace, tag, endpoint, bucket, prefix, tables)
	})
	writeJSON(w, http.StatusOK, task.id)
}

// snapshotTables returns the tables of keyspace with a snapshot under tag.
func (n *FakeNode) snapshotTables(keyspace, table, tag string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var tables []string
	for key := range n.snapshots {
		parts := strings.SplitN(key, "/", 3)
		if len(parts) != 3 || parts[0] != keyspace || parts[2] != tag {
			continue
		}
		if table != "" && parts[1] != table {
			continue
		}
		tables = append(tables, parts[1])
	}
	sort.Strings(tables)

	return tables
}

// runBackup uploads snapshot files one by one. The pause point sits after
// the first upload, and abort is honoured between files.
func (n *FakeNode) runBackup(ctx context.Context, t *fakeTask, keyspace, tag, endpoint, bucket, prefix string, tables []string) error {
	files := make(map[string][]string, len(tables))
	total := 0
	for _, table := range tables {
		names, err := n.cluster.SnapshotFiles(ctx, n.ID, keyspace, table, tag)
		if err != nil {
			return err
		}
		files[table] = names
		total += len(names)
	}
	t.progress(0, float64(total))

	uploaded := 0
	for _, table := range tables {
		n.logf("INFO", "strm", "snapshots", "Backup sstables from /var/lib/scylla/data/%s/%s/snapshots/%s to %s/%s", keyspace, table, tag, endpoint, bucket)

		for _, f := range files[table] {
			key := objstore.BackupKey(table, tag, f)
			if prefix != "" {
				key = path.Join(prefix, key)
			}
			if delay := n.cluster.visibilityDelayValue(); delay > 0 {
				time.AfterFunc(delay, func() {
					_ = n.cluster.Store.PutObject(context.Background(), key, []byte(f))
				})
			} else if err := n.cluster.Store.PutObject(ctx, key, []byte(f)); err != nil {
				return err
			}
			uploaded++
			t.progress(float64(uploaded), float64(total))

			if uploaded == 1 {
				_, err := n.faults.hit(ctx, backupPausePoint, func() {
					n.logf("INFO", "strm", "snapshots", "backup task: waiting")
				})
				if err != nil {
					return err
				}
			}
			if t.aborted.Load() {
				n.logf("INFO", "strm", "snapshots", "Backup of %s aborted after %d file(s)", keyspace, uploaded)
				return errTaskAborted
			}
		}
	}

	return nil
}

func (n *FakeNode) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyspace, tag := q.Get("kn"), q.Get("tag")
	if keyspace == "" || tag == "" {
		writeError(w, badRequest("kn and tag are required"))
		return
	}

	c := n.cluster
	c.mu.Lock()
	ks, ok := c.keyspaces[strings.ToLower(keyspace)]
	if !ok {
		c.mu.Unlock()
		writeError(w, badRequest("Keyspace %s does not exist", keyspace))
		return
	}
	names := splitList(q.Get("cf"))
	if len(names) == 0 {
		for name := range ks.tables {
			names = append(names, name)
		}
	}

	taken := make(map[string][]string, len(names))
	for _, name := range names {
		t, ok := ks.tables[strings.ToLower(name)]
		if !ok {
			c.mu.Unlock()
			writeError(w, badRequest("Table %s.%s does not exist", keyspace, name))
			return
		}
		c.flushLocked(t)
		taken[snapshotKey(ks.name, t.name, tag)] = sstableFiles(t)
	}
	c.mu.Unlock()

	n.mu.Lock()
	for key, files := range taken {
		n.snapshots[key] = files
	}
	n.mu.Unlock()

	n.logf("INFO", "main", "snapshots", "Taking snapshot %s of keyspace %s", tag, keyspace)
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleFlush(w http.ResponseWriter, r *http.Request) {
	c := n.cluster
	c.mu.Lock()
	defer c.mu.Unlock()

	ks, ok := c.keyspaces[strings.ToLower(r.PathValue("keyspace"))]
	if !ok {
		writeError(w, badRequest("Keyspace %s does not exist", r.PathValue("keyspace")))
		return
	}
	for _, t := range ks.tables {
		c.flushLocked(t)
	}
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleBalancing(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, badRequest("enabled must be a boolean"))
		return
	}

	n.mu.Lock()
	n.balancing = enabled
	n.mu.Unlock()

	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleMoveTablet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := parseReplica(q.Get("src_host"), q.Get("src_shard"))
	if err != nil {
		writeError(w, err)
		return
	}
	dst, err := parseReplica(q.Get("dst_host"), q.Get("dst_shard"))
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := strconv.ParseInt(q.Get("token"), 10, 64)
	if err != nil {
		writeError(w, badRequest("Invalid token %q", q.Get("token")))
		return
	}

	err = n.cluster.moveTablet(r.Context(), moveRequest{
		keyspace: q.Get("ks"),
		table:    q.Get("table"),
		src:      src,
		dst:      dst,
		token:    token,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (n *FakeNode) handleHostID(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.HostID.String())
}

func (n *FakeNode) handleReadBarrier(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, nil)
}
