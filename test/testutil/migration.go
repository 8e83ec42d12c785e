package testutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/types"
)

var errStreamInterrupted = errors.New("streaming interrupted by connection loss")

// httpError is a control API failure with its status code.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	return e.message
}

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func serverError(format string, args ...any) error {
	return &httpError{status: http.StatusInternalServerError, message: fmt.Sprintf(format, args...)}
}

// streamAttempt is one in-flight streaming session between two nodes.
type streamAttempt struct {
	src, dst types.NodeID
	broken   chan struct{}
	closed   bool
}

func (s *streamAttempt) between(a, b types.NodeID) bool {
	return (s.src == a && s.dst == b) || (s.src == b && s.dst == a)
}

type moveRequest struct {
	keyspace string
	table    string
	src      types.TabletReplica
	dst      types.TabletReplica
	token    int64
}

// moveTablet migrates one tablet replica, retrying streaming after a
// connection loss.
func (c *FakeCluster) moveTablet(ctx context.Context, req moveRequest) error {
	c.mu.Lock()
	t, err := c.tableLocked(req.keyspace, req.table)
	if err != nil {
		c.mu.Unlock()
		return serverError("Tablet map not found for table %s.%s", req.keyspace, req.table)
	}
	idx := t.tabletFor(req.token)
	if t.tablets[idx].replica != req.src {
		c.mu.Unlock()
		return badRequest("Tablet %d of %s has no replica on %s:%d", idx, t.qualified(), req.src.HostID, req.src.Shard)
	}
	srcNode := c.nodeByHost(req.src.HostID)
	dstNode := c.nodeByHost(req.dst.HostID)
	c.mu.Unlock()

	if dstNode == nil {
		return badRequest("Unknown host %s", req.dst.HostID)
	}
	if req.src == req.dst {
		return nil
	}

	srcNode.logf("INFO", "stmt", "storage_service", "Moving tablet %d of %s from %s to %s", idx, t.qualified(), req.src.HostID, req.dst.HostID)
	for attempt := 1; ; attempt++ {
		err := c.stream(ctx, t, srcNode, dstNode)
		if errors.Is(err, errStreamInterrupted) {
			srcNode.logf("WARN", "streaming", "stream_session", "Streaming attempt %d of %s failed: %v, retrying", attempt, t.qualified(), err)
			continue
		}
		if err != nil {
			return err
		}

		break
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.dropped {
		return serverError("Tablet map not found for table %s", t.id)
	}
	now := time.Now()
	tablet := &t.tablets[idx]
	tablet.prev = tablet.visible(now)
	tablet.replica = req.dst
	tablet.visibleAt = now.Add(c.visibilityDelay)
	srcNode.logf("INFO", "stmt", "storage_service", "Tablet %d of %s moved to %s", idx, t.qualified(), req.dst.HostID)

	return nil
}

// stream runs one streaming attempt. The writer on dst runs on the cluster's
// context, so an interrupted attempt leaves it behind.
func (c *FakeCluster) stream(ctx context.Context, t *fakeTable, src, dst *FakeNode) error {
	c.mu.Lock()
	if t.dropped {
		c.mu.Unlock()
		return serverError("Tablet map not found for table %s", t.id)
	}
	t.guard++
	guard := t.guard
	data := t.copyRows()
	t.writers++
	attempt := &streamAttempt{src: src.ID, dst: dst.ID, broken: make(chan struct{})}
	c.streams[attempt] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.streams, attempt)
		c.mu.Unlock()
	}()

	result := make(chan error, 1)
	go func() {
		result <- c.applyStream(t, dst, guard, data)
	}()

	select {
	case err := <-result:
		return err
	case <-attempt.broken:
		return errStreamInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyStream is the receiving writer. It applies data only while its
// attempt is still the table's current one.
func (c *FakeCluster) applyStream(t *fakeTable, dst *FakeNode, guard int, data map[string]map[string]any) error {
	defer func() {
		c.mu.Lock()
		t.writers--
		c.notifyLocked()
		c.mu.Unlock()
	}()

	paused, err := dst.faults.hit(c.ctx, streamPausePoint, func() {
		dst.logf("INFO", "streaming", "stream_session", "stream_mutation_fragments: waiting")
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	stale := t.dropped || t.guard != guard
	if !stale {
		for k, row := range data {
			t.rows[k] = row
		}
	}
	c.mu.Unlock()

	if paused {
		dst.logf("INFO", "streaming", "stream_session", "stream_mutation_fragments: done")
	}
	if stale {
		dst.logf("DEBUG", "streaming", "stream_session", "Discarded %d partition(s) of %s from a stale streaming session", len(data), t.qualified())
	}

	return nil
}

// disconnect breaks every streaming attempt between node and peer.
func (c *FakeCluster) disconnect(node, peer types.NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for s := range c.streams {
		if s.between(node, peer) && !s.closed {
			close(s.broken)
			s.closed = true
		}
	}
}

func parseReplica(host, shard string) (types.TabletReplica, error) {
	id, err := uuid.Parse(host)
	if err != nil {
		return types.TabletReplica{}, badRequest("Invalid host id %q", host)
	}
	var n int
	if _, err := fmt.Sscanf(shard, "%d", &n); err != nil {
		return types.TabletReplica{}, badRequest("Invalid shard %q", shard)
	}

	return types.TabletReplica{HostID: id, Shard: n}, nil
}
