package types

import (
	"time"

	"github.com/google/uuid"
)

// NodeID identifies a node of the cluster under test.
//
// It is the node's host address as seen by the harness (e.g. "127.0.0.1").
type NodeID string

// String returns the string representation of the NodeID.
func (n NodeID) String() string {
	return string(n)
}

// LogMark is a causal checkpoint in a node's diagnostic stream.
//
// A mark records the end-of-stream offset at capture time. It is an immutable
// value and is only comparable with marks taken on the same node.
type LogMark struct {
	// Node is the node whose stream the mark belongs to.
	Node NodeID

	// Offset is the end-of-stream offset at capture time.
	Offset int64
}

// SameNode reports whether both marks belong to the same node's stream.
func (m LogMark) SameNode(other LogMark) bool {
	return m.Node == other.Node
}

// Before reports whether m precedes other in the same stream.
// Marks from different nodes are never ordered.
func (m LogMark) Before(other LogMark) bool {
	return m.SameNode(other) && m.Offset < other.Offset
}

// Line is a single complete line read from a diagnostic stream.
type Line struct {
	// Offset is the absolute stream offset of the start of the line.
	Offset int64

	// Text is the line content without the trailing newline.
	Text string
}

// PatternMatch is a line that matched a search pattern.
type PatternMatch struct {
	// Node is the node whose stream produced the match.
	Node NodeID

	// Line is the full matched line.
	Line string

	// Groups holds the submatches; Groups[0] is the text of the whole match.
	Groups []string

	// Offset is the absolute stream offset of the start of the matched line.
	Offset int64
}

// Group returns the i-th capture group, or "" when it does not exist.
func (m PatternMatch) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}

	return m.Groups[i]
}

// TaskHandle references a server-side asynchronous operation.
//
// The ID is opaque and unique for the lifetime of the owning node's process.
type TaskHandle struct {
	// Node is the node that owns the task.
	Node NodeID

	// ID is the server-assigned task identifier.
	ID string
}

// String returns "node/id".
func (h TaskHandle) String() string {
	return string(h.Node) + "/" + h.ID
}

// TaskState is the lifecycle state of a server-side task.
//
// Transitions are monotonic: running -> done or running -> failed.
// No transition leaves a terminal state.
type TaskState string

const (
	// TaskRunning indicates the task has not reached a terminal state.
	TaskRunning TaskState = "running"
	// TaskDone indicates the task completed successfully.
	TaskDone TaskState = "done"
	// TaskFailed indicates the task failed, was aborted, or lost a required resource.
	TaskFailed TaskState = "failed"
)

// IsTerminal reports whether the state is done or failed.
func (s TaskState) IsTerminal() bool {
	return s == TaskDone || s == TaskFailed
}

// ParseTaskState maps a server state string onto the harness state machine.
//
// The server reports "created" and "suspended" for tasks that have not finished;
// both are treated as running.
func ParseTaskState(s string) TaskState {
	switch s {
	case "done":
		return TaskDone
	case "failed":
		return TaskFailed
	default:
		return TaskRunning
	}
}

// TaskStatus is a point-in-time observation of a task.
type TaskStatus struct {
	// ID is the task identifier.
	ID string

	// State is the observed lifecycle state.
	State TaskState

	// Error holds the server-provided failure detail for failed tasks.
	Error string

	// Type, Kind and Scope describe the task as reported by the server.
	Type  string
	Kind  string
	Scope string

	// Keyspace and Table name the schema objects the task operates on, if any.
	Keyspace string
	Table    string

	// StartTime and EndTime are zero when not reported.
	StartTime time.Time
	EndTime   time.Time

	// ProgressCompleted and ProgressTotal are in server-defined units.
	ProgressCompleted float64
	ProgressTotal     float64
}

// IsTerminal reports whether the observed state is terminal.
func (s TaskStatus) IsTerminal() bool {
	return s.State.IsTerminal()
}

// TabletReplica is a (host, shard) pair holding a tablet replica.
type TabletReplica struct {
	HostID uuid.UUID
	Shard  int
}

// Logger is the structured logger used across the harness.
//
// The method set matches *slog.Logger, so a slog logger can be passed directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}
