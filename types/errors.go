package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrTimeout indicates a deadline elapsed without the expected event.
	ErrTimeout = errors.New("syncpoint: timed out")

	// ErrMarkNodeMismatch indicates a log mark was used against another node's stream.
	ErrMarkNodeMismatch = errors.New("syncpoint: log mark belongs to a different node")

	// ErrStateRegression indicates a task was observed leaving a terminal state.
	ErrStateRegression = errors.New("syncpoint: task left a terminal state")

	// ErrUnknownNode indicates the node is not part of the scenario context.
	ErrUnknownNode = errors.New("syncpoint: unknown node")

	// ErrNilAPI indicates that a nil control API was provided.
	ErrNilAPI = errors.New("syncpoint: control API cannot be nil")

	// ErrNilSource indicates that a nil log source was provided.
	ErrNilSource = errors.New("syncpoint: log source cannot be nil")

	// ErrNoObjectStore indicates a scenario needs an object store but none is configured.
	ErrNoObjectStore = errors.New("syncpoint: no object store configured")

	// ErrNoCQLSession indicates a scenario needs CQL but no session is configured.
	ErrNoCQLSession = errors.New("syncpoint: no CQL session configured")

	// ErrAssertion indicates a scenario invariant did not hold.
	ErrAssertion = errors.New("syncpoint: assertion failed")
)

// TimeoutError reports which suspending operation ran out of time.
type TimeoutError struct {
	// Operation is the suspending operation (e.g. "wait_for", "wait_task").
	Operation string

	// Node is the node the operation was waiting on, if any.
	Node NodeID

	// Timeout is the budget that elapsed.
	Timeout time.Duration

	// Last is the last error observed while retrying, if any.
	Last error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	var b strings.Builder
	b.WriteString("syncpoint: ")
	b.WriteString(e.Operation)
	if e.Node != "" {
		b.WriteString(" on ")
		b.WriteString(string(e.Node))
	}
	b.WriteString(" timed out after ")
	b.WriteString(e.Timeout.String())
	if e.Last != nil {
		b.WriteString(": ")
		b.WriteString(e.Last.Error())
	}

	return b.String()
}

// Unwrap returns ErrTimeout and the last observed error for errors.Is/As compatibility.
func (e *TimeoutError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrTimeout}
	}

	return []error{ErrTimeout, e.Last}
}

// RemoteCallError reports a control API request that was rejected or could not be delivered.
type RemoteCallError struct {
	// Node is the node the request was sent to.
	Node NodeID

	// Operation names the control API call (e.g. "enable_injection").
	Operation string

	// StatusCode is the HTTP status, or 0 when the request never got a response.
	StatusCode int

	// Message is the human-readable message returned by the server.
	Message string

	// Cause is the transport error, if any.
	Cause error
}

// Error implements the error interface.
func (e *RemoteCallError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("syncpoint: %s on %s failed: %s", e.Operation, e.Node, msg)
	}

	return fmt.Sprintf("syncpoint: %s on %s failed with status %d: %s", e.Operation, e.Node, e.StatusCode, msg)
}

// Unwrap returns the transport error for errors.Is/As compatibility.
func (e *RemoteCallError) Unwrap() error {
	return e.Cause
}

// IsRemoteMessage reports whether err is a RemoteCallError whose message contains substr.
//
// Negative-test scenarios use it to confirm a specific failure reason.
func IsRemoteMessage(err error, substr string) bool {
	var rerr *RemoteCallError
	if !errors.As(err, &rerr) {
		return false
	}

	return strings.Contains(rerr.Message, substr)
}

// MultiNodeError collects the failures of a fan-out operation, one per failing node.
type MultiNodeError struct {
	// Operation names the fanned-out call.
	Operation string

	// Errors maps every failing node to its error.
	Errors map[NodeID]error
}

// Error implements the error interface.
func (e *MultiNodeError) Error() string {
	nodes := make([]string, 0, len(e.Errors))
	for node := range e.Errors {
		nodes = append(nodes, string(node))
	}
	sort.Strings(nodes)

	parts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		parts = append(parts, node+": "+e.Errors[NodeID(node)].Error())
	}

	return fmt.Sprintf("syncpoint: %s failed on %d node(s): %s", e.Operation, len(nodes), strings.Join(parts, "; "))
}

// Unwrap returns every per-node error for errors.Is/As compatibility.
func (e *MultiNodeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}

	return errs
}

// Failed returns the failing nodes in sorted order.
func (e *MultiNodeError) Failed() []NodeID {
	nodes := make([]NodeID, 0, len(e.Errors))
	for node := range e.Errors {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	return nodes
}

// Assertf returns an error wrapping ErrAssertion with a formatted message.
func Assertf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAssertion, fmt.Sprintf(format, args...))
}
