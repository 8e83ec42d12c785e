package restapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/arloliu/syncpoint/types"
)

// taskStatusBody is the task manager's JSON status document.
type taskStatusBody struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Kind              string  `json:"kind"`
	Scope             string  `json:"scope"`
	State             string  `json:"state"`
	IsAbortable       bool    `json:"is_abortable"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
	Error             string  `json:"error"`
	Keyspace          string  `json:"keyspace"`
	Table             string  `json:"table"`
	ProgressTotal     float64 `json:"progress_total"`
	ProgressCompleted float64 `json:"progress_completed"`
}

func (b taskStatusBody) toStatus() types.TaskStatus {
	return types.TaskStatus{
		ID:                b.ID,
		State:             types.ParseTaskState(b.State),
		Error:             b.Error,
		Type:              b.Type,
		Kind:              b.Kind,
		Scope:             b.Scope,
		Keyspace:          b.Keyspace,
		Table:             b.Table,
		StartTime:         parseTime(b.StartTime),
		EndTime:           parseTime(b.EndTime),
		ProgressCompleted: b.ProgressCompleted,
		ProgressTotal:     b.ProgressTotal,
	}
}

// parseTime accepts RFC 3339 timestamps and returns zero for anything else.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// GetTaskStatus returns the current status of a task without blocking.
func (c *Client) GetTaskStatus(ctx context.Context, node types.NodeID, id string) (types.TaskStatus, error) {
	var body taskStatusBody
	if err := c.call(ctx, node, "get_task_status", http.MethodGet, "/task_manager/task_status/"+url.PathEscape(id), nil, &body); err != nil {
		return types.TaskStatus{}, err
	}
	if body.ID == "" {
		body.ID = id
	}

	return body.toStatus(), nil
}

// WaitTaskRemote blocks on the server until the task is terminal.
//
// The request is bounded only by ctx, not by the per-request timeout.
func (c *Client) WaitTaskRemote(ctx context.Context, node types.NodeID, id string) (types.TaskStatus, error) {
	var body taskStatusBody
	if err := c.callUnbounded(ctx, node, "wait_task", http.MethodGet, "/task_manager/wait_task/"+url.PathEscape(id), nil, &body); err != nil {
		return types.TaskStatus{}, err
	}
	if body.ID == "" {
		body.ID = id
	}

	return body.toStatus(), nil
}

// AbortTask requests cooperative cancellation of a task.
//
// The task may still complete successfully if it passes its last
// cancellation check before observing the request.
func (c *Client) AbortTask(ctx context.Context, node types.NodeID, id string) error {
	return c.call(ctx, node, "abort_task", http.MethodPost, "/task_manager/abort_task/"+url.PathEscape(id), nil, nil)
}
