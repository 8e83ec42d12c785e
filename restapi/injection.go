package restapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/arloliu/syncpoint/types"
)

// EnableInjection arms a named fault point on node.
//
// The call returns only after the node acknowledged the arm, so a trigger
// issued afterwards is guaranteed to observe it.
//
// Parameters:
//   - ctx: Context for cancellation
//   - node: Target node
//   - name: Fault point name
//   - oneShot: Disarm automatically after the first hit
//
// Returns:
//   - error: *types.RemoteCallError on failure
func (c *Client) EnableInjection(ctx context.Context, node types.NodeID, name string, oneShot bool) error {
	q := url.Values{"one_shot": {pythonBool(oneShot)}}
	return c.call(ctx, node, "enable_injection", http.MethodPost, "/v2/error_injection/injection/"+url.PathEscape(name), q, nil)
}

// DisableInjection disarms a fault point. Disarming an unarmed point is not an error.
func (c *Client) DisableInjection(ctx context.Context, node types.NodeID, name string) error {
	return c.call(ctx, node, "disable_injection", http.MethodDelete, "/v2/error_injection/injection/"+url.PathEscape(name), nil, nil)
}

// MessageInjection releases every execution currently paused at the fault point.
func (c *Client) MessageInjection(ctx context.Context, node types.NodeID, name string) error {
	return c.call(ctx, node, "message_injection", http.MethodPost, "/v2/error_injection/injection/"+url.PathEscape(name)+"/message", nil, nil)
}

// EnabledInjections lists the fault points currently armed on node.
func (c *Client) EnabledInjections(ctx context.Context, node types.NodeID) ([]string, error) {
	var names []string
	if err := c.call(ctx, node, "enabled_injections", http.MethodGet, "/v2/error_injection/injection", nil, &names); err != nil {
		return nil, err
	}

	return names, nil
}

// InjectDisconnect makes node drop its connections to peer.
//
// Used to simulate a transient network partition between two nodes.
func (c *Client) InjectDisconnect(ctx context.Context, node types.NodeID, peer types.NodeID) error {
	return c.call(ctx, node, "inject_disconnect", http.MethodPost, "/v2/error_injection/disconnect/"+url.PathEscape(string(peer)), nil, nil)
}
