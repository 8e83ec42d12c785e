package integration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/test/testutil"
)

// TestContainerLogShipping forwards a ScyllaDB container log through
// JetStream and waits on it from the stream side.
func TestContainerLogShipping(t *testing.T) {
	node, sc := scyllaContext(t)
	ctx := t.Context()

	js := testutil.StartEmbeddedNATS(t)
	cfg := logwatch.DefaultStreamConfig()
	stream, err := logwatch.EnsureStream(ctx, js, cfg)
	require.NoError(t, err)

	shipper := logwatch.NewShipper(js, cfg, node.Node, node.Log, nil)
	shipCtx, stop := contextWithCancel(t)
	done := make(chan error, 1)
	go func() { done <- shipper.Run(shipCtx, 20*time.Millisecond) }()
	t.Cleanup(func() {
		stop()
		<-done
	})

	remote, err := logwatch.New(node.Node, logwatch.NewNATSSource(stream, cfg, node.Node),
		logwatch.WithPollInterval(10*time.Millisecond, 100*time.Millisecond))
	require.NoError(t, err)

	mark, err := remote.Mark(ctx)
	require.NoError(t, err)

	require.NoError(t, sc.Exec(ctx, "CREATE KEYSPACE shipped WITH replication = {'class': 'NetworkTopologyStrategy', 'replication_factor': 1}"))

	match, err := remote.WaitFor(ctx, "shipped", mark, time.Minute)
	require.NoError(t, err)
	assert.Contains(t, match.Line, "shipped")
}
