package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

// StartNATSServer runs an in-process NATS server with JetStream on a random
// port and returns its client URL. The server stores streams under
// t.TempDir() and shuts down with the test.
func StartNATSServer(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		ServerName: "syncpoint-test",
		Host:       "127.0.0.1",
		Port:       -1,
		JetStream:  true,
		StoreDir:   t.TempDir(),
		NoSigs:     true,
	})
	require.NoError(t, err, "create NATS server")

	ns.Start()
	t.Cleanup(ns.Shutdown)

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready for connections")
	}

	return ns.ClientURL()
}

// StartEmbeddedNATS starts a NATS server and returns a JetStream context
// connected to it, for log shipping tests.
//
// Parameters:
//   - t: The testing context
//
// Returns:
//   - jetstream.JetStream: A JetStream context ready for use
func StartEmbeddedNATS(t *testing.T) jetstream.JetStream {
	t.Helper()

	nc, err := nats.Connect(StartNATSServer(t), nats.Name(t.Name()))
	require.NoError(t, err, "connect to NATS server")
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err, "create JetStream context")

	return js
}
