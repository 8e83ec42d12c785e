// Package testutil provides fakes and container helpers for syncpoint tests.
//
// # Fake Cluster
//
// FakeCluster runs n nodes in process. Each node serves the control API over
// httptest and writes its diagnostic stream to a logwatch.MemorySource; all
// nodes share one in-memory schema reachable through a MockSession:
//
//	cluster := testutil.NewFakeCluster(t, 2)
//	sc := cluster.ScenarioContext(t)
//	err := (&scenario.StreamingTopologyGuard{}).Run(t.Context(), sc)
//
// The fake pauses the same code paths the real server pauses:
//
//   - backup_task_pause: after the first file of a backup is uploaded
//   - stream_mutation_fragments: in the receiving writer of tablet streaming
//   - tablet_allocator_shuffle: rotates tablet placement of new tables
//
// # Mock Implementations
//
//   - [MockSession]: cql.Session running statements through a QueryHandler
//   - [MockQuery]: cql.Query
//   - [MockIter]: cql.Iter
//   - [TestMetricsCollector]: types.MetricsCollector recording every call
//
// # Integration Test Helpers
//
// For integration tests, helper functions are provided:
//
//   - StartNATSServer: Starts an in-process NATS server with JetStream and returns its URL
//   - StartEmbeddedNATS: Same, returning a connected JetStream context
//   - StartScyllaDB: Starts a ScyllaDB container with its REST API exposed (requires Docker)
//   - StartMinIO: Starts a MinIO container with a bucket (requires Docker)
package testutil
