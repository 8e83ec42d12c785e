// Package cql provides adapter interfaces for CQL (Cassandra Query Language) drivers.
//
// Scenarios create schema, write rows and read system tables through these
// interfaces rather than a concrete driver, so unit tests can substitute the
// in-memory session from test/testutil.
//
// # Interfaces
//
//   - Session: Creates queries and owns the connection pool
//   - Query: A CQL statement with bind values
//   - Iter: Iterates over query results
//
// # Adapters
//
// The gocql adapter lives in [github.com/arloliu/syncpoint/adapter/cql/v1]:
//
//	cluster := gocql.NewCluster("127.0.0.1")
//	gocqlSession, _ := cluster.CreateSession()
//
//	sc, _ := syncpoint.NewScenarioContext(
//	    syncpoint.WithCQLSession(v1.NewSession(gocqlSession)),
//	)
package cql
