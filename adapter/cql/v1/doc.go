// Package v1 provides an adapter for gocql v1.x to work with syncpoint.
//
// # Usage
//
//	cluster := gocql.NewCluster("127.0.0.1", "127.0.0.2")
//	cluster.Consistency = gocql.Quorum
//
//	gocqlSession, err := cluster.CreateSession()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := v1.NewSession(gocqlSession)
//
// Tablet placement lives in system.tablets and is read through the same
// session; use [Session.Unwrap] for driver calls the adapter does not expose.
//
// # Thread Safety
//
// All adapter types are safe for concurrent use, matching gocql's thread safety guarantees.
package v1
