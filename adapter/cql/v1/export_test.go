package v1

import "github.com/gocql/gocql"

// DriverDestForTest exposes driverDest to the external test package.
var DriverDestForTest = driverDest

// FillReplicaTuplesForTest writes one tuple into a converted replicas destination.
func FillReplicaTuplesForTest(dest any, host gocql.UUID, shard int) {
	*dest.(*[]replicaTuple) = []replicaTuple{{Host: host, Shard: shard}}
}
