package v1

import (
	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/arloliu/syncpoint/types"
)

// replicaTuple mirrors one (host, shard) tuple of system.tablets.replicas.
type replicaTuple struct {
	Host  gocql.UUID
	Shard int
}

// driverDest swaps harness destination types for ones gocql can unmarshal
// into. The returned finish func copies scanned values back and must be
// called after a successful scan.
func driverDest(dest []any) ([]any, func()) {
	var fixups []func()
	out := make([]any, len(dest))
	for i, d := range dest {
		switch v := d.(type) {
		case *[]types.TabletReplica:
			var tuples []replicaTuple
			out[i] = &tuples
			fixups = append(fixups, func() {
				replicas := make([]types.TabletReplica, len(tuples))
				for j, t := range tuples {
					replicas[j] = types.TabletReplica{HostID: uuid.UUID(t.Host), Shard: t.Shard}
				}
				*v = replicas
			})
		case *uuid.UUID:
			var id gocql.UUID
			out[i] = &id
			fixups = append(fixups, func() {
				*v = uuid.UUID(id)
			})
		default:
			out[i] = d
		}
	}

	return out, func() {
		for _, f := range fixups {
			f()
		}
	}
}
