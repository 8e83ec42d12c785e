package v1_test

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/syncpoint/adapter/cql"
	v1 "github.com/arloliu/syncpoint/adapter/cql/v1" //nolint:revive // required for v1_test package
	"github.com/arloliu/syncpoint/types"
)

// TestSessionImplementsInterface verifies that v1.Session implements cql.Session.
func TestSessionImplementsInterface(t *testing.T) {
	var _ cql.Session = (*v1.Session)(nil)
	var _ cql.Query = (*v1.Query)(nil)
	var _ cql.Iter = (*v1.Iter)(nil)
}

func TestNewSessionNil(t *testing.T) {
	session := v1.NewSession(nil)
	require.NotNil(t, session)
	require.Nil(t, session.Unwrap())
	require.NotNil(t, v1.WrapSession(nil))
}

// TestConsistencyConstants verifies consistency constants match gocql.
func TestConsistencyConstants(t *testing.T) {
	require.Equal(t, cql.Consistency(gocql.Any), cql.Any)
	require.Equal(t, cql.Consistency(gocql.One), cql.One)
	require.Equal(t, cql.Consistency(gocql.Quorum), cql.Quorum)
	require.Equal(t, cql.Consistency(gocql.All), cql.All)
	require.Equal(t, cql.Consistency(gocql.LocalQuorum), cql.LocalQuorum)
	require.Equal(t, cql.Consistency(gocql.LocalOne), cql.LocalOne)
}

// TestNilIterIsEmpty verifies an iterator without a driver iterator yields no rows.
func TestNilIterIsEmpty(t *testing.T) {
	it := &v1.Iter{}

	var s string
	require.False(t, it.Scan(&s))
	require.False(t, it.MapScan(map[string]any{}))

	rows, err := it.SliceMap()
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, it.Close())
}

func TestDriverDestConversion(t *testing.T) {
	var replicas []types.TabletReplica
	var id uuid.UUID
	var plain string

	conv, finish := v1.DriverDestForTest([]any{&replicas, &id, &plain})
	require.Len(t, conv, 3)
	require.Same(t, &plain, conv[2])

	host := gocql.TimeUUID()
	v1.FillReplicaTuplesForTest(conv[0], host, 3)
	*conv[1].(*gocql.UUID) = host
	finish()

	require.Equal(t, []types.TabletReplica{{HostID: uuid.UUID(host), Shard: 3}}, replicas)
	require.Equal(t, uuid.UUID(host), id)
}
