package integration_test

import (
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/arloliu/syncpoint"
	cqlv1 "github.com/arloliu/syncpoint/adapter/cql/v1"
	"github.com/arloliu/syncpoint/logwatch"
	"github.com/arloliu/syncpoint/restapi"
	"github.com/arloliu/syncpoint/taskctl"
	"github.com/arloliu/syncpoint/test/testutil"
	"github.com/arloliu/syncpoint/types"
)

// TestMain skips the whole package in short mode or when Docker-backed
// tests are disabled.
func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		return
	}

	if os.Getenv("SKIP_INTEGRATION_TESTS") == "1" {
		fmt.Println("Skipping integration tests (SKIP_INTEGRATION_TESTS=1)")

		return
	}

	os.Exit(m.Run())
}

// scyllaContext starts a single ScyllaDB node and builds a ScenarioContext
// over its REST API, CQL port and container log.
func scyllaContext(t *testing.T, opts ...syncpoint.Option) (*testutil.ScyllaDBContainer, *syncpoint.ScenarioContext) {
	t.Helper()

	node, err := testutil.StartScyllaDB(t.Context(), t, nil)
	if err != nil {
		t.Skipf("ScyllaDB unavailable: %v", err)
	}

	api := restapi.New(
		restapi.WithAddressResolver(func(types.NodeID) string { return node.APIURL }),
		restapi.WithTimeout(time.Minute),
	)

	base := []syncpoint.Option{
		syncpoint.WithControlAPI(api),
		syncpoint.WithNode(node.Node, node.Log),
		syncpoint.WithCQLSession(cqlv1.WrapSession(node.Session)),
		syncpoint.WithSnapshotLister(node),
		syncpoint.WithLogWatchOptions(logwatch.WithDefaultTimeout(time.Minute)),
		syncpoint.WithTaskOptions(taskctl.WithDefaultTimeout(2 * time.Minute)),
	}
	sc, err := syncpoint.NewScenarioContext(append(base, opts...)...)
	if err != nil {
		t.Fatalf("scenario context: %v", err)
	}

	return node, sc
}
