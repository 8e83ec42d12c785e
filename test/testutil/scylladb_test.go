package testutil

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkAIOAvailability checks if the system has available AIO slots.
// ScyllaDB requires Linux AIO even with --reactor-backend=epoll.
func checkAIOAvailability(t *testing.T) {
	t.Helper()

	aioNrData, err := os.ReadFile("/proc/sys/fs/aio-nr")
	if err != nil {
		t.Skipf("Cannot read /proc/sys/fs/aio-nr: %v (not on Linux?)", err)
	}

	aioMaxNrData, err := os.ReadFile("/proc/sys/fs/aio-max-nr")
	if err != nil {
		t.Skipf("Cannot read /proc/sys/fs/aio-max-nr: %v", err)
	}

	aioNr, _ := strconv.ParseInt(strings.TrimSpace(string(aioNrData)), 10, 64)
	aioMaxNr, _ := strconv.ParseInt(strings.TrimSpace(string(aioMaxNrData)), 10, 64)

	// ScyllaDB needs at least some AIO slots available
	if aioNr >= aioMaxNr {
		t.Skipf("No AIO slots available: aio-nr=%d >= aio-max-nr=%d. "+
			"Fix with: sudo sysctl -w fs.aio-max-nr=1048576", aioNr, aioMaxNr)
	}

	t.Logf("AIO slots available: aio-nr=%d, aio-max-nr=%d (free=%d)",
		aioNr, aioMaxNr, aioMaxNr-aioNr)
}

func TestStartScyllaDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("SKIP_INTEGRATION_TESTS") != "" {
		t.Skip("SKIP_INTEGRATION_TESTS is set")
	}

	// Check if AIO is available before attempting to start ScyllaDB
	checkAIOAvailability(t)

	ctx := t.Context()

	container, err := StartScyllaDB(ctx, t, nil)
	require.NoError(t, err, "failed to start ScyllaDB container")
	require.NotNil(t, container.Session)
	require.NotEmpty(t, container.APIURL)

	var releaseVersion string
	err = container.Session.Query("SELECT release_version FROM system.local").Scan(&releaseVersion)
	require.NoError(t, err, "failed to query system.local")
	require.NotEmpty(t, releaseVersion)

	end, err := container.Log.End(ctx)
	require.NoError(t, err)
	require.Positive(t, end, "container output is captured")

	t.Logf("ScyllaDB container: host=%s, api=%s, version=%s", container.Host, container.APIURL, releaseVersion)
}
