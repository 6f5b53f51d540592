package relay_test

import (
	"testing"

	"github.com/aussiebroadwan/ltirelay/pkg/gradersdk"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints verifies liveness and readiness with the default file backend.
func TestHealthEndpoints(t *testing.T) {
	baseURL := setupRelayContainer(t, nil)
	client := gradersdk.NewSDKClient(baseURL)

	health, err := client.GetLiveness(t.Context())
	assertHealthy(t, health, err)

	health, err = client.GetReadiness(t.Context())
	assertHealthy(t, health, err)
	require.NotNil(t, health.Checks)
	require.Equal(t, "ok", health.Checks.Sessions)
}

// TestLaunchInfo verifies a bare GET reports the receiver as active.
func TestLaunchInfo(t *testing.T) {
	baseURL := setupRelayContainer(t, map[string]string{"LTI_DEFAULT_PAGE": "/essay.html"})
	client := gradersdk.NewSDKClient(baseURL)

	info, err := client.GetLaunchInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, "active", info.Status)
	require.Contains(t, info.Target, "/essay.html")
}
