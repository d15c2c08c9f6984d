//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// HealthResponse represents the structure of health check response
type HealthResponse struct {
	Status  string                    `json:"status"`
	Version string                    `json:"version"`
	Engine  string                    `json:"engine"`
	Checks  map[string]map[string]any `json:"checks"`
}

// WaitForServerReadiness polls /health until the server reports healthy or
// ctx is done.
func WaitForServerReadiness(ctx context.Context, baseURL string) (*HealthResponse, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		if health, err := checkServerHealth(client, baseURL); err == nil && health.Status == "healthy" {
			return health, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("server at %s not ready: %w", baseURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

func checkServerHealth(client *http.Client, baseURL string) (*HealthResponse, error) {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// FindAvailablePort finds an available port for testing
func FindAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port, nil
}

// CreateTestComponent writes a component source file into dir.
func CreateTestComponent(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// DefaultTimeout returns the per-test deadline, shorter in -short mode.
func DefaultTimeout() time.Duration {
	if testing.Short() {
		return 10 * time.Second
	}
	return 30 * time.Second
}
