//go:build integration

// Package containers starts throwaway backend containers for integration tests.
package containers

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
)

// dockerAvailable reports whether a Docker daemon can be reached.
func dockerAvailable(ctx context.Context) bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}
