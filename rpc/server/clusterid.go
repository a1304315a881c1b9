package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// clusterIDFile is the file in the data directory holding the cluster UUID
const clusterIDFile = "cluster-id"

// loadClusterID returns the cluster UUID of this server.
// A configured id wins, otherwise the id is read from the data directory and
// created on first start. Without data directory a new id is generated.
func loadClusterID(configured, dataDir string) (string, error) {
	if configured != "" {
		id, err := uuid.Parse(configured)
		if err != nil {
			return "", fmt.Errorf("invalid cluster id %q: %w", configured, err)
		}
		return id.String(), nil
	}

	if dataDir == "" {
		id := uuid.New().String()
		Logger.Warningf("no data directory configured, using ephemeral cluster id %s", id)
		return id, nil
	}

	path := filepath.Join(dataDir, clusterIDFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id, err := uuid.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			return "", fmt.Errorf("corrupt cluster id in %s: %w", path, err)
		}
		return id.String(), nil
	case errors.Is(err, os.ErrNotExist):
		id := uuid.New().String()
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("failed to persist cluster id: %w", err)
		}
		Logger.Infof("created new cluster id %s", id)
		return id, nil
	default:
		return "", fmt.Errorf("failed to read cluster id: %w", err)
	}
}
