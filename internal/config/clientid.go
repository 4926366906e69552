package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultClientIDPath returns the per-user location of the persistent
// client identifier.
func DefaultClientIDPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(dir, "sclog", "client_id"), nil
}

// ClientID returns the client identifier stored at path, generating and
// persisting a new one on first use. The identifier is stable across
// restarts so the remote service can attribute reconnects to the same
// installation.
func ClientID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
		// Corrupt file; regenerate below.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading client id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating client id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing client id: %w", err)
	}
	return id, nil
}
