package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.mcprag/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcprag", "logs")
	}
	return filepath.Join(home, ".mcprag", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
