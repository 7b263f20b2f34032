package logging

import (
	"log/slog"
)

// SetupStdioMode initializes logging for the stdio MCP transport.
// The JSON-RPC stream owns stdout, and many MCP clients treat stderr noise
// as a connection failure, so logs go only to the rotating file.
func SetupStdioMode(level string) (func(), error) {
	cfg := Config{
		Level:         level,
		Format:        "json",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("stdio mode logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
