package database

import (
	"time"

	"github.com/koustreak/qgenie/internal/logger"
)

// Options tunes how a single connection is opened.
type Options struct {
	// ConnectTimeout bounds establishing the connection and the initial ping.
	ConnectTimeout time.Duration

	// ApplicationName is reported to servers that support it.
	ApplicationName string

	// Log receives connection attempts with secrets masked. Nil discards them.
	Log *logger.Logger
}

// DefaultOptions returns the settings used by the CLI and server.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  10 * time.Second,
		ApplicationName: "qgenie",
	}
}
