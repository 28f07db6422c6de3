// Package common provides shared names and defaults used by the keypool
// daemon, its JSON-RPC surface, and the command-line interface.
package common

import (
	"os"
	"strconv"
)

// Environment variable names for configuration.
const (
	// PortEnv is the environment variable for the JSON-RPC port.
	PortEnv = "KEYPOOL_PORT"

	// SecretEnv is the environment variable holding the bearer token.
	SecretEnv = "KEYPOOL_RPC_SECRET"

	// CeilingEnv is the environment variable bounding the handle domain.
	CeilingEnv = "KEYPOOL_CEILING"

	// ShutdownTimeoutEnv is the environment variable for the graceful
	// shutdown budget in seconds.
	ShutdownTimeoutEnv = "KEYPOOL_SHUTDOWN_TIMEOUT"

	// DebugEnv is the environment variable to enable debug logging.
	DebugEnv = "KEYPOOL_DEBUG"

	// ListenAllEnv is the environment variable to bind on every interface.
	ListenAllEnv = "KEYPOOL_LISTEN_ALL"
)

// DebugEnabled reports whether DebugEnv holds a true value.
func DebugEnabled() bool {
	v, err := strconv.ParseBool(os.Getenv(DebugEnv))
	return err == nil && v
}
