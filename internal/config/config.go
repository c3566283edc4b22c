// Package config loads server configuration from the environment,
// following the teacher's cmd/server/main.go idiom of os.Getenv plus an
// inline default, generalized from a single PORT variable to the full
// set spec §5 lists.
package config

import (
	"os"
	"strconv"
)

// Config holds every BRLAPI_* environment-derived setting (spec §5).
type Config struct {
	// Host is the "+"-joined bind target list (BRLAPI_HOST).
	Host string
	// Auth names the key file, "none" to disable authentication
	// (BRLAPI_AUTH).
	Auth string
	// SocketDir is the directory filesystem-local socket entries are
	// created under (BRLAPI_SOCKETDIR).
	SocketDir string
	// UnauthLimit is read from BRLAPI_UNAUTH_LIMIT (0 when unset).
	// Nothing applies it: registry.UnauthLimit is a constant.
	UnauthLimit int
	// UnauthTimeoutSeconds is read from BRLAPI_UNAUTH_TIMEOUT (0 when
	// unset). Nothing applies it: registry.UnauthTimeout is a constant.
	UnauthTimeoutSeconds int
}

const (
	defaultHost      = ":4101"
	defaultAuth      = "none"
	defaultSocketDir = "/var/run/brlapi"
)

// FromEnv loads a Config from the process environment, falling back to
// the BRLTTY-standard defaults for anything unset.
func FromEnv() Config {
	return Config{
		Host:                 getenvDefault("BRLAPI_HOST", defaultHost),
		Auth:                 getenvDefault("BRLAPI_AUTH", defaultAuth),
		SocketDir:            getenvDefault("BRLAPI_SOCKETDIR", defaultSocketDir),
		UnauthLimit:          getenvInt("BRLAPI_UNAUTH_LIMIT", 0),
		UnauthTimeoutSeconds: getenvInt("BRLAPI_UNAUTH_TIMEOUT", 0),
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
