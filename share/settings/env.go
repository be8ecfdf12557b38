package settings

import (
	"os"
	"strconv"
	"time"
)

// Env returns a funnel environment variable, prefixed with FUNNEL_.
func Env(name string) string {
	return os.Getenv("FUNNEL_" + name)
}

// EnvInt returns a funnel environment variable as an int, or def when
// unset or unparsable.
func EnvInt(name string, def int) int {
	if n, err := strconv.Atoi(Env(name)); err == nil {
		return n
	}
	return def
}

// EnvDuration returns a funnel environment variable as a duration, or
// def when unset or unparsable.
func EnvDuration(name string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(Env(name)); err == nil {
		return d
	}
	return def
}
