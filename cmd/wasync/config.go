package main

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/logging"
)

const (
	envLog      = logging.EnvVar
	envAddr     = "WASYNC_ADDR"
	envPreopens = "WASYNC_PREOPENS"
	defaultAddr = "127.0.0.1:7878"
)

// parseEnv parses KEY=VAL,KEY2=VAL2. Entries without '=' are ignored.
func parseEnv(s string) map[string]string {
	env := make(map[string]string)
	if s == "" {
		return env
	}
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// parsePreopens parses /host:/guest,/host2:/guest2 into a guest to host
// map. A bare path is mounted at the same guest path. An empty string
// preopens the working directory for relative paths.
func parsePreopens(s string) map[string]string {
	preopens := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		preopens["."] = "."
		return preopens
	}
	for _, mapping := range strings.Split(s, ",") {
		mapping = strings.TrimSpace(mapping)
		if mapping == "" {
			continue
		}
		hostDir, guest, ok := strings.Cut(mapping, ":")
		if !ok {
			guest = hostDir
		}
		preopens[guest] = hostDir
	}
	return preopens
}

// jsonLogger builds a production zap logger writing to the process's stderr.
func jsonLogger(level string) (*zap.Logger, error) {
	l, ok := logging.ParseLevel(level)
	if level == "" {
		l, ok = logging.LevelFromEnv()
	}
	if !ok {
		l = zap.InfoLevel
	}
	if l == logging.Off {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(l)
	return cfg.Build()
}
