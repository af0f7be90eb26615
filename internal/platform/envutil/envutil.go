package envutil

import (
	"os"
	"strconv"

	"github.com/mizukilab/kaiseki-backend/internal/platform/logger"
)

// GetEnv returns the value of key or defaultVal when unset, logging the
// fallback so missing configuration is visible at startup.
func GetEnv(log *logger.Logger, key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	log.Warn("env var not set, using default", "key", key, "default", defaultVal)
	return defaultVal
}

func GetEnvAsInt(log *logger.Logger, key string, defaultVal int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Warn("env var not set, using default", "key", key, "default", defaultVal)
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("env var not an int, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return n
}

func GetEnvAsBool(log *logger.Logger, key string, defaultVal bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("env var not a bool, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return b
}
