package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// orderParam accepts either a bare index ("2") or the public step
// label ("step_2").
func orderParam(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Param(name))
	raw = strings.TrimPrefix(strings.ToLower(raw), "step_")
	order, err := strconv.Atoi(raw)
	if err != nil || order < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, c.Param(name))
	}
	return order, nil
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func boolQuery(c *gin.Context, name string) bool {
	raw := strings.TrimSpace(strings.ToLower(c.Query(name)))
	return raw == "1" || raw == "true" || raw == "yes"
}
