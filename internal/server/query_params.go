package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mizanlaw/mizan/pkg/db/pagination"
)

func parseOptionalID(raw *string, field string) (*snowflake.ID, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, newValidationError(field, "invalid_id", "invalid id")
	}
	return &parsed, nil
}

func paginationFromQuery(c *gin.Context) pagination.Pagination {
	pageSize := 0
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			pageSize = parsed
		}
	}
	return pagination.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(c.Query("page_token")),
	}
}

func timeFromQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, newValidationError(key, "invalid_time", "invalid RFC3339 timestamp")
	}
	return &parsed, nil
}
