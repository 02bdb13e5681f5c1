package lawyerctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// LawyerContextKey is the request context key for the authenticated lawyer ID.
type LawyerContextKey struct{}

// WithLawyerID stores the lawyer ID in the context.
func WithLawyerID(ctx context.Context, lawyerID snowflake.ID) context.Context {
	return context.WithValue(ctx, LawyerContextKey{}, lawyerID)
}

// LawyerIDFromContext returns the lawyer ID from context, if set.
func LawyerIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	value := ctx.Value(LawyerContextKey{})
	if value == nil {
		return 0, false
	}
	switch typed := value.(type) {
	case int64:
		return snowflake.ID(typed), true
	case snowflake.ID:
		return typed, true
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}
