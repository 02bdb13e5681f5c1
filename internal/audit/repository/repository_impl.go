package repository

import (
	"context"
	"strings"

	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func Provide() auditdomain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.ActivityLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repositoryImpl) List(ctx context.Context, db *gorm.DB, filter auditdomain.ListFilter) ([]*auditdomain.ActivityLog, error) {
	stmt := db.WithContext(ctx).
		Model(&auditdomain.ActivityLog{}).
		Where("lawyer_id = ?", filter.LawyerID)

	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if targetType := strings.TrimSpace(filter.TargetType); targetType != "" {
		stmt = stmt.Where("target_type = ?", targetType)
	}
	if targetID := strings.TrimSpace(filter.TargetID); targetID != "" {
		stmt = stmt.Where("target_id = ?", targetID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt)
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at, id) < (?, ?)", filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var items []*auditdomain.ActivityLog
	err := stmt.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&items).Error
	return items, err
}
