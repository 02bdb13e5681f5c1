package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
	"gorm.io/gorm"
)

type repositoryImpl struct{}

func Provide() timerdomain.Repository {
	return &repositoryImpl{}
}

func (r *repositoryImpl) GetByLawyer(ctx context.Context, db *gorm.DB, lawyerID snowflake.ID) (*timerdomain.TimerSession, error) {
	var session timerdomain.TimerSession
	err := db.WithContext(ctx).
		Where("lawyer_id = ?", lawyerID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *repositoryImpl) Create(ctx context.Context, db *gorm.DB, session *timerdomain.TimerSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repositoryImpl) Update(ctx context.Context, db *gorm.DB, session *timerdomain.TimerSession, updates map[string]any) error {
	return db.WithContext(ctx).
		Model(&timerdomain.TimerSession{}).
		Where("id = ?", session.ID).
		Updates(updates).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&timerdomain.TimerSession{}).Error
}
