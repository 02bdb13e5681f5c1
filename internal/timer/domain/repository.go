package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the keyed session store. Implementations must surface
// duplicate-key failures from Create so the service can report a
// conflicting concurrent start.
type Repository interface {
	GetByLawyer(ctx context.Context, db *gorm.DB, lawyerID snowflake.ID) (*TimerSession, error)
	Create(ctx context.Context, db *gorm.DB, session *TimerSession) error
	Update(ctx context.Context, db *gorm.DB, session *TimerSession, updates map[string]any) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
