package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

type CourseModuleRepo interface {
	// GetByNumber returns nil when no module exists for the week.
	GetByNumber(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, week int) (*types.CourseModule, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseModule, error)
	// Set creates or replaces the module keyed by (course_id, week).
	Set(ctx context.Context, tx *gorm.DB, module *types.CourseModule) (*types.CourseModule, error)
}

type courseModuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseModuleRepo(db *gorm.DB, baseLog *logger.Logger) CourseModuleRepo {
	return &courseModuleRepo{db: db, log: baseLog.With("repo", "CourseModuleRepo")}
}

func (r *courseModuleRepo) GetByNumber(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, week int) (*types.CourseModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var module types.CourseModule
	err := transaction.WithContext(ctx).
		Where("course_id = ? AND week = ?", courseID, week).
		First(&module).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *courseModuleRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CourseModule
	if len(courseIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id IN ?", courseIDs).
		Order("week ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Each (course_id, week) is written by exactly one generation task at a
// time, so a read-then-write here does not race with itself.
func (r *courseModuleRepo) Set(ctx context.Context, tx *gorm.DB, module *types.CourseModule) (*types.CourseModule, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.GetByNumber(ctx, transaction, module.CourseID, module.Week)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{
			"title":      module.Title,
			"content":    module.Content,
			"updated_at": time.Now(),
		}
		if err := transaction.WithContext(ctx).
			Model(&types.CourseModule{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.Title = module.Title
		existing.Content = module.Content
		return existing, nil
	}
	if module.ID == uuid.Nil {
		module.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(module).Error; err != nil {
		return nil, err
	}
	return module, nil
}
