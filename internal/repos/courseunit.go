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

type CourseUnitRepo interface {
	// GetByNumber returns nil when no unit exists at that position.
	GetByNumber(ctx context.Context, tx *gorm.DB, moduleID uuid.UUID, number int) (*types.CourseUnit, error)
	GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.CourseUnit, error)
	// Set creates or replaces the unit keyed by (module_id, number).
	Set(ctx context.Context, tx *gorm.DB, unit *types.CourseUnit) (*types.CourseUnit, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type courseUnitRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseUnitRepo(db *gorm.DB, baseLog *logger.Logger) CourseUnitRepo {
	return &courseUnitRepo{db: db, log: baseLog.With("repo", "CourseUnitRepo")}
}

func (r *courseUnitRepo) GetByNumber(ctx context.Context, tx *gorm.DB, moduleID uuid.UUID, number int) (*types.CourseUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var unit types.CourseUnit
	err := transaction.WithContext(ctx).
		Where("module_id = ? AND number = ?", moduleID, number).
		First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *courseUnitRepo) GetByModuleIDs(ctx context.Context, tx *gorm.DB, moduleIDs []uuid.UUID) ([]*types.CourseUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.CourseUnit
	if len(moduleIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("module_id IN ?", moduleIDs).
		Order("number ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Same exclusivity note as CourseModuleRepo.Set: one task owns each
// (module_id, number) position.
func (r *courseUnitRepo) Set(ctx context.Context, tx *gorm.DB, unit *types.CourseUnit) (*types.CourseUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.GetByNumber(ctx, transaction, unit.ModuleID, unit.Number)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		updates := map[string]interface{}{
			"title":      unit.Title,
			"content":    unit.Content,
			"updated_at": time.Now(),
		}
		if err := transaction.WithContext(ctx).
			Model(&types.CourseUnit{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		existing.Title = unit.Title
		existing.Content = unit.Content
		return existing, nil
	}
	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
	}
	if err := transaction.WithContext(ctx).Create(unit).Error; err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *courseUnitRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.CourseUnit{}).
		Where("id = ?", id).
		Updates(updates).Error
}
