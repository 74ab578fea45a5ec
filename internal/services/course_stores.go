package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursecraft-backend/internal/repos"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

// Thin adapters giving the generation pipeline its storage contracts on top
// of the repos.

type courseStore struct {
	courseRepo repos.CourseRepo
}

func NewCourseStore(courseRepo repos.CourseRepo) *courseStore {
	return &courseStore{courseRepo: courseRepo}
}

func (s *courseStore) Create(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft, slug string) (uuid.UUID, error) {
	course := &types.Course{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       draft.Title,
		Language:    draft.Language,
		WeekCount:   draft.WeekCount,
		Description: draft.Description,
		Content:     draft.Content,
		Slug:        slug,
	}
	if _, err := s.courseRepo.Create(ctx, nil, []*types.Course{course}); err != nil {
		return uuid.Nil, err
	}
	return course.ID, nil
}

func (s *courseStore) Get(ctx context.Context, id uuid.UUID) (*types.Course, error) {
	courses, err := s.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, nil
	}
	return courses[0], nil
}

func (s *courseStore) CommitOutline(ctx context.Context, id uuid.UUID, parsed *types.ParsedCourse, cls *types.CourseClassification) error {
	raw, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("encode parsed content: %w", err)
	}

	updates := map[string]interface{}{
		"parsed_content": datatypes.JSON(raw),
		"cip_code":       nil,
		"cip_title":      nil,
	}
	if cls != nil {
		updates["cip_code"] = cls.CipCode
		updates["cip_title"] = cls.CipTitle
	}
	return s.courseRepo.UpdateFields(ctx, nil, id, updates)
}

type moduleStore struct {
	moduleRepo repos.CourseModuleRepo
}

func NewModuleStore(moduleRepo repos.CourseModuleRepo) *moduleStore {
	return &moduleStore{moduleRepo: moduleRepo}
}

func (s *moduleStore) GetByNumber(ctx context.Context, courseID uuid.UUID, week int) (*types.CourseModule, error) {
	return s.moduleRepo.GetByNumber(ctx, nil, courseID, week)
}

func (s *moduleStore) Set(ctx context.Context, courseID uuid.UUID, week int, title, content string) (uuid.UUID, error) {
	module, err := s.moduleRepo.Set(ctx, nil, &types.CourseModule{
		CourseID: courseID,
		Week:     week,
		Title:    title,
		Content:  content,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return module.ID, nil
}

type unitStore struct {
	unitRepo repos.CourseUnitRepo
}

func NewUnitStore(unitRepo repos.CourseUnitRepo) *unitStore {
	return &unitStore{unitRepo: unitRepo}
}

func (s *unitStore) GetByNumber(ctx context.Context, moduleID uuid.UUID, number int) (*types.CourseUnit, error) {
	return s.unitRepo.GetByNumber(ctx, nil, moduleID, number)
}

func (s *unitStore) Set(ctx context.Context, moduleID uuid.UUID, number int, title, content string) (uuid.UUID, error) {
	unit, err := s.unitRepo.Set(ctx, nil, &types.CourseUnit{
		ModuleID: moduleID,
		Number:   number,
		Title:    title,
		Content:  content,
	})
	if err != nil {
		return uuid.Nil, err
	}
	return unit.ID, nil
}

func (s *unitStore) Enrich(ctx context.Context, unitID uuid.UUID, wikipediaURLs []string, image *types.UnitImage) error {
	rawURLs, err := json.Marshal(wikipediaURLs)
	if err != nil {
		return fmt.Errorf("encode wikipedia urls: %w", err)
	}

	updates := map[string]interface{}{
		"wikipedia_urls": datatypes.JSON(rawURLs),
		"image":          nil,
	}
	if image != nil {
		rawImage, err := json.Marshal(image)
		if err != nil {
			return fmt.Errorf("encode image: %w", err)
		}
		updates["image"] = datatypes.JSON(rawImage)
	}
	return s.unitRepo.UpdateFields(ctx, nil, unitID, updates)
}
