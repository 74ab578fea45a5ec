package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/repos"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

// CourseView is a course assembled with whatever modules and units have been
// generated so far. Missing weeks and missing unit numbers are normal while a
// run is in flight, or permanently when generation for them exhausted.
type CourseView struct {
	Course  *types.Course       `json:"course"`
	Modules []*CourseModuleView `json:"modules"`
}

type CourseModuleView struct {
	Module *types.CourseModule `json:"module"`
	Units  []*types.CourseUnit `json:"units"`
}

type CourseService interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*CourseView, error)
	GetCourseBySlug(ctx context.Context, slug string) (*CourseView, error)
	ListCoursesByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.Course, error)
	GetLatestRun(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*types.CourseGenerationRun, error)
}

type courseService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo repos.CourseRepo
	moduleRepo repos.CourseModuleRepo
	unitRepo   repos.CourseUnitRepo
	runRepo    repos.CourseGenerationRunRepo
}

func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo repos.CourseRepo,
	moduleRepo repos.CourseModuleRepo,
	unitRepo repos.CourseUnitRepo,
	runRepo repos.CourseGenerationRunRepo,
) CourseService {
	return &courseService{
		db:         db,
		log:        baseLog.With("service", "CourseService"),
		courseRepo: courseRepo,
		moduleRepo: moduleRepo,
		unitRepo:   unitRepo,
		runRepo:    runRepo,
	}
}

func (cs *courseService) GetCourse(ctx context.Context, id uuid.UUID) (*CourseView, error) {
	courses, err := cs.courseRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(courses) == 0 {
		return nil, nil
	}
	return cs.assemble(ctx, courses[0])
}

func (cs *courseService) GetCourseBySlug(ctx context.Context, slug string) (*CourseView, error) {
	course, err := cs.courseRepo.GetBySlug(ctx, nil, slug)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, nil
	}
	return cs.assemble(ctx, course)
}

func (cs *courseService) assemble(ctx context.Context, course *types.Course) (*CourseView, error) {
	modules, err := cs.moduleRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		return nil, err
	}

	moduleIDs := make([]uuid.UUID, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}
	units, err := cs.unitRepo.GetByModuleIDs(ctx, nil, moduleIDs)
	if err != nil {
		return nil, err
	}

	unitsByModule := make(map[uuid.UUID][]*types.CourseUnit, len(modules))
	for _, u := range units {
		unitsByModule[u.ModuleID] = append(unitsByModule[u.ModuleID], u)
	}

	view := &CourseView{Course: course, Modules: make([]*CourseModuleView, 0, len(modules))}
	for _, m := range modules {
		view.Modules = append(view.Modules, &CourseModuleView{
			Module: m,
			Units:  unitsByModule[m.ID],
		})
	}
	return view, nil
}

func (cs *courseService) ListCoursesByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.Course, error) {
	return cs.courseRepo.GetByOwnerID(ctx, nil, ownerID)
}

func (cs *courseService) GetLatestRun(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return cs.runRepo.GetLatestByCourseID(ctx, nil, courseID)
}

func (cs *courseService) GetRun(ctx context.Context, runID uuid.UUID) (*types.CourseGenerationRun, error) {
	runs, err := cs.runRepo.GetByIDs(ctx, nil, []uuid.UUID{runID})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}
