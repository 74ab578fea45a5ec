package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/pipeline"
	"github.com/yungbote/coursecraft-backend/internal/repos"
	"github.com/yungbote/coursecraft-backend/internal/sse"
	"github.com/yungbote/coursecraft-backend/internal/types"
	"github.com/yungbote/coursecraft-backend/internal/utils"
)

type CourseGenerationService interface {
	// GenerateCourse creates the course row synchronously and queues a
	// generation run; the worker picks the run up and drives the remaining
	// stages.
	GenerateCourse(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft) (*types.Course, *types.CourseGenerationRun, error)
	StartWorker(ctx context.Context)
}

type courseGenerationService struct {
	db  *gorm.DB
	log *logger.Logger

	sseHub *sse.SSEHub

	courseRepo repos.CourseRepo
	moduleRepo repos.CourseModuleRepo
	unitRepo   repos.CourseUnitRepo
	runRepo    repos.CourseGenerationRunRepo

	slugs   pipeline.SlugResolver
	parser  pipeline.OutlineParser
	cls     pipeline.Classifier
	modGen  pipeline.ModuleGenerator
	unitGen pipeline.UnitGenerator
	links   pipeline.LinkExtractor
	images  pipeline.ImagePicker

	fanoutWorkers  int
	taskRetry      pipeline.Policy
	heartbeatEvery time.Duration
}

func NewCourseGenerationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	sseHub *sse.SSEHub,
	courseRepo repos.CourseRepo,
	moduleRepo repos.CourseModuleRepo,
	unitRepo repos.CourseUnitRepo,
	runRepo repos.CourseGenerationRunRepo,
	slugs pipeline.SlugResolver,
	gen *AIGenerationService,
	images pipeline.ImagePicker,
) CourseGenerationService {
	log := baseLog.With("service", "CourseGenerationService")
	return &courseGenerationService{
		db:             db,
		log:            log,
		sseHub:         sseHub,
		courseRepo:     courseRepo,
		moduleRepo:     moduleRepo,
		unitRepo:       unitRepo,
		runRepo:        runRepo,
		slugs:          slugs,
		parser:         gen,
		cls:            gen,
		modGen:         gen,
		unitGen:        gen,
		links:          gen,
		images:         images,
		fanoutWorkers:  utils.GetEnvAsInt("GENERATION_FANOUT_WORKERS", 8, baseLog),
		taskRetry: pipeline.Policy{
			MaxAttempts: utils.GetEnvAsInt("GENERATION_TASK_MAX_ATTEMPTS", 3, baseLog),
			Delay:       time.Duration(utils.GetEnvAsInt("GENERATION_TASK_RETRY_DELAY_MS", 1000, baseLog)) * time.Millisecond,
		},
		heartbeatEvery: time.Duration(utils.GetEnvAsInt("GENERATION_HEARTBEAT_MS", 30000, baseLog)) * time.Millisecond,
	}
}

func (cgs *courseGenerationService) GenerateCourse(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft) (*types.Course, *types.CourseGenerationRun, error) {
	if draft.Language == "" {
		draft.Language = "English"
	}
	if draft.WeekCount <= 0 {
		draft.WeekCount = 4
	}

	slug, err := cgs.slugs.UniqueSlug(ctx, draft.Title)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve slug: %w", err)
	}

	var course *types.Course
	var run *types.CourseGenerationRun

	err = cgs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		course = &types.Course{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			Title:       draft.Title,
			Language:    draft.Language,
			WeekCount:   draft.WeekCount,
			Description: draft.Description,
			Content:     draft.Content,
			Slug:        slug,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := cgs.courseRepo.Create(ctx, tx, []*types.Course{course}); err != nil {
			return fmt.Errorf("create course: %w", err)
		}

		run = &types.CourseGenerationRun{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			CourseID:  course.ID,
			Status:    types.RunStatusQueued,
			Stage:     pipeline.StageParse,
			Progress:  0,
			Attempts:  0,
			Metadata:  datatypes.JSON([]byte(`{}`)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := cgs.runRepo.Create(ctx, tx, []*types.CourseGenerationRun{run}); err != nil {
			return fmt.Errorf("create generation run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	cgs.broadcast(sse.UserChannel(ownerID), sse.SSEEventUserCourseCreated, map[string]any{
		"course": course,
		"run":    run,
	})
	return course, run, nil
}

func (cgs *courseGenerationService) StartWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		// Worker policy
		const maxAttempts = 5
		retryDelay := 30 * time.Second
		staleRunning := 2 * time.Minute

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run, err := cgs.runRepo.ClaimNextRunnable(ctx, nil, maxAttempts, retryDelay, staleRunning)
				if err != nil {
					cgs.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if run == nil {
					continue
				}
				cgs.processRun(ctx, run)
			}
		}
	}()
}

func (cgs *courseGenerationService) processRun(ctx context.Context, run *types.CourseGenerationRun) {
	ownerID := run.OwnerID
	courseID := run.CourseID
	runID := run.ID

	lastStage := run.Stage

	fail := func(stage string, err error) {
		now := time.Now()
		_ = cgs.runRepo.UpdateFields(ctx, nil, runID, map[string]any{
			"status":        types.RunStatusFailed,
			"stage":         stage,
			"error":         err.Error(),
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		cgs.broadcast(sse.CourseChannel(courseID), sse.SSEEventCourseGenerationFailed, map[string]any{
			"run_id":    runID,
			"course_id": courseID,
			"stage":     stage,
			"error":     err.Error(),
		})
	}

	progress := func(stage string, pct int, msg string) {
		lastStage = stage
		now := time.Now()
		_ = cgs.runRepo.UpdateFields(ctx, nil, runID, map[string]any{
			"stage":        stage,
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		cgs.broadcast(sse.CourseChannel(courseID), sse.SSEEventCourseGenerationProgress, map[string]any{
			"run_id":    runID,
			"course_id": courseID,
			"stage":     stage,
			"progress":  pct,
			"message":   msg,
		})
	}

	// Keep the claim alive while the fan-out stages run, so another replica
	// does not treat this run as stale mid-flight.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(cgs.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := cgs.runRepo.Heartbeat(hbCtx, runID); err != nil {
					cgs.log.Warn("Run heartbeat failed", "run_id", runID, "error", err)
				}
			}
		}
	}()

	p := &pipeline.Pipeline{
		Slugs:      cgs.slugs,
		Courses:    NewCourseStore(cgs.courseRepo),
		Modules:    NewModuleStore(cgs.moduleRepo),
		Units:      NewUnitStore(cgs.unitRepo),
		Parser:     cgs.parser,
		Classifier: cgs.cls,
		ModuleGen:  cgs.modGen,
		UnitGen:    cgs.unitGen,
		Links:      cgs.links,
		Images:     cgs.images,
		Retry:      cgs.taskRetry,
		Workers:    cgs.fanoutWorkers,
		OnStage:    progress,
		Log:        cgs.log.With("run_id", runID.String()),
	}

	if err := p.Continue(ctx, courseID); err != nil {
		cgs.log.Error("Course generation run failed", "run_id", runID, "stage", lastStage, "error", err)
		fail(lastStage, err)
		return
	}

	now := time.Now()
	if err := cgs.runRepo.UpdateFields(ctx, nil, runID, map[string]any{
		"status":     types.RunStatusSucceeded,
		"stage":      pipeline.StageDone,
		"progress":   100,
		"error":      "",
		"locked_at":  nil,
		"updated_at": now,
	}); err != nil {
		cgs.log.Warn("Failed to mark run succeeded", "run_id", runID, "error", err)
	}

	cgs.broadcast(sse.UserChannel(ownerID), sse.SSEEventCourseGenerationDone, map[string]any{
		"run_id":    runID,
		"course_id": courseID,
	})
	cgs.broadcast(sse.CourseChannel(courseID), sse.SSEEventCourseGenerationDone, map[string]any{
		"run_id":    runID,
		"course_id": courseID,
	})
}

func (cgs *courseGenerationService) broadcast(channel string, event sse.SSEEvent, data any) {
	cgs.sseHub.Broadcast(sse.SSEMessage{
		Channel: channel,
		Event:   event,
		Data:    data,
	})
}
