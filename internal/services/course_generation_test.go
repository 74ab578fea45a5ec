package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/pipeline"
	"github.com/yungbote/coursecraft-backend/internal/repos"
	"github.com/yungbote/coursecraft-backend/internal/sse"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

func openGenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Serialize all access through one connection so the heartbeat
	// goroutine and the pipeline workers never contend for write locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&types.Course{},
		&types.CourseModule{},
		&types.CourseUnit{},
		&types.CourseGenerationRun{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// scriptedOpenAI answers GenerateJSON per schema name and delays text
// generation so a run stays in flight long enough to observe heartbeats.
type scriptedOpenAI struct {
	json      map[string]map[string]any
	textDelay time.Duration
}

func (s *scriptedOpenAI) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if out, ok := s.json[schemaName]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("no scripted response for schema %q", schemaName)
}

func (s *scriptedOpenAI) GenerateText(ctx context.Context, system string, user string) (string, error) {
	if s.textDelay > 0 {
		time.Sleep(s.textDelay)
	}
	return "## Generated body\n\nSome teaching material.", nil
}

type fixedImagePicker struct{}

func (fixedImagePicker) PickImage(ctx context.Context, urls []string) (*types.UnitImage, error) {
	return &types.UnitImage{
		Source: urls[0],
		URL:    "https://upload.wikimedia.org/fixture.png",
	}, nil
}

// heartbeatCountingRunRepo records how often the worker reports liveness.
type heartbeatCountingRunRepo struct {
	repos.CourseGenerationRunRepo

	mu    sync.Mutex
	beats int
}

func (r *heartbeatCountingRunRepo) Heartbeat(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	r.beats++
	r.mu.Unlock()
	return r.CourseGenerationRunRepo.Heartbeat(ctx, id)
}

func (r *heartbeatCountingRunRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beats
}

func TestProcessRunHeartbeatsWhileDrivingClaimedRun(t *testing.T) {
	t.Setenv("GENERATION_FANOUT_WORKERS", "1")
	t.Setenv("GENERATION_TASK_MAX_ATTEMPTS", "3")
	t.Setenv("GENERATION_TASK_RETRY_DELAY_MS", "1")
	t.Setenv("GENERATION_HEARTBEAT_MS", "5")

	db := openGenTestDB(t)
	log := logger.NewNop()

	courseRepo := repos.NewCourseRepo(db, log)
	moduleRepo := repos.NewCourseModuleRepo(db, log)
	unitRepo := repos.NewCourseUnitRepo(db, log)
	runRepo := &heartbeatCountingRunRepo{
		CourseGenerationRunRepo: repos.NewCourseGenerationRunRepo(db, log),
	}

	ai := &scriptedOpenAI{
		textDelay: 25 * time.Millisecond,
		json: map[string]map[string]any{
			"parse_course_v1": {
				"headline": "Graphs in two weeks",
				"outline":  "Representations, then traversal.",
				"modules": []any{
					map[string]any{
						"week":  1,
						"title": "Representations",
						"units": []any{
							map[string]any{"number": 1, "title": "Adjacency lists"},
						},
					},
					map[string]any{
						"week":  2,
						"title": "Traversal",
						"units": []any{
							map[string]any{"number": 1, "title": "Breadth-first search"},
						},
					},
				},
			},
			"parse_course_cip_v1": {
				"cip_code":  "11.0701",
				"cip_title": "Computer Science",
			},
			"wikipedia_urls_v1": {
				"urls": []any{"https://en.wikipedia.org/wiki/Graph_theory"},
			},
		},
	}
	gen := NewAIGenerationService(ai, log)
	slugs := NewSlugService(courseRepo, log)
	hub := sse.NewSSEHub(log)

	svc := NewCourseGenerationService(
		db, log, hub,
		courseRepo, moduleRepo, unitRepo, runRepo,
		slugs, gen, fixedImagePicker{},
	).(*courseGenerationService)

	ctx := context.Background()
	course, run, err := svc.GenerateCourse(ctx, uuid.New(), types.CourseDraft{
		Title:       "Graph Theory Basics",
		Description: "A short course on graphs and how to walk them.",
		Content:     "Two weeks: representations, then traversal algorithms.",
		WeekCount:   2,
	})
	if err != nil {
		t.Fatalf("generate course: %v", err)
	}

	claimed, err := runRepo.ClaimNextRunnable(ctx, nil, 5, 30*time.Second, 2*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != run.ID {
		t.Fatalf("expected the queued run to be claimed, got %+v", claimed)
	}

	svc.processRun(ctx, claimed)

	if runRepo.count() == 0 {
		t.Fatal("expected liveness updates while the run was in flight")
	}

	got, err := runRepo.GetByIDs(ctx, nil, []uuid.UUID{run.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("reload run: %v", err)
	}
	if got[0].Status != types.RunStatusSucceeded || got[0].Stage != pipeline.StageDone || got[0].Progress != 100 {
		t.Fatalf("unexpected final run state: status=%s stage=%s progress=%d", got[0].Status, got[0].Stage, got[0].Progress)
	}
	if got[0].HeartbeatAt == nil {
		t.Fatal("heartbeat_at must be stamped during processing")
	}

	modules, err := moduleRepo.GetByCourseIDs(ctx, nil, []uuid.UUID{course.ID})
	if err != nil {
		t.Fatalf("load modules: %v", err)
	}
	if len(modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(modules))
	}
	for _, m := range modules {
		units, err := unitRepo.GetByModuleIDs(ctx, nil, []uuid.UUID{m.ID})
		if err != nil {
			t.Fatalf("load units for week %d: %v", m.Week, err)
		}
		if len(units) != 1 {
			t.Fatalf("expected 1 unit for week %d, got %d", m.Week, len(units))
		}
		if !units[0].Enriched() {
			t.Fatalf("unit %q should be enriched", units[0].Title)
		}
	}
}
