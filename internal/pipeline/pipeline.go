package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

// Collaborator contracts. The pipeline only sequences these; prompting,
// storage and image lookup live behind them.

type SlugResolver interface {
	UniqueSlug(ctx context.Context, candidate string) (string, error)
}

type CourseStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft, slug string) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Course, error)
	// CommitOutline attaches the parsed outline and the (possibly absent)
	// classification in a single update.
	CommitOutline(ctx context.Context, id uuid.UUID, parsed *types.ParsedCourse, cls *types.CourseClassification) error
}

type ModuleStore interface {
	// GetByNumber returns nil without error when no module exists for week.
	GetByNumber(ctx context.Context, courseID uuid.UUID, week int) (*types.CourseModule, error)
	// Set creates or overwrites the module keyed by (courseID, week).
	Set(ctx context.Context, courseID uuid.UUID, week int, title, content string) (uuid.UUID, error)
}

type UnitStore interface {
	// GetByNumber returns nil without error when no unit exists for number.
	GetByNumber(ctx context.Context, moduleID uuid.UUID, number int) (*types.CourseUnit, error)
	// Set creates or overwrites the unit keyed by (moduleID, number).
	Set(ctx context.Context, moduleID uuid.UUID, number int, title, content string) (uuid.UUID, error)
	Enrich(ctx context.Context, unitID uuid.UUID, wikipediaURLs []string, image *types.UnitImage) error
}

type OutlineParser interface {
	ParseCourse(ctx context.Context, content string) (*types.ParsedCourse, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string) (*types.CourseClassification, error)
}

// ModuleRequest is the contract with the module-content generator.
type ModuleRequest struct {
	CourseDescription string
	CourseBody        string
	ModuleNumber      int
}

// UnitRequest is the contract with the unit-content generator.
type UnitRequest struct {
	CourseDescription string
	CourseBody        string
	ModuleBody        string
	ModuleNumber      int
	UnitNumber        int
}

type ModuleGenerator interface {
	GenerateModule(ctx context.Context, req ModuleRequest) (string, error)
}

type UnitGenerator interface {
	GenerateUnit(ctx context.Context, req UnitRequest) (string, error)
}

type LinkExtractor interface {
	ReferenceURLs(ctx context.Context, unitContent string) ([]string, error)
}

type ImagePicker interface {
	// PickImage returns nil without error when no image could be resolved.
	PickImage(ctx context.Context, urls []string) (*types.UnitImage, error)
}

// Pipeline drives course generation through its fixed stage order:
// create, parse, classify, commit, generate modules, generate units.
// Each stage is gated on the previous one; the two generation stages fan
// out per module / per unit and join at a barrier.
type Pipeline struct {
	Slugs      SlugResolver
	Courses    CourseStore
	Modules    ModuleStore
	Units      UnitStore
	Parser     OutlineParser
	Classifier Classifier
	ModuleGen  ModuleGenerator
	UnitGen    UnitGenerator
	Links      LinkExtractor
	Images     ImagePicker

	// Retry applies to every per-module and per-unit task. Zero value gets
	// the defaults below.
	Retry Policy
	// Workers caps fan-out concurrency per stage.
	Workers int
	// OnStage observes stage transitions (run bookkeeping, SSE, ...).
	OnStage func(stage string, progress int, msg string)

	Log *logger.Logger
}

const (
	StageCreate   = "create"
	StageParse    = "parse"
	StageClassify = "classify"
	StageCommit   = "commit"
	StageModules  = "modules"
	StageUnits    = "units"
	StageDone     = "done"
)

// Run tracks one pipeline execution past the create stage. The course record
// exists as soon as Start returns; Settled closes once every fan-out task
// has settled, which does not mean every module or unit succeeded.
type Run struct {
	CourseID uuid.UUID
	done     chan struct{}
	err      error
}

func (r *Run) Settled() <-chan struct{} { return r.done }

// Wait blocks until the pipeline has fully settled or ctx expires. The
// returned error is a fatal stage error (parse, commit, course reload);
// per-module and per-unit exhaustion is absorbed and never reported here.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return r.err
	}
}

// Start runs the create stage synchronously and continues the remaining
// stages in the background. Create failures abort the whole request: no
// partial course should exist without that stage succeeding.
func (p *Pipeline) Start(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft) (*Run, error) {
	courseID, err := p.CreateCourse(ctx, ownerID, draft)
	if err != nil {
		return nil, err
	}
	r := &Run{CourseID: courseID, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = p.Continue(ctx, courseID)
	}()
	return r, nil
}

// Generate runs every stage in order and blocks until all fan-out work has
// settled. Partial courses are a normal terminal state; the error return
// covers fatal stages only.
func (p *Pipeline) Generate(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft) (uuid.UUID, error) {
	courseID, err := p.CreateCourse(ctx, ownerID, draft)
	if err != nil {
		return uuid.Nil, err
	}
	return courseID, p.Continue(ctx, courseID)
}

// CreateCourse is the create stage: resolve a unique slug, persist the
// draft. Not wrapped in the bounded retry policy.
func (p *Pipeline) CreateCourse(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft) (uuid.UUID, error) {
	p.progress(StageCreate, 0, "Creating course")
	slug, err := p.Slugs.UniqueSlug(ctx, draft.Title)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve slug: %w", err)
	}
	courseID, err := p.Courses.Create(ctx, ownerID, draft, slug)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create course: %w", err)
	}
	return courseID, nil
}

// Continue runs parse through units for an existing course. It is safe to
// re-run after a crash or a failed attempt: committed work is detected and
// skipped, so a re-claimed run only fills holes.
func (p *Pipeline) Continue(ctx context.Context, courseID uuid.UUID) error {
	course, err := p.Courses.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("load course: %w", err)
	}
	if course == nil {
		return fmt.Errorf("course %s not found", courseID)
	}

	parsed, err := course.Parsed()
	if err != nil {
		return fmt.Errorf("decode parsed content: %w", err)
	}

	if parsed == nil {
		p.progress(StageParse, 10, "Parsing course outline")
		parsed, err = p.Parser.ParseCourse(ctx, course.Content)
		if err != nil {
			return fmt.Errorf("parse course: %w", err)
		}

		// Classification is an enrichment, not a structural dependency:
		// a failure here is logged, substituted with "absent" and the
		// pipeline keeps going.
		p.progress(StageClassify, 25, "Classifying course")
		cls := p.classify(ctx, course, parsed)

		p.progress(StageCommit, 35, "Committing outline")
		if err := p.Courses.CommitOutline(ctx, courseID, parsed, cls); err != nil {
			return fmt.Errorf("commit outline: %w", err)
		}

		course, err = p.Courses.Get(ctx, courseID)
		if err != nil || course == nil {
			return fmt.Errorf("reload course after commit: %w", err)
		}
	}

	p.progress(StageModules, 40, fmt.Sprintf("Generating %d modules", len(parsed.Modules)))
	RunAll(ctx, parsed.Modules, p.fanOutOptions(), func(ctx context.Context, mod types.ParsedModule) {
		p.generateModule(ctx, course, mod)
	})

	// The barrier above matters: unit generation reads the persisted module
	// content back, not the in-memory draft.
	p.progress(StageUnits, 70, "Generating units")
	RunAll(ctx, parsed.Modules, p.fanOutOptions(), func(ctx context.Context, mod types.ParsedModule) {
		p.generateUnits(ctx, course, mod)
	})

	p.progress(StageDone, 100, "Course generation settled")
	return nil
}

func (p *Pipeline) classify(ctx context.Context, course *types.Course, parsed *types.ParsedCourse) *types.CourseClassification {
	text := parsed.Headline
	if text == "" {
		text = parsed.Outline
	}
	if text == "" {
		text = course.Title
	}
	cls, err := p.Classifier.Classify(ctx, text)
	if err != nil {
		p.logw().Warn("Classification failed, continuing unclassified", "course_id", course.ID, "error", err)
		return nil
	}
	return cls
}

func (p *Pipeline) generateModule(ctx context.Context, course *types.Course, mod types.ParsedModule) {
	log := p.logw().With("course_id", course.ID, "week", mod.Week)

	existing, err := p.Modules.GetByNumber(ctx, course.ID, mod.Week)
	if err == nil && existing != nil {
		return
	}

	out := Retry(ctx, p.taskPolicy(func(err error) {
		log.Error("Module generation attempt failed", "error", err)
	}), func(ctx context.Context) (uuid.UUID, error) {
		body, err := p.ModuleGen.GenerateModule(ctx, ModuleRequest{
			CourseDescription: course.Description,
			CourseBody:        course.Content,
			ModuleNumber:      mod.Week,
		})
		if err != nil {
			return uuid.Nil, err
		}
		return p.Modules.Set(ctx, course.ID, mod.Week, mod.Title, body)
	})
	if out.Exhausted {
		// The module record simply never gets created; its units are
		// skipped later. Siblings are unaffected.
		log.Error("Module generation exhausted retries", "attempts", out.Attempts)
	}
}

func (p *Pipeline) generateUnits(ctx context.Context, course *types.Course, mod types.ParsedModule) {
	log := p.logw().With("course_id", course.ID, "week", mod.Week)

	module, err := p.Modules.GetByNumber(ctx, course.ID, mod.Week)
	if err != nil {
		log.Error("Module lookup failed, skipping its units", "error", err)
		return
	}
	if module == nil {
		log.Warn("Module record absent, skipping its units")
		return
	}

	RunAll(ctx, mod.Units, p.fanOutOptions(), func(ctx context.Context, unit types.ParsedUnit) {
		p.generateUnit(ctx, course, module, mod, unit)
	})
}

type generatedUnit struct {
	id      uuid.UUID
	content string
}

func (p *Pipeline) generateUnit(ctx context.Context, course *types.Course, module *types.CourseModule, mod types.ParsedModule, unit types.ParsedUnit) {
	log := p.logw().With("course_id", course.ID, "week", mod.Week, "unit", unit.Number)

	content := Outcome[generatedUnit]{}
	if existing, err := p.Units.GetByNumber(ctx, module.ID, unit.Number); err == nil && existing != nil {
		if existing.Enriched() {
			return
		}
		// Content already committed on an earlier run; only enrichment is
		// missing. Never regenerate content for enrichment retries.
		content.Value = generatedUnit{id: existing.ID, content: existing.Content}
	} else {
		content = Retry(ctx, p.taskPolicy(func(err error) {
			log.Error("Unit generation attempt failed", "error", err)
		}), func(ctx context.Context) (generatedUnit, error) {
			body, err := p.UnitGen.GenerateUnit(ctx, UnitRequest{
				CourseDescription: course.Description,
				CourseBody:        course.Content,
				ModuleBody:        module.Content,
				ModuleNumber:      mod.Week,
				UnitNumber:        unit.Number,
			})
			if err != nil {
				return generatedUnit{}, err
			}
			id, err := p.Units.Set(ctx, module.ID, unit.Number, unit.Title, body)
			if err != nil {
				return generatedUnit{}, err
			}
			return generatedUnit{id: id, content: body}, nil
		})
		if content.Exhausted {
			// No unit record exists; there is nothing to enrich.
			log.Error("Unit generation exhausted retries", "attempts", content.Attempts)
			return
		}
	}

	// Second, independent retry block. It reuses the generated content on
	// every attempt, so repeated attempts are idempotent against the same
	// input.
	enrich := Retry(ctx, p.taskPolicy(func(err error) {
		log.Error("Unit enrichment attempt failed", "error", err)
	}), func(ctx context.Context) (struct{}, error) {
		urls, err := p.Links.ReferenceURLs(ctx, content.Value.content)
		if err != nil {
			return struct{}{}, err
		}
		image, err := p.Images.PickImage(ctx, urls)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, p.Units.Enrich(ctx, content.Value.id, urls, image)
	})
	if enrich.Exhausted {
		// Content-only unit: degraded but valid, kept forever if need be.
		log.Warn("Unit enrichment exhausted retries, unit stays content-only", "attempts", enrich.Attempts)
	}
}

func (p *Pipeline) taskPolicy(sink func(error)) Policy {
	pol := p.Retry
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = 3
	}
	if pol.Delay <= 0 {
		pol.Delay = time.Second
	}
	return pol.WithSink(sink)
}

func (p *Pipeline) fanOutOptions() FanOutOptions {
	return FanOutOptions{
		Workers: p.Workers,
		OnPanic: func(err error) {
			p.logw().Error("Generation task panicked", "error", err)
		},
	}
}

func (p *Pipeline) progress(stage string, pct int, msg string) {
	if p.OnStage != nil {
		p.OnStage(stage, pct, msg)
	}
}

func (p *Pipeline) logw() *logger.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logger.NewNop()
}
