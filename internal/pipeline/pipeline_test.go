package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursecraft-backend/internal/types"
)

// harness fakes every collaborator with in-memory state. Failure injection
// is keyed by (week, unit) so tests read like the scenarios they cover.
type harness struct {
	mu      sync.Mutex
	courses map[uuid.UUID]*types.Course
	modules map[string]*types.CourseModule
	units   map[string]*types.CourseUnit

	parsed      *types.ParsedCourse
	parseErr    error
	classifyErr error

	failModule map[int]bool
	failUnit   map[[2]int]bool
	failEnrich map[[2]int]bool

	unitGenCalls   map[[2]int]int
	enrichCalls    map[[2]int]int
	events         []string
	moduleBodySeen []string
}

func newHarness(parsed *types.ParsedCourse) *harness {
	return &harness{
		courses:      map[uuid.UUID]*types.Course{},
		modules:      map[string]*types.CourseModule{},
		units:        map[string]*types.CourseUnit{},
		parsed:       parsed,
		failModule:   map[int]bool{},
		failUnit:     map[[2]int]bool{},
		failEnrich:   map[[2]int]bool{},
		unitGenCalls: map[[2]int]int{},
		enrichCalls:  map[[2]int]int{},
	}
}

func (h *harness) pipeline() *Pipeline {
	return &Pipeline{
		Slugs:      h,
		Courses:    h,
		Modules:    moduleStoreFake{h},
		Units:      unitStoreFake{h},
		Parser:     h,
		Classifier: h,
		ModuleGen:  h,
		UnitGen:    h,
		Links:      h,
		Images:     h,
		Retry:      Policy{MaxAttempts: 3, Delay: time.Millisecond},
		Workers:    4,
	}
}

// ---- collaborator fakes ----

func (h *harness) UniqueSlug(ctx context.Context, candidate string) (string, error) {
	return strings.ToLower(strings.ReplaceAll(candidate, " ", "-")), nil
}

func (h *harness) Create(ctx context.Context, ownerID uuid.UUID, draft types.CourseDraft, slug string) (uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.New()
	h.courses[id] = &types.Course{
		ID:          id,
		OwnerID:     ownerID,
		Title:       draft.Title,
		Language:    draft.Language,
		WeekCount:   draft.WeekCount,
		Description: draft.Description,
		Content:     draft.Content,
		Slug:        slug,
	}
	return id, nil
}

func (h *harness) Get(ctx context.Context, id uuid.UUID) (*types.Course, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.courses[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (h *harness) CommitOutline(ctx context.Context, id uuid.UUID, parsed *types.ParsedCourse, cls *types.CourseClassification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.courses[id]
	if !ok {
		return errors.New("course not found")
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return err
	}
	c.ParsedContent = datatypes.JSON(raw)
	if cls != nil {
		c.CipCode, c.CipTitle = &cls.CipCode, &cls.CipTitle
	}
	return nil
}

func moduleKey(courseID uuid.UUID, week int) string {
	return fmt.Sprintf("%s/%d", courseID, week)
}

func unitKey(moduleID uuid.UUID, number int) string {
	return fmt.Sprintf("%s/%d", moduleID, number)
}

type moduleStoreFake struct{ h *harness }

func (s moduleStoreFake) GetByNumber(ctx context.Context, courseID uuid.UUID, week int) (*types.CourseModule, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.modules[moduleKey(courseID, week)]
	if !ok {
		return nil, nil
	}
	h.events = append(h.events, fmt.Sprintf("module-read-hit:%d", week))
	copied := *m
	return &copied, nil
}

func (s moduleStoreFake) Set(ctx context.Context, courseID uuid.UUID, week int, title, content string) (uuid.UUID, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	key := moduleKey(courseID, week)
	if m, ok := h.modules[key]; ok {
		m.Title, m.Content = title, content
		return m.ID, nil
	}
	id := uuid.New()
	h.modules[key] = &types.CourseModule{ID: id, CourseID: courseID, Week: week, Title: title, Content: content}
	h.events = append(h.events, fmt.Sprintf("module-set:%d", week))
	return id, nil
}

type unitStoreFake struct{ h *harness }

func (s unitStoreFake) GetByNumber(ctx context.Context, moduleID uuid.UUID, number int) (*types.CourseUnit, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	u, ok := h.units[unitKey(moduleID, number)]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s unitStoreFake) Set(ctx context.Context, moduleID uuid.UUID, number int, title, content string) (uuid.UUID, error) {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	key := unitKey(moduleID, number)
	if u, ok := h.units[key]; ok {
		u.Title, u.Content = title, content
		return u.ID, nil
	}
	id := uuid.New()
	h.units[key] = &types.CourseUnit{ID: id, ModuleID: moduleID, Number: number, Title: title, Content: content}
	return id, nil
}

func (s unitStoreFake) Enrich(ctx context.Context, unitID uuid.UUID, wikipediaURLs []string, image *types.UnitImage) error {
	h := s.h
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, u := range h.units {
		if u.ID == unitID {
			raw, _ := json.Marshal(wikipediaURLs)
			u.WikipediaURLs = datatypes.JSON(raw)
			if image != nil {
				img, _ := json.Marshal(image)
				u.Image = datatypes.JSON(img)
			}
			return nil
		}
	}
	return errors.New("unit not found")
}

func (h *harness) GenerateModule(ctx context.Context, req ModuleRequest) (string, error) {
	if h.failModule[req.ModuleNumber] {
		return "", fmt.Errorf("module %d generator down", req.ModuleNumber)
	}
	return fmt.Sprintf("module %d body", req.ModuleNumber), nil
}

func (h *harness) GenerateUnit(ctx context.Context, req UnitRequest) (string, error) {
	key := [2]int{req.ModuleNumber, req.UnitNumber}
	h.mu.Lock()
	h.unitGenCalls[key]++
	h.moduleBodySeen = append(h.moduleBodySeen, req.ModuleBody)
	fail := h.failUnit[key]
	h.mu.Unlock()
	if fail {
		return "", fmt.Errorf("unit %d.%d generator down", req.ModuleNumber, req.UnitNumber)
	}
	return fmt.Sprintf("unit %d.%d body", req.ModuleNumber, req.UnitNumber), nil
}

func (h *harness) ReferenceURLs(ctx context.Context, unitContent string) ([]string, error) {
	var week, num int
	if _, err := fmt.Sscanf(unitContent, "unit %d.%d body", &week, &num); err == nil {
		key := [2]int{week, num}
		h.mu.Lock()
		h.enrichCalls[key]++
		fail := h.failEnrich[key]
		h.mu.Unlock()
		if fail {
			return nil, fmt.Errorf("link extraction for unit %d.%d down", week, num)
		}
	}
	return []string{"https://en.wikipedia.org/wiki/Graph_theory"}, nil
}

func (h *harness) PickImage(ctx context.Context, urls []string) (*types.UnitImage, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	return &types.UnitImage{Source: urls[0], URL: urls[0] + "#/media/file"}, nil
}

func (h *harness) ParseCourse(ctx context.Context, content string) (*types.ParsedCourse, error) {
	if h.parseErr != nil {
		return nil, h.parseErr
	}
	return h.parsed, nil
}

func (h *harness) Classify(ctx context.Context, text string) (*types.CourseClassification, error) {
	if h.classifyErr != nil {
		return nil, h.classifyErr
	}
	return &types.CourseClassification{CipCode: "27.0101", CipTitle: "Mathematics, General"}, nil
}

func outline(weeks, unitsPerWeek int) *types.ParsedCourse {
	parsed := &types.ParsedCourse{Headline: "Graphs from scratch", Outline: "A course about graphs"}
	for w := 1; w <= weeks; w++ {
		mod := types.ParsedModule{Week: w, Title: fmt.Sprintf("Week %d", w)}
		for u := 1; u <= unitsPerWeek; u++ {
			mod.Units = append(mod.Units, types.ParsedUnit{Number: u, Title: fmt.Sprintf("Unit %d.%d", w, u)})
		}
		parsed.Modules = append(parsed.Modules, mod)
	}
	return parsed
}

var testDraft = types.CourseDraft{
	Title:       "Intro to Graphs",
	Language:    "English",
	WeekCount:   2,
	Description: "A two week introduction to graph theory.",
	Content:     "Teach me graphs: traversal, shortest paths, spanning trees.",
}

func TestGenerateHappyPath(t *testing.T) {
	h := newHarness(outline(2, 2))
	p := h.pipeline()

	courseID, err := p.Generate(context.Background(), uuid.New(), testDraft)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	course := h.courses[courseID]
	if course == nil {
		t.Fatalf("course record missing")
	}
	if course.Slug != "intro-to-graphs" {
		t.Fatalf("unexpected slug %q", course.Slug)
	}
	if course.CipCode == nil || *course.CipCode != "27.0101" {
		t.Fatalf("classification not committed: %+v", course.CipCode)
	}
	parsed, err := course.Parsed()
	if err != nil || parsed == nil {
		t.Fatalf("parsed content not committed: %v", err)
	}
	if len(h.modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(h.modules))
	}
	if len(h.units) != 4 {
		t.Fatalf("expected 4 units, got %d", len(h.units))
	}
	for _, u := range h.units {
		if !u.Enriched() {
			t.Fatalf("unit %d not enriched", u.Number)
		}
	}
}

func TestUnitGenerationReadsPersistedModuleBody(t *testing.T) {
	h := newHarness(outline(2, 1))
	p := h.pipeline()

	if _, err := p.Generate(context.Background(), uuid.New(), testDraft); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, body := range h.moduleBodySeen {
		if !strings.HasPrefix(body, "module ") || !strings.HasSuffix(body, " body") {
			t.Fatalf("unit generator saw non-persisted module body %q", body)
		}
	}
	// The module barrier must fully precede any unit-stage module read.
	lastSet, firstRead := -1, len(h.events)
	for i, ev := range h.events {
		if strings.HasPrefix(ev, "module-set:") && i > lastSet {
			lastSet = i
		}
		if strings.HasPrefix(ev, "module-read-hit:") && i < firstRead {
			firstRead = i
		}
	}
	if lastSet == -1 || firstRead == len(h.events) {
		t.Fatalf("expected both module writes and reads, events=%v", h.events)
	}
	if firstRead < lastSet {
		t.Fatalf("module read at %d before final module write at %d: %v", firstRead, lastSet, h.events)
	}
}

func TestParseFailureIsFatal(t *testing.T) {
	h := newHarness(nil)
	h.parseErr = errors.New("parser unavailable")
	p := h.pipeline()

	courseID, err := p.Generate(context.Background(), uuid.New(), testDraft)
	if err == nil {
		t.Fatalf("expected fatal error from parse stage")
	}
	// The create stage is not rolled back; the bare course record remains.
	if len(h.courses) != 1 {
		t.Fatalf("expected the created course to remain, got %d", len(h.courses))
	}
	if courseID != uuid.Nil {
		t.Fatalf("fatal pipeline must not return a course id")
	}
	if len(h.modules) != 0 {
		t.Fatalf("no downstream stage may run after a fatal parse")
	}
}

func TestClassifierFailureIsSubstituted(t *testing.T) {
	h := newHarness(outline(1, 1))
	h.classifyErr = errors.New("classifier down")
	p := h.pipeline()

	courseID, err := p.Generate(context.Background(), uuid.New(), testDraft)
	if err != nil {
		t.Fatalf("classification failure must not be fatal: %v", err)
	}
	course := h.courses[courseID]
	if course.CipCode != nil || course.CipTitle != nil {
		t.Fatalf("expected absent classification, got %v/%v", course.CipCode, course.CipTitle)
	}
	if parsed, _ := course.Parsed(); parsed == nil {
		t.Fatalf("outline must still be committed")
	}
	if len(h.modules) != 1 {
		t.Fatalf("module stage must still run, got %d modules", len(h.modules))
	}
}

func TestUnitContentExhaustionSkipsEnrichment(t *testing.T) {
	h := newHarness(outline(2, 2))
	h.failUnit[[2]int{2, 1}] = true
	p := h.pipeline()

	courseID, err := p.Generate(context.Background(), uuid.New(), testDraft)
	if err != nil {
		t.Fatalf("per-unit exhaustion must not fail the pipeline: %v", err)
	}
	if courseID == uuid.Nil {
		t.Fatalf("expected a course id")
	}
	if len(h.modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(h.modules))
	}
	if len(h.units) != 3 {
		t.Fatalf("expected 3 units (not 4), got %d", len(h.units))
	}
	if got := h.unitGenCalls[[2]int{2, 1}]; got != 3 {
		t.Fatalf("expected 3 content attempts for the failing unit, got %d", got)
	}
	if got := h.enrichCalls[[2]int{2, 1}]; got != 0 {
		t.Fatalf("enrichment must never run for an exhausted unit, got %d calls", got)
	}
}

func TestEnrichmentExhaustionLeavesContentOnly(t *testing.T) {
	h := newHarness(outline(1, 2))
	h.failEnrich[[2]int{1, 2}] = true
	p := h.pipeline()

	if _, err := p.Generate(context.Background(), uuid.New(), testDraft); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var degraded *types.CourseUnit
	for _, u := range h.units {
		if u.Number == 2 {
			degraded = u
		}
	}
	if degraded == nil {
		t.Fatalf("content block succeeded, the unit record must exist")
	}
	if degraded.Content == "" {
		t.Fatalf("degraded unit must keep its content")
	}
	if degraded.Enriched() {
		t.Fatalf("exhausted enrichment must leave wikipedia urls unset")
	}
	if len(degraded.Image) != 0 {
		t.Fatalf("exhausted enrichment must leave image unset")
	}
	if got := h.enrichCalls[[2]int{1, 2}]; got != 3 {
		t.Fatalf("expected 3 enrichment attempts, got %d", got)
	}
}

func TestModuleExhaustionSkipsItsUnits(t *testing.T) {
	h := newHarness(outline(2, 2))
	h.failModule[1] = true
	p := h.pipeline()

	if _, err := p.Generate(context.Background(), uuid.New(), testDraft); err != nil {
		t.Fatalf("per-module exhaustion must not fail the pipeline: %v", err)
	}
	if len(h.modules) != 1 {
		t.Fatalf("expected only module 2, got %d modules", len(h.modules))
	}
	if len(h.units) != 2 {
		t.Fatalf("units of the missing module must be skipped, got %d units", len(h.units))
	}
	if got := h.unitGenCalls[[2]int{1, 1}] + h.unitGenCalls[[2]int{1, 2}]; got != 0 {
		t.Fatalf("no unit generation may run for a module that was never persisted, got %d calls", got)
	}
}

func TestContinueFillsHolesWithoutRegenerating(t *testing.T) {
	h := newHarness(outline(2, 2))
	h.failUnit[[2]int{2, 1}] = true
	p := h.pipeline()

	courseID, err := p.Generate(context.Background(), uuid.New(), testDraft)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(h.units) != 3 {
		t.Fatalf("expected 3 units after first run, got %d", len(h.units))
	}

	// The generator recovers; a re-claimed run only fills the hole.
	h.mu.Lock()
	h.failUnit[[2]int{2, 1}] = false
	h.mu.Unlock()
	if err := p.Continue(context.Background(), courseID); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if len(h.units) != 4 {
		t.Fatalf("expected the missing unit to be filled, got %d units", len(h.units))
	}
	if got := h.unitGenCalls[[2]int{1, 1}]; got != 1 {
		t.Fatalf("completed units must not be regenerated, got %d calls", got)
	}
}

func TestStartReturnsBeforeSettlement(t *testing.T) {
	h := newHarness(outline(2, 2))
	p := h.pipeline()

	run, err := p.Start(context.Background(), uuid.New(), testDraft)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.CourseID == uuid.Nil {
		t.Fatalf("Start must return the course id immediately")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(h.units) != 4 {
		t.Fatalf("expected settlement to include all units, got %d", len(h.units))
	}
}
