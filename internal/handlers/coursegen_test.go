package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/coursecraft-backend/internal/services"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

type fakeCourseService struct {
	run *types.CourseGenerationRun
	err error
}

func (f *fakeCourseService) GetCourse(ctx context.Context, id uuid.UUID) (*services.CourseView, error) {
	return nil, nil
}

func (f *fakeCourseService) GetCourseBySlug(ctx context.Context, slug string) (*services.CourseView, error) {
	return nil, nil
}

func (f *fakeCourseService) ListCoursesByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.Course, error) {
	return nil, nil
}

func (f *fakeCourseService) GetLatestRun(ctx context.Context, courseID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.run, f.err
}

func (f *fakeCourseService) GetRun(ctx context.Context, runID uuid.UUID) (*types.CourseGenerationRun, error) {
	return f.run, f.err
}

func newCourseGenRouter(svc services.CourseService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCourseGenHandler(svc)
	r := gin.New()
	r.GET("/api/courses/:id/generation", h.GetLatestForCourse)
	r.GET("/api/course-generation-runs/:id", h.GetRunByID)
	return r
}

func TestGetLatestForCourseServiceErrorIsServerError(t *testing.T) {
	r := newCourseGenRouter(&fakeCourseService{err: errors.New("db down")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/courses/"+uuid.NewString()+"/generation", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for service failure, got %d", w.Code)
	}
	var envelope ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "load_run_failed" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
}

func TestGetLatestForCourseRejectsBadCourseID(t *testing.T) {
	r := newCourseGenRouter(&fakeCourseService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/courses/not-a-uuid/generation", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
}

func TestGetRunByIDStatusCodes(t *testing.T) {
	run := &types.CourseGenerationRun{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		CourseID: uuid.New(),
		Status:   types.RunStatusRunning,
		Stage:    "units",
		Metadata: datatypes.JSON([]byte(`{}`)),
	}

	cases := []struct {
		name string
		svc  *fakeCourseService
		path string
		want int
	}{
		{"found", &fakeCourseService{run: run}, "/api/course-generation-runs/" + run.ID.String(), http.StatusOK},
		{"missing", &fakeCourseService{}, "/api/course-generation-runs/" + uuid.NewString(), http.StatusNotFound},
		{"service failure", &fakeCourseService{err: errors.New("db down")}, "/api/course-generation-runs/" + uuid.NewString(), http.StatusInternalServerError},
		{"malformed id", &fakeCourseService{}, "/api/course-generation-runs/nope", http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newCourseGenRouter(tc.svc)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (body %s)", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
