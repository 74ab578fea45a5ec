package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursecraft-backend/internal/services"
)

type CourseGenHandler struct {
	svc services.CourseService
}

func NewCourseGenHandler(svc services.CourseService) *CourseGenHandler {
	return &CourseGenHandler{svc: svc}
}

// GET /api/courses/:id/generation
func (h *CourseGenHandler) GetLatestForCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}

	run, err := h.svc.GetLatestRun(c.Request.Context(), courseID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_run_failed", err)
		return
	}

	// run can be nil if no runs exist yet
	RespondOK(c, gin.H{"run": run})
}

// GET /api/course-generation-runs/:id
func (h *CourseGenHandler) GetRunByID(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}

	run, err := h.svc.GetRun(c.Request.Context(), runID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "load_run_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", nil)
		return
	}

	RespondOK(c, gin.H{"run": run})
}
