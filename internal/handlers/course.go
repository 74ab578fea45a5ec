package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/services"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

type CourseHandler struct {
	log           *logger.Logger
	courseService services.CourseService
	genService    services.CourseGenerationService
}

func NewCourseHandler(log *logger.Logger, courseService services.CourseService, genService services.CourseGenerationService) *CourseHandler {
	return &CourseHandler{
		log:           log.With("handler", "CourseHandler"),
		courseService: courseService,
		genService:    genService,
	}
}

type createCourseRequest struct {
	Title       string `json:"title" binding:"required,min=2,max=100"`
	Language    string `json:"language"`
	WeekCount   int    `json:"weekCount"`
	Description string `json:"description" binding:"required,min=10,max=5000"`
	Content     string `json:"content" binding:"required,min=10,max=5000"`
}

// POST /api/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	owner := ownerID(c)
	if owner == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	draft := types.CourseDraft{
		Title:       req.Title,
		Language:    req.Language,
		WeekCount:   req.WeekCount,
		Description: req.Description,
		Content:     req.Content,
	}

	course, run, err := h.genService.GenerateCourse(c.Request.Context(), owner, draft)
	if err != nil {
		h.log.Error("CreateCourse failed", "error", err, "owner_id", owner)
		RespondError(c, http.StatusInternalServerError, "create_course_failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"course": course, "run": run})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_course_id", err)
		return
	}

	view, err := h.courseService.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		h.log.Error("GetCourse failed", "error", err, "course_id", courseID)
		RespondError(c, http.StatusInternalServerError, "load_course_failed", err)
		return
	}
	if view == nil {
		RespondError(c, http.StatusNotFound, "course_not_found", nil)
		return
	}
	RespondOK(c, view)
}

// GET /api/courses/slug/:slug
func (h *CourseHandler) GetCourseBySlug(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		RespondError(c, http.StatusBadRequest, "invalid_slug", nil)
		return
	}

	view, err := h.courseService.GetCourseBySlug(c.Request.Context(), slug)
	if err != nil {
		h.log.Error("GetCourseBySlug failed", "error", err, "slug", slug)
		RespondError(c, http.StatusInternalServerError, "load_course_failed", err)
		return
	}
	if view == nil {
		RespondError(c, http.StatusNotFound, "course_not_found", nil)
		return
	}
	RespondOK(c, view)
}

// GET /api/courses
func (h *CourseHandler) ListUserCourses(c *gin.Context) {
	owner := ownerID(c)
	if owner == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	courses, err := h.courseService.ListCoursesByOwner(c.Request.Context(), owner)
	if err != nil {
		h.log.Error("ListUserCourses failed", "error", err, "owner_id", owner)
		RespondError(c, http.StatusInternalServerError, "load_courses_failed", err)
		return
	}
	RespondOK(c, gin.H{"courses": courses})
}
