package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/repos"
)

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the title and collapses every non-alphanumeric run into
// a single hyphen.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugStripPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "course"
	}
	return slug
}

// SlugService hands out course slugs that are unique across the table by
// probing slug, slug-2, slug-3, ...
type SlugService struct {
	courseRepo repos.CourseRepo
	log        *logger.Logger
}

func NewSlugService(courseRepo repos.CourseRepo, log *logger.Logger) *SlugService {
	return &SlugService{courseRepo: courseRepo, log: log.With("service", "SlugService")}
}

func (s *SlugService) UniqueSlug(ctx context.Context, candidate string) (string, error) {
	base := Slugify(candidate)

	slug := base
	for suffix := 2; ; suffix++ {
		taken, err := s.courseRepo.SlugExists(ctx, nil, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, suffix)
	}
}
