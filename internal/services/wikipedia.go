package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

// WikipediaService resolves a reference image for a unit from its wikipedia
// article links via the REST page summary endpoint.
type WikipediaService struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewWikipediaService(log *logger.Logger) *WikipediaService {
	return &WikipediaService{
		log:        log.With("service", "WikipediaService"),
		baseURL:    "https://en.wikipedia.org",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWikipediaServiceWithBase exists for tests that point the client at a
// local server.
func NewWikipediaServiceWithBase(log *logger.Logger, baseURL string) *WikipediaService {
	s := NewWikipediaService(log)
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

type pageSummary struct {
	Title     string `json:"title"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	OriginalImage *struct {
		Source string `json:"source"`
	} `json:"originalimage"`
}

// PickImage walks the urls in order and returns the first article image it
// finds. Returns nil without error when no article carries one.
func (s *WikipediaService) PickImage(ctx context.Context, urls []string) (*types.UnitImage, error) {
	for _, articleURL := range urls {
		title := articleTitle(articleURL)
		if title == "" {
			continue
		}

		summary, err := s.fetchSummary(ctx, title)
		if err != nil {
			s.log.Warn("Wikipedia summary fetch failed", "title", title, "error", err)
			continue
		}
		if summary.OriginalImage == nil && summary.Thumbnail == nil {
			continue
		}

		image := &types.UnitImage{Source: articleURL}
		if summary.OriginalImage != nil {
			image.URL = summary.OriginalImage.Source
		}
		if summary.Thumbnail != nil {
			image.ThumbnailURL = summary.Thumbnail.Source
			if image.URL == "" {
				image.URL = summary.Thumbnail.Source
			}
		}
		return image, nil
	}
	return nil, nil
}

func (s *WikipediaService) fetchSummary(ctx context.Context, title string) (*pageSummary, error) {
	endpoint := s.baseURL + "/api/rest_v1/page/summary/" + url.PathEscape(title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia summary %s: http %d", title, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var summary pageSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// articleTitle extracts the page title from a canonical article URL, e.g.
// https://en.wikipedia.org/wiki/Graph_theory -> Graph_theory.
func articleTitle(articleURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil {
		return ""
	}
	const prefix = "/wiki/"
	if !strings.HasPrefix(parsed.Path, prefix) {
		return ""
	}
	title := strings.TrimPrefix(parsed.Path, prefix)
	if title == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(title); err == nil {
		title = decoded
	}
	return title
}
