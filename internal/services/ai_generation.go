package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/coursecraft-backend/internal/logger"
	"github.com/yungbote/coursecraft-backend/internal/pipeline"
	"github.com/yungbote/coursecraft-backend/internal/types"
)

// AIGenerationService owns every model call the course pipeline makes:
// outline parsing, CIP classification, module/unit bodies and wikipedia
// reference extraction.
type AIGenerationService struct {
	ai  OpenAIClient
	log *logger.Logger
}

func NewAIGenerationService(ai OpenAIClient, log *logger.Logger) *AIGenerationService {
	return &AIGenerationService{ai: ai, log: log.With("service", "AIGenerationService")}
}

func (s *AIGenerationService) ParseCourse(ctx context.Context, content string) (*types.ParsedCourse, error) {
	system := strings.TrimSpace(strings.Join([]string{
		"You turn a free-text course description into a weekly outline.",
		"Produce a short headline, a one-paragraph outline, and one module per week.",
		"Each module gets 2-5 units with sequential numbers starting at 1.",
		"Week numbers are sequential starting at 1.",
		"Return ONLY JSON matching the schema.",
	}, "\n"))

	user := strings.TrimSpace(strings.Join([]string{
		"COURSE_CONTENT:",
		content,
	}, "\n"))

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"headline": map[string]any{"type": "string"},
			"outline":  map[string]any{"type": "string"},
			"modules": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"week":  map[string]any{"type": "integer", "minimum": 1},
						"title": map[string]any{"type": "string"},
						"units": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"additionalProperties": false,
								"properties": map[string]any{
									"number": map[string]any{"type": "integer", "minimum": 1},
									"title":  map[string]any{"type": "string"},
								},
								"required": []any{"number", "title"},
							},
						},
					},
					"required": []any{"week", "title", "units"},
				},
			},
		},
		"required": []any{"headline", "outline", "modules"},
	}

	obj, err := s.ai.GenerateJSON(ctx, system, user, "parse_course_v1", schema)
	if err != nil {
		return nil, err
	}

	var parsed types.ParsedCourse
	b, _ := json.Marshal(obj)
	if err := json.Unmarshal(b, &parsed); err != nil {
		return nil, fmt.Errorf("decode parsed course: %w", err)
	}
	if len(parsed.Modules) == 0 {
		return nil, fmt.Errorf("parsed course has no modules")
	}
	return &parsed, nil
}

func (s *AIGenerationService) Classify(ctx context.Context, text string) (*types.CourseClassification, error) {
	system := strings.TrimSpace(strings.Join([]string{
		"You classify course subject matter against the CIP 2020 taxonomy",
		"(Classification of Instructional Programs).",
		"Pick the single best-fitting six-digit code.",
		"Return ONLY JSON matching the schema.",
	}, "\n"))

	user := strings.TrimSpace(strings.Join([]string{
		"COURSE_SUMMARY:",
		text,
	}, "\n"))

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"cip_code":  map[string]any{"type": "string"},
			"cip_title": map[string]any{"type": "string"},
		},
		"required": []any{"cip_code", "cip_title"},
	}

	obj, err := s.ai.GenerateJSON(ctx, system, user, "parse_course_cip_v1", schema)
	if err != nil {
		return nil, err
	}

	var cls types.CourseClassification
	b, _ := json.Marshal(obj)
	if err := json.Unmarshal(b, &cls); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	if cls.CipCode == "" {
		return nil, fmt.Errorf("empty cip code")
	}
	return &cls, nil
}

func (s *AIGenerationService) GenerateModule(ctx context.Context, req pipeline.ModuleRequest) (string, error) {
	system := strings.TrimSpace(strings.Join([]string{
		"You write the body of one weekly module of an online course.",
		"Write in markdown: an intro paragraph, learning goals, and a short",
		"overview of what the week covers. Do not write the individual units.",
	}, "\n"))

	user := strings.TrimSpace(strings.Join([]string{
		"COURSE_DESCRIPTION:",
		req.CourseDescription,
		"",
		"COURSE_BODY:",
		req.CourseBody,
		"",
		fmt.Sprintf("MODULE_NUMBER: %d", req.ModuleNumber),
	}, "\n"))

	return s.ai.GenerateText(ctx, system, user)
}

func (s *AIGenerationService) GenerateUnit(ctx context.Context, req pipeline.UnitRequest) (string, error) {
	system := strings.TrimSpace(strings.Join([]string{
		"You write the body of one unit inside a weekly course module.",
		"Write complete teaching material in markdown: explanations, worked",
		"examples and a few exercises. Stay inside the scope the module body",
		"sets for this unit number.",
	}, "\n"))

	user := strings.TrimSpace(strings.Join([]string{
		"COURSE_DESCRIPTION:",
		req.CourseDescription,
		"",
		"COURSE_BODY:",
		req.CourseBody,
		"",
		"MODULE_BODY:",
		req.ModuleBody,
		"",
		fmt.Sprintf("MODULE_NUMBER: %d", req.ModuleNumber),
		fmt.Sprintf("UNIT_NUMBER: %d", req.UnitNumber),
	}, "\n"))

	return s.ai.GenerateText(ctx, system, user)
}

func (s *AIGenerationService) ReferenceURLs(ctx context.Context, unitContent string) ([]string, error) {
	system := strings.TrimSpace(strings.Join([]string{
		"You pick English Wikipedia articles that best support a piece of",
		"teaching material.",
		"Return 1-5 canonical https://en.wikipedia.org/wiki/... URLs, most",
		"relevant first. Only articles you are confident exist.",
		"Return ONLY JSON matching the schema.",
	}, "\n"))

	user := strings.TrimSpace(strings.Join([]string{
		"UNIT_CONTENT:",
		unitContent,
	}, "\n"))

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"urls": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"urls"},
	}

	obj, err := s.ai.GenerateJSON(ctx, system, user, "wikipedia_urls_v1", schema)
	if err != nil {
		return nil, err
	}

	var out struct {
		URLs []string `json:"urls"`
	}
	b, _ := json.Marshal(obj)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode wikipedia urls: %w", err)
	}

	urls := make([]string, 0, len(out.URLs))
	for _, u := range out.URLs {
		u = strings.TrimSpace(u)
		if strings.HasPrefix(u, "https://en.wikipedia.org/wiki/") {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no usable wikipedia urls")
	}
	return urls, nil
}
