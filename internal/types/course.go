package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseDraft is the user-submitted seed for a course. It is immutable once
// the course record has been created.
type CourseDraft struct {
	Title       string `json:"title"`
	Language    string `json:"language"`
	WeekCount   int    `json:"week_count"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type Course struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Language      string         `gorm:"column:language;not null;default:'English'" json:"language"`
	WeekCount     int            `gorm:"column:week_count;not null;default:4" json:"week_count"`
	Description   string         `gorm:"column:description;not null" json:"description"`
	Content       string         `gorm:"column:content;not null" json:"content"`
	Slug          string         `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	ParsedContent datatypes.JSON `gorm:"column:parsed_content;type:jsonb" json:"parsed_content,omitempty"`
	CipCode       *string        `gorm:"column:cip_code" json:"cip_code,omitempty"`
	CipTitle      *string        `gorm:"column:cip_title" json:"cip_title,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

// Parsed decodes the committed outline. Returns nil when the parse stage has
// not committed yet.
func (c *Course) Parsed() (*ParsedCourse, error) {
	if len(c.ParsedContent) == 0 || string(c.ParsedContent) == "null" {
		return nil, nil
	}
	var parsed ParsedCourse
	if err := json.Unmarshal(c.ParsedContent, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
