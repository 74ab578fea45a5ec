package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CourseUnit is one generated lesson inside a module, keyed by
// (module, number). WikipediaURLs and Image stay null when the enrichment
// block never completed; a content-only unit is a valid degraded state.
type CourseUnit struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_course_unit_number" json:"module_id"`
	Module        *CourseModule  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ModuleID;references:ID" json:"module,omitempty"`
	Number        int            `gorm:"column:number;not null;uniqueIndex:idx_course_unit_number" json:"number"`
	Title         string         `gorm:"column:title;not null" json:"title"`
	Content       string         `gorm:"column:content;not null" json:"content"`
	WikipediaURLs datatypes.JSON `gorm:"column:wikipedia_urls;type:jsonb" json:"wikipedia_urls,omitempty"`
	Image         datatypes.JSON `gorm:"column:image;type:jsonb" json:"image,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseUnit) TableName() string { return "course_unit" }

// Enriched reports whether the enrichment block ever committed for this unit.
func (u *CourseUnit) Enriched() bool {
	return len(u.WikipediaURLs) > 0 && string(u.WikipediaURLs) != "null"
}

// PickedImage decodes the stored image, nil when enrichment found none.
func (u *CourseUnit) PickedImage() (*UnitImage, error) {
	if len(u.Image) == 0 || string(u.Image) == "null" {
		return nil, nil
	}
	var img UnitImage
	if err := json.Unmarshal(u.Image, &img); err != nil {
		return nil, err
	}
	return &img, nil
}
