package types

// ParsedCourse is the structured outline produced by the parse stage.
// Produced once, read-only afterward.
type ParsedCourse struct {
	Headline string         `json:"headline"`
	Outline  string         `json:"outline"`
	Modules  []ParsedModule `json:"modules"`
}

// ParsedModule describes one week of the course to be generated.
type ParsedModule struct {
	Week  int          `json:"week"`
	Title string       `json:"title"`
	Units []ParsedUnit `json:"units"`
}

// ParsedUnit describes one unit to be generated, ordered by Number.
type ParsedUnit struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// CourseClassification is the CIP code attached by the classify stage. A nil
// *CourseClassification means the classifier failed and the course proceeds
// unclassified.
type CourseClassification struct {
	CipCode  string `json:"cip_code"`
	CipTitle string `json:"cip_title"`
}

// UnitImage is a reference image resolved from a unit's wikipedia links.
type UnitImage struct {
	Source       string `json:"source"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	URL          string `json:"url"`
}
