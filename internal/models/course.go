package models

// Course represents a course record in the database
type Course struct {
	ID   int64
	Code string
	Name string
}

// CourseSummary is the JSON shape for course listings and search results
type CourseSummary struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	SheetCount int    `json:"sheetCount"`
}

// CourseDetail is a course with its sheets
type CourseDetail struct {
	CourseSummary
	Sheets []SheetSummary `json:"sheets"`
}

// CourseRef is a minimal course reference embedded in teacher payloads
type CourseRef struct {
	ID   int64  `json:"id,omitempty"`
	Code string `json:"code"`
	Name string `json:"name"`
}
