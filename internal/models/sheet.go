package models

import "time"

// Solution kinds for a sheet
const (
	SolutionKindPDF   = "pdf"
	SolutionKindVideo = "video"
)

// Sheet represents an exam sheet ("plancha") record in the database
type Sheet struct {
	ID                  int64
	CourseID            int64
	ExamType            string
	Cycle               string
	ExamStoragePath     string
	SolutionKind        *string // nullable - nil means no solution
	SolutionStoragePath *string
	SolutionVideoURL    *string
	TeacherHint         *string
	AvgDifficulty       *float64 // nullable - nil until first rating
	RatingCount         int
	ViewCount           int
	CreatedAt           time.Time

	// Denormalized from the courses table for display
	CourseCode string
	CourseName string
}

// SheetSummary is the JSON shape for sheet listings and search results
type SheetSummary struct {
	ID            int64    `json:"id"`
	ExamType      string   `json:"exam_type"`
	Cycle         string   `json:"cycle"`
	AvgDifficulty *float64 `json:"avg_difficulty"`
	RatingCount   int      `json:"rating_count"`
	ViewCount     int      `json:"view_count"`
	TeacherHint   *string  `json:"teacher_hint"`
	SolutionKind  *string  `json:"solution_kind,omitempty"`
	CourseCode    string   `json:"course_code,omitempty"`
	CourseName    string   `json:"course_name,omitempty"`
}

// Summary converts a Sheet to its public JSON shape
func (s *Sheet) Summary() SheetSummary {
	return SheetSummary{
		ID:            s.ID,
		ExamType:      s.ExamType,
		Cycle:         s.Cycle,
		AvgDifficulty: s.AvgDifficulty,
		RatingCount:   s.RatingCount,
		ViewCount:     s.ViewCount,
		TeacherHint:   s.TeacherHint,
		SolutionKind:  s.SolutionKind,
		CourseCode:    s.CourseCode,
		CourseName:    s.CourseName,
	}
}
