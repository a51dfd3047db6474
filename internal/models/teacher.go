package models

import "time"

// Teacher represents a teacher record in the database
type Teacher struct {
	ID          int64
	FullName    string
	Bio         string
	AvgOverall  *float64 // nullable - nil until first visible rating
	RatingCount int
	AvatarURL   *string
	IsHidden    bool
}

// TeacherSummary is the JSON shape for teacher listings and search results
type TeacherSummary struct {
	ID          int64       `json:"id"`
	FullName    string      `json:"full_name"`
	Bio         string      `json:"bio"`
	AvgOverall  *float64    `json:"avg_overall"`
	RatingCount int         `json:"rating_count"`
	AvatarURL   *string     `json:"avatar_url"`
	IsHidden    bool        `json:"is_hidden,omitempty"`
	Courses     []CourseRef `json:"courses"`
}

// TeacherRating is a single review of a teacher
type TeacherRating struct {
	ID             int64      `json:"id"`
	TeacherID      int64      `json:"teacher_id,omitempty"`
	DeviceID       string     `json:"-"`
	Overall        float64    `json:"overall"`
	Difficulty     int        `json:"difficulty"`
	Didactic       int        `json:"didactic"`
	Resources      int        `json:"resources"`
	Responsability int        `json:"responsability"`
	Grading        int        `json:"grading"`
	Comment        *string    `json:"comment"`
	IsHidden       bool       `json:"is_hidden,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`

	// Joined teacher name for admin listings
	TeacherName string `json:"teacher_name,omitempty"`
}

// TeacherStats holds per-dimension averages over visible ratings
type TeacherStats struct {
	AvgOverall        *float64 `json:"avg_overall"`
	AvgDifficulty     *float64 `json:"avg_difficulty"`
	AvgDidactic       *float64 `json:"avg_didactic"`
	AvgResources      *float64 `json:"avg_resources"`
	AvgResponsability *float64 `json:"avg_responsability"`
	AvgGrading        *float64 `json:"avg_grading"`
}

// Pagination describes a page of results
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"totalReviews"`
	TotalPages int `json:"totalPages"`
}

// TeacherDetail is the full teacher page payload
type TeacherDetail struct {
	Teacher    TeacherSummary  `json:"teacher"`
	Stats      TeacherStats    `json:"stats"`
	Courses    []CourseRef     `json:"courses"`
	Reviews    []TeacherRating `json:"reviews"`
	Pagination Pagination      `json:"pagination"`
}
