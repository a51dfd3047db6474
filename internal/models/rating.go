package models

import "time"

// SheetRating is a difficulty vote on a sheet
type SheetRating struct {
	ID        int64
	SheetID   int64
	DeviceID  string
	IPHash    string
	Score     int
	CreatedAt time.Time
}

// SheetView is a single view/download log row
type SheetView struct {
	ID         int64
	SheetID    int64
	DeviceID   *string // nullable - views may be logged without a device
	IPHash     string
	OccurredAt time.Time
}

// ErrorResponse is the JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Suggestion is a single autocomplete entry
type Suggestion struct {
	Text string `json:"text"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Suggestion types
const (
	SuggestionCourse  = "curso"
	SuggestionTeacher = "profesor"
	SuggestionSheet   = "plancha"
)
