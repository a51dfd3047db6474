package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// SeedCourse inserts a course and returns its ID.
func SeedCourse(t *testing.T, repos *repository.Repositories, code, name string) int64 {
	t.Helper()

	id, err := repos.Courses.Create(context.Background(), code, name)
	if err != nil {
		t.Fatalf("failed to seed course %s: %v", code, err)
	}
	return id
}

// SeedTeacher inserts a visible teacher linked to the given courses.
func SeedTeacher(t *testing.T, repos *repository.Repositories, fullName string, courseIDs ...int64) int64 {
	t.Helper()

	id, err := repos.Teachers.Create(context.Background(), &models.Teacher{
		FullName: fullName,
		Bio:      "seeded for tests",
	}, courseIDs)
	if err != nil {
		t.Fatalf("failed to seed teacher %s: %v", fullName, err)
	}
	return id
}

// SeedSheet inserts a sheet with an exam file attached.
func SeedSheet(t *testing.T, repos *repository.Repositories, courseID int64, examType, cycle string) int64 {
	t.Helper()

	path := "seed/" + examType + "/" + cycle + ".pdf"
	id, err := repos.Sheets.Create(context.Background(), &models.Sheet{
		CourseID:        courseID,
		ExamType:        examType,
		Cycle:           cycle,
		ExamStoragePath: path,
	})
	if err != nil {
		t.Fatalf("failed to seed sheet %s/%s: %v", examType, cycle, err)
	}
	return id
}

// SeedTeacherRating inserts a review from a fresh device and returns its
// ID. Reviews start hidden; pass visible to flip it and recompute
// aggregates.
func SeedTeacherRating(t *testing.T, repos *repository.Repositories, teacherID int64, score int, comment *string, visible bool) int64 {
	t.Helper()

	ctx := context.Background()
	id, err := repos.Teachers.UpsertRating(ctx, &models.TeacherRating{
		TeacherID:      teacherID,
		DeviceID:       uuid.NewString(),
		Overall:        float64(score),
		Difficulty:     score,
		Didactic:       score,
		Resources:      score,
		Responsability: score,
		Grading:        score,
		Comment:        comment,
	}, "seed-ip-hash")
	if err != nil {
		t.Fatalf("failed to seed teacher rating: %v", err)
	}

	if visible {
		if _, err := repos.Teachers.SetRatingHidden(ctx, id, false); err != nil {
			t.Fatalf("failed to unhide seeded rating: %v", err)
		}
		if err := repos.Teachers.RecomputeAggregates(ctx, teacherID); err != nil {
			t.Fatalf("failed to recompute aggregates: %v", err)
		}
	}
	return id
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
