package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/trikaweb/trikaweb/internal/database"
	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

func gateCounter(key string, count int, lastSeen time.Time) gate.Counter {
	return gate.Counter{Key: key, Count: count, LastSeen: lastSeen, CreatedAt: lastSeen}
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Force single connection for in-memory databases
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := database.CreateSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

func seedCourse(t *testing.T, db *sql.DB, code, name string) int64 {
	t.Helper()
	id, err := NewCourseRepository(db).Create(context.Background(), code, name)
	if err != nil {
		t.Fatalf("failed to seed course %s: %v", code, err)
	}
	return id
}

func seedSheet(t *testing.T, db *sql.DB, courseID int64, examType, cycle string) int64 {
	t.Helper()
	id, err := NewSheetRepository(db).Create(context.Background(), &models.Sheet{
		CourseID:        courseID,
		ExamType:        examType,
		Cycle:           cycle,
		ExamStoragePath: "exams/test-" + examType + "-" + cycle + ".pdf",
	})
	if err != nil {
		t.Fatalf("failed to seed sheet: %v", err)
	}
	return id
}

func TestCourseRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewCourseRepository(db)

	bmaID := seedCourse(t, db, "BMA01", "Cálculo Diferencial")
	seedCourse(t, db, "BFI01", "Física I")
	seedSheet(t, db, bmaID, "parcial", "2024-1")
	seedSheet(t, db, bmaID, "final", "2024-1")

	t.Run("ListWithSheetCounts", func(t *testing.T) {
		courses, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(courses) != 2 {
			t.Fatalf("expected 2 courses, got %d", len(courses))
		}
		// Ordered by code: BFI01 first
		if courses[0].Code != "BFI01" || courses[0].SheetCount != 0 {
			t.Errorf("unexpected first course: %+v", courses[0])
		}
		if courses[1].Code != "BMA01" || courses[1].SheetCount != 2 {
			t.Errorf("unexpected second course: %+v", courses[1])
		}
	})

	t.Run("GetByCodeWithSheets", func(t *testing.T) {
		detail, err := repo.GetByCode(ctx, "BMA01")
		if err != nil {
			t.Fatalf("GetByCode failed: %v", err)
		}
		if len(detail.Sheets) != 2 {
			t.Errorf("expected 2 sheets, got %d", len(detail.Sheets))
		}
	})

	t.Run("GetByCodeNotFound", func(t *testing.T) {
		_, err := repo.GetByCode(ctx, "NOPE")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		_, err := repo.Create(ctx, "BMA01", "Duplicado")
		if !errors.Is(err, repository.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
	})

	t.Run("SearchPrefilter", func(t *testing.T) {
		courses, err := repo.SearchPrefilter(ctx, "BMA", 10)
		if err != nil {
			t.Fatalf("SearchPrefilter failed: %v", err)
		}
		if len(courses) != 1 || courses[0].Code != "BMA01" {
			t.Errorf("unexpected prefilter result: %+v", courses)
		}
	})

	t.Run("SearchPrefilterEscapesWildcards", func(t *testing.T) {
		courses, err := repo.SearchPrefilter(ctx, "%", 10)
		if err != nil {
			t.Fatalf("SearchPrefilter failed: %v", err)
		}
		if len(courses) != 0 {
			t.Errorf("literal %% should match nothing, got %d rows", len(courses))
		}
	})
}

func TestSheetRatingsAndViews(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSheetRepository(db)

	courseID := seedCourse(t, db, "BMA01", "Cálculo Diferencial")
	sheetID := seedSheet(t, db, courseID, "parcial", "2024-1")

	t.Run("RatingUpdatesAggregates", func(t *testing.T) {
		err := repo.UpsertRating(ctx, &models.SheetRating{
			SheetID: sheetID, DeviceID: "dev-1", IPHash: "h1", Score: 4,
		})
		if err != nil {
			t.Fatalf("UpsertRating failed: %v", err)
		}
		err = repo.UpsertRating(ctx, &models.SheetRating{
			SheetID: sheetID, DeviceID: "dev-2", IPHash: "h2", Score: 5,
		})
		if err != nil {
			t.Fatalf("UpsertRating failed: %v", err)
		}

		s, err := repo.GetByID(ctx, sheetID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if s.RatingCount != 2 {
			t.Errorf("expected rating_count 2, got %d", s.RatingCount)
		}
		if s.AvgDifficulty == nil || *s.AvgDifficulty != 4.5 {
			t.Errorf("expected avg 4.5, got %v", s.AvgDifficulty)
		}
	})

	t.Run("SameDeviceReplacesVote", func(t *testing.T) {
		err := repo.UpsertRating(ctx, &models.SheetRating{
			SheetID: sheetID, DeviceID: "dev-1", IPHash: "h1", Score: 1,
		})
		if err != nil {
			t.Fatalf("UpsertRating failed: %v", err)
		}

		s, _ := repo.GetByID(ctx, sheetID)
		if s.RatingCount != 2 {
			t.Errorf("re-vote must not grow rating_count, got %d", s.RatingCount)
		}
		if s.AvgDifficulty == nil || *s.AvgDifficulty != 3.0 {
			t.Errorf("expected avg 3.0 after re-vote, got %v", s.AvgDifficulty)
		}
	})

	t.Run("RatingUnknownSheet", func(t *testing.T) {
		err := repo.UpsertRating(ctx, &models.SheetRating{
			SheetID: 9999, DeviceID: "dev-1", IPHash: "h1", Score: 3,
		})
		if err == nil {
			t.Error("rating an unknown sheet should fail")
		}
	})

	t.Run("ViewsRecount", func(t *testing.T) {
		dev := "dev-1"
		for i := 0; i < 3; i++ {
			if err := repo.InsertView(ctx, &models.SheetView{
				SheetID: sheetID, DeviceID: &dev, IPHash: "h1",
			}); err != nil {
				t.Fatalf("InsertView failed: %v", err)
			}
		}
		if err := repo.InsertView(ctx, &models.SheetView{SheetID: sheetID, IPHash: "h2"}); err != nil {
			t.Fatalf("InsertView without device failed: %v", err)
		}

		s, _ := repo.GetByID(ctx, sheetID)
		if s.ViewCount != 4 {
			t.Errorf("expected view_count 4, got %d", s.ViewCount)
		}
	})

	t.Run("GetBatchSkipsUnknown", func(t *testing.T) {
		sheets, err := repo.GetBatch(ctx, []int64{sheetID, 424242})
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if len(sheets) != 1 || sheets[0].ID != sheetID {
			t.Errorf("unexpected batch result: %+v", sheets)
		}
	})

	t.Run("GetBatchEmpty", func(t *testing.T) {
		sheets, err := repo.GetBatch(ctx, nil)
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		if len(sheets) != 0 {
			t.Errorf("expected empty result, got %d", len(sheets))
		}
	})
}

func TestTeacherRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewTeacherRepository(db)

	courseID := seedCourse(t, db, "BMA01", "Cálculo Diferencial")

	teacherID, err := repo.Create(ctx, &models.Teacher{
		FullName: "Rosa Ñahui", Bio: "Análisis matemático",
	}, []int64{courseID})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	hiddenID, err := repo.Create(ctx, &models.Teacher{
		FullName: "Oculto Pérez", IsHidden: true,
	}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("ListSkipsHidden", func(t *testing.T) {
		teachers, err := repo.List(ctx, "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(teachers) != 1 || teachers[0].ID != teacherID {
			t.Fatalf("expected only the visible teacher, got %+v", teachers)
		}
		if len(teachers[0].Courses) != 1 || teachers[0].Courses[0].Code != "BMA01" {
			t.Errorf("expected course link, got %+v", teachers[0].Courses)
		}
	})

	t.Run("ListAllIncludesHidden", func(t *testing.T) {
		teachers, err := repo.ListAll(ctx)
		if err != nil {
			t.Fatalf("ListAll failed: %v", err)
		}
		if len(teachers) != 2 {
			t.Errorf("expected 2 teachers, got %d", len(teachers))
		}
	})

	t.Run("ListByCourse", func(t *testing.T) {
		teachers, err := repo.List(ctx, "BMA01")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(teachers) != 1 {
			t.Errorf("expected 1 teacher for BMA01, got %d", len(teachers))
		}
	})

	t.Run("NewRatingIsHidden", func(t *testing.T) {
		comment := "excelente"
		_, err := repo.UpsertRating(ctx, &models.TeacherRating{
			TeacherID: teacherID, DeviceID: "dev-seed", Overall: 4.2,
			Difficulty: 4, Didactic: 5, Resources: 4, Responsability: 4, Grading: 4,
			Comment: &comment,
		}, "iphash-1")
		if err != nil {
			t.Fatalf("UpsertRating failed: %v", err)
		}

		reviews, total, err := repo.Reviews(ctx, teacherID, 1, 10)
		if err != nil {
			t.Fatalf("Reviews failed: %v", err)
		}
		if total != 0 || len(reviews) != 0 {
			t.Error("fresh ratings must stay hidden from the public page")
		}

		if err := repo.RecomputeAggregates(ctx, teacherID); err != nil {
			t.Fatalf("RecomputeAggregates failed: %v", err)
		}
		teacher, _ := repo.GetByID(ctx, teacherID)
		if teacher.RatingCount != 0 {
			t.Errorf("hidden ratings must not count, got %d", teacher.RatingCount)
		}
	})

	t.Run("ApprovedRatingCounts", func(t *testing.T) {
		ratings, _, err := repo.ListRatings(ctx, true, 1, 10)
		if err != nil {
			t.Fatalf("ListRatings failed: %v", err)
		}
		if len(ratings) != 1 {
			t.Fatalf("expected 1 pending rating, got %d", len(ratings))
		}

		gotTeacherID, err := repo.SetRatingHidden(ctx, ratings[0].ID, false)
		if err != nil {
			t.Fatalf("SetRatingHidden failed: %v", err)
		}
		if gotTeacherID != teacherID {
			t.Errorf("expected teacher %d, got %d", teacherID, gotTeacherID)
		}

		if err := repo.RecomputeAggregates(ctx, teacherID); err != nil {
			t.Fatalf("RecomputeAggregates failed: %v", err)
		}
		teacher, _ := repo.GetByID(ctx, teacherID)
		if teacher.RatingCount != 1 {
			t.Errorf("expected rating_count 1, got %d", teacher.RatingCount)
		}
		if teacher.AvgOverall == nil || *teacher.AvgOverall != 4.2 {
			t.Errorf("expected avg_overall 4.2, got %v", teacher.AvgOverall)
		}

		reviews, total, _ := repo.Reviews(ctx, teacherID, 1, 10)
		if total != 1 || len(reviews) != 1 {
			t.Error("approved rating should be public")
		}
	})

	t.Run("CountRatingsByIP", func(t *testing.T) {
		count, err := repo.CountRatingsByIP(ctx, teacherID, "iphash-1")
		if err != nil {
			t.Fatalf("CountRatingsByIP failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1, got %d", count)
		}
		count, _ = repo.CountRatingsByIP(ctx, teacherID, "other")
		if count != 0 {
			t.Errorf("expected 0 for other hash, got %d", count)
		}
	})

	t.Run("ReRatingByDeviceReplaces", func(t *testing.T) {
		has, err := repo.HasRatingByDevice(ctx, teacherID, "dev-seed")
		if err != nil {
			t.Fatalf("HasRatingByDevice failed: %v", err)
		}
		if !has {
			t.Fatal("expected a stored review for dev-seed")
		}

		id, err := repo.UpsertRating(ctx, &models.TeacherRating{
			TeacherID: teacherID, DeviceID: "dev-seed", Overall: 2.0,
			Difficulty: 2, Didactic: 2, Resources: 2, Responsability: 2, Grading: 2,
		}, "iphash-2")
		if err != nil {
			t.Fatalf("UpsertRating failed: %v", err)
		}

		rt, err := repo.GetRating(ctx, id)
		if err != nil {
			t.Fatalf("GetRating failed: %v", err)
		}
		if rt.Overall != 2.0 || rt.Comment != nil {
			t.Errorf("expected replaced scores, got %+v", rt)
		}
		if !rt.IsHidden {
			t.Error("replaced review must go back through moderation")
		}
		if rt.UpdatedAt == nil {
			t.Error("replaced review must carry an update timestamp")
		}

		count, _ := repo.CountRatingsByIP(ctx, teacherID, "iphash-2")
		if count != 1 {
			t.Errorf("expected the single replaced row, got %d", count)
		}
	})

	t.Run("SearchPrefilterSkipsHidden", func(t *testing.T) {
		teachers, err := repo.SearchPrefilter(ctx, "Pérez", 10)
		if err != nil {
			t.Fatalf("SearchPrefilter failed: %v", err)
		}
		if len(teachers) != 0 {
			t.Error("hidden teachers must not surface in search")
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		if err := repo.Delete(ctx, hiddenID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.GetByID(ctx, hiddenID); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestWriteLimitRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewWriteLimitRepository(db)

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		c, err := repo.Get(ctx, "nope")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if c != nil {
			t.Errorf("expected nil counter, got %+v", c)
		}
	})

	t.Run("PutThenGet", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		err := repo.Put(ctx, gateCounter("abc", 3, now))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		c, err := repo.Get(ctx, "abc")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if c == nil || c.Count != 3 {
			t.Fatalf("unexpected counter: %+v", c)
		}
		if !c.LastSeen.Equal(now) {
			t.Errorf("expected last_seen %v, got %v", now, c.LastSeen)
		}
	})

	t.Run("PutReplaces", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		if err := repo.Put(ctx, gateCounter("abc", 4, now)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		c, _ := repo.Get(ctx, "abc")
		if c.Count != 4 {
			t.Errorf("expected count 4, got %d", c.Count)
		}
	})

	t.Run("DeleteStale", func(t *testing.T) {
		old := time.Now().UTC().Add(-48 * time.Hour)
		if err := repo.Put(ctx, gateCounter("old", 1, old)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		deleted, err := repo.DeleteStale(ctx, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("DeleteStale failed: %v", err)
		}
		if deleted != 1 {
			t.Errorf("expected 1 deleted, got %d", deleted)
		}
		if c, _ := repo.Get(ctx, "abc"); c == nil {
			t.Error("fresh counter should survive cleanup")
		}
	})
}

func TestSessionRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	sess := repository.AdminSession{
		Token:     "tok-1",
		Username:  "admin",
		CreatedAt: now,
		ExpiresAt: now.Add(12 * time.Hour),
	}

	if err := repo.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := repo.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Username != "admin" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.LastActivity.IsZero() {
		t.Error("expected last_activity to start at creation time")
	}

	stale := repository.AdminSession{
		Token:     "tok-3",
		Username:  "admin",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Touch(ctx, "tok-3"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	touched, err := repo.Get(ctx, "tok-3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !touched.LastActivity.After(stale.CreatedAt) {
		t.Errorf("expected last_activity to advance past %v, got %v", stale.CreatedAt, touched.LastActivity)
	}

	expired := repository.AdminSession{
		Token:     "tok-2",
		Username:  "admin",
		CreatedAt: now.Add(-24 * time.Hour),
		ExpiresAt: now.Add(-12 * time.Hour),
	}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 expired session removed, got %d", deleted)
	}

	if err := repo.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, "tok-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
