package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/storage"
	"github.com/trikaweb/trikaweb/internal/utils"
)

// Source lists and downloads Drive content. Client satisfies it.
type Source interface {
	ListFolders(ctx context.Context, parentID string) ([]Item, error)
	ListPDFs(ctx context.Context, parentID string) ([]Item, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Result summarizes one sync run.
type Result struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	NoSheet int `json:"no_sheet"`
	Failed  int `json:"failed"`
}

// Syncer mirrors a two-level Drive folder tree (course code / exam type /
// cycle.pdf) into object storage and the sheets table.
type Syncer struct {
	src     Source
	storage storage.Backend
	courses repository.CourseRepository
	sheets  repository.SheetRepository
}

// NewSyncer creates a Syncer.
func NewSyncer(src Source, backend storage.Backend, courses repository.CourseRepository, sheets repository.SheetRepository) *Syncer {
	return &Syncer{src: src, storage: backend, courses: courses, sheets: sheets}
}

// SyncExams imports exam PDFs rooted at folderID. Sheets whose storage
// path already exists are skipped. Per-file failures are counted, never
// abort the run.
func (s *Syncer) SyncExams(ctx context.Context, folderID string) (Result, error) {
	var res Result
	err := s.walk(ctx, folderID, func(ctx context.Context, course *models.Course, examType string, file Item) {
		cycle := cycleName(file.Name)
		key := storageKey(course.Code, examType, cycle)

		exists, err := s.sheets.ExistsByStoragePath(ctx, key)
		if err != nil {
			s.fail(&res, "exam", file.Name, err)
			return
		}
		if exists {
			res.Skipped++
			metrics.DriveSyncFilesTotal.WithLabelValues("exam", "skipped").Inc()
			return
		}

		if err := s.upload(ctx, storage.BucketExams, key, file); err != nil {
			s.fail(&res, "exam", file.Name, err)
			return
		}

		sheet := &models.Sheet{
			CourseID:        course.ID,
			ExamType:        examType,
			Cycle:           cycle,
			ExamStoragePath: key,
		}
		if _, err := s.sheets.Create(ctx, sheet); err != nil {
			s.fail(&res, "exam", file.Name, err)
			return
		}

		res.Synced++
		metrics.DriveSyncFilesTotal.WithLabelValues("exam", "synced").Inc()
		slog.Info("Synced exam sheet", "course", course.Code, "exam_type", examType, "cycle", cycle)
	})
	return res, err
}

// SyncSolutions imports solution PDFs rooted at folderID, attaching each
// to the sheet matching (course, exam type, cycle).
func (s *Syncer) SyncSolutions(ctx context.Context, folderID string) (Result, error) {
	var res Result
	err := s.walk(ctx, folderID, func(ctx context.Context, course *models.Course, examType string, file Item) {
		cycle := cycleName(file.Name)

		sheet, err := s.sheets.FindByCourseExam(ctx, course.ID, examType, cycle)
		if err == repository.ErrNotFound {
			res.NoSheet++
			metrics.DriveSyncFilesTotal.WithLabelValues("solution", "no_sheet").Inc()
			slog.Warn("No sheet for solution", "course", course.Code, "exam_type", examType, "cycle", cycle)
			return
		}
		if err != nil {
			s.fail(&res, "solution", file.Name, err)
			return
		}
		if sheet.SolutionKind != nil {
			res.Skipped++
			metrics.DriveSyncFilesTotal.WithLabelValues("solution", "skipped").Inc()
			return
		}

		key := storageKey(course.Code, examType, cycle)
		if err := s.upload(ctx, storage.BucketSolutions, key, file); err != nil {
			s.fail(&res, "solution", file.Name, err)
			return
		}

		if err := s.sheets.SetSolution(ctx, sheet.ID, models.SolutionKindPDF, &key, nil); err != nil {
			s.fail(&res, "solution", file.Name, err)
			return
		}

		res.Synced++
		metrics.DriveSyncFilesTotal.WithLabelValues("solution", "synced").Inc()
		slog.Info("Synced solution", "course", course.Code, "exam_type", examType, "cycle", cycle)
	})
	return res, err
}

// walk visits every PDF under folderID, grouped by course folder and
// exam type folder. Unknown course codes are warned about and skipped.
func (s *Syncer) walk(ctx context.Context, folderID string, visit func(context.Context, *models.Course, string, Item)) error {
	courseFolders, err := s.src.ListFolders(ctx, folderID)
	if err != nil {
		return fmt.Errorf("failed to list course folders: %w", err)
	}

	for _, courseFolder := range courseFolders {
		code := strings.ToUpper(strings.TrimSpace(courseFolder.Name))

		course, err := s.courses.FindByCode(ctx, code)
		if err == repository.ErrNotFound {
			slog.Warn("Skipping unknown course folder", "folder", courseFolder.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to look up course %s: %w", code, err)
		}

		examFolders, err := s.src.ListFolders(ctx, courseFolder.ID)
		if err != nil {
			return fmt.Errorf("failed to list exam folders for %s: %w", code, err)
		}

		for _, examFolder := range examFolders {
			examType := strings.TrimSpace(examFolder.Name)

			files, err := s.src.ListPDFs(ctx, examFolder.ID)
			if err != nil {
				return fmt.Errorf("failed to list files for %s/%s: %w", code, examType, err)
			}

			for _, file := range files {
				visit(ctx, course, examType, file)
			}
		}
	}
	return nil
}

// upload downloads one Drive file, verifies it is a PDF and stores it.
func (s *Syncer) upload(ctx context.Context, bucket, key string, file Item) error {
	body, err := s.src.Download(ctx, file.ID)
	if err != nil {
		return err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("failed to read drive file %s: %w", file.Name, err)
	}

	if !mimetype.Detect(buf.Bytes()).Is("application/pdf") {
		return fmt.Errorf("file %s is not a PDF", file.Name)
	}

	return s.storage.Store(ctx, bucket, key, &buf, int64(buf.Len()), "application/pdf")
}

func (s *Syncer) fail(res *Result, kind, name string, err error) {
	res.Failed++
	metrics.DriveSyncFilesTotal.WithLabelValues(kind, "failed").Inc()
	slog.Error("Drive sync file failed", "kind", kind, "file", name, "error", err)
}

// storageKey builds the object key for a sheet file.
func storageKey(courseCode, examType, cycle string) string {
	return fmt.Sprintf("%s/%s/%s.pdf",
		utils.SanitizePathComponent(courseCode),
		utils.SanitizePathComponent(examType),
		utils.SanitizePathComponent(cycle))
}

// cycleName strips the .pdf extension from a Drive file name.
func cycleName(name string) string {
	base := strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base = base[:len(base)-len(".pdf")]
	}
	return strings.TrimSpace(base)
}
