package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/presensia/attendance-api/internal/models"
	"github.com/presensia/attendance-api/pkg/export"
	"github.com/presensia/attendance-api/pkg/storage"
)

type exportAttendanceRepository interface {
	SessionReport(ctx context.Context, sessionID string) ([]models.SessionReportRow, error)
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceHistoryRow, error)
	StudentSummary(ctx context.Context, studentID, courseCode string) (*models.AttendanceSummary, error)
}

type exportSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	attendance exportAttendanceRepository
	sessions   exportSessionReader
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(attendance exportAttendanceRepository, sessions exportSessionReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		attendance: attendance,
		sessions:   sessions,
		storage:    store,
		csv:        csv,
		pdf:        pdf,
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "na"
	if job.Params.SessionID != nil {
		scope = sanitizeFilename(*job.Params.SessionID)
	} else if job.Params.StudentID != nil {
		scope = sanitizeFilename(*job.Params.StudentID)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeSession:
		return s.buildSessionDataset(ctx, job.Params)
	case models.ReportTypeStudent:
		return s.buildStudentDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildSessionDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	sessionID := deref(params.SessionID)
	if sessionID == "" {
		return export.Dataset{}, "", fmt.Errorf("sessionId is required for session reports")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows, err := s.attendance.SessionReport(ctx, sessionID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		dataRows = append(dataRows, map[string]string{
			"Register No": row.RegisterNo,
			"Name":        row.StudentName,
			"Status":      string(row.Status),
			"Face":        formatVerified(row.FaceVerified),
			"Location":    formatVerified(row.LocVerified),
			"Confidence":  formatFloat(row.FaceConfidence),
			"Distance":    formatFloat(row.DistanceM),
			"Marked At":   row.MarkedAt.UTC().Format(time.RFC3339),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Register No", "Name", "Status", "Face", "Location", "Confidence", "Distance", "Marked At"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Attendance %s %s", session.CourseCode, session.Date.Format("2006-01-02"))
	return dataset, title, nil
}

func (s *ExportService) buildStudentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	studentID := deref(params.StudentID)
	if studentID == "" {
		return export.Dataset{}, "", fmt.Errorf("studentId is required for student reports")
	}

	from, err := parseReportDate(params.DateFrom)
	if err != nil {
		return export.Dataset{}, "", err
	}
	to, err := parseReportDate(params.DateTo)
	if err != nil {
		return export.Dataset{}, "", err
	}

	history, err := s.attendance.StudentHistory(ctx, studentID, from, to)
	if err != nil {
		return export.Dataset{}, "", err
	}
	summary, err := s.attendance.StudentSummary(ctx, studentID, "")
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(history)+1)
	for _, row := range history {
		dataRows = append(dataRows, map[string]string{
			"Course":    row.CourseCode,
			"Date":      row.Date.Format("2006-01-02"),
			"Status":    string(row.Status),
			"Marked At": row.MarkedAt.UTC().Format(time.RFC3339),
		})
	}
	dataRows = append(dataRows, map[string]string{
		"Course":    "TOTAL",
		"Date":      "",
		"Status":    fmt.Sprintf("%.1f%% of %d sessions", summary.Percent, summary.Total),
		"Marked At": "",
	})

	dataset := export.Dataset{
		Headers: []string{"Course", "Date", "Status", "Marked At"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("Attendance History %s", studentID)
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatVerified(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func parseReportDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", *raw, err)
	}
	return &t, nil
}
