package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
	"github.com/noah-isme/elab-api/pkg/export"
)

const defaultHistoryExportRows = 5000

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// HistoryExport is a rendered ledger document ready to stream.
type HistoryExport struct {
	Filename    string
	ContentType string
	Rows        int
	Payload     []byte
}

// HistoryExportService renders borrow history into CSV or PDF documents.
type HistoryExportService struct {
	csv     csvRenderer
	pdf     pdfRenderer
	maxRows int
	logger  *zap.Logger
	now     func() time.Time
}

// NewHistoryExportService constructs a HistoryExportService. Nil renderers fall back to the
// package exporters.
func NewHistoryExportService(maxRows int, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *HistoryExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = defaultHistoryExportRows
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &HistoryExportService{csv: csv, pdf: pdf, maxRows: maxRows, logger: logger, now: time.Now}
}

// MaxRows reports the row cap of a single export.
func (s *HistoryExportService) MaxRows() int {
	return s.maxRows
}

// Supports reports whether format can be rendered.
func (s *HistoryExportService) Supports(format models.ExportFormat) bool {
	return format == models.ExportFormatCSV || format == models.ExportFormatPDF
}

// Render builds the document for records of one resource kind.
func (s *HistoryExportService) Render(kind models.ResourceKind, records []models.BorrowRecord, format models.ExportFormat) (*HistoryExport, error) {
	dataset := historyDataset(kind, records)
	title := "Equipment Borrow History"
	if kind == models.ResourceKit {
		title = "Kit Borrow History"
	}

	var (
		payload     []byte
		contentType string
		err         error
	)
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, internalError(s.logger, err, "failed to render borrow history", zap.String("format", string(format)))
	}

	return &HistoryExport{
		Filename:    buildHistoryFilename(kind, format, s.now()),
		ContentType: contentType,
		Rows:        len(records),
		Payload:     payload,
	}, nil
}

func historyDataset(kind models.ResourceKind, records []models.BorrowRecord) export.Dataset {
	resourceHeader := "Equipment"
	if kind == models.ResourceKit {
		resourceHeader = "Kit"
	}
	headers := []string{"Record ID", "Team ID", "Class ID", resourceHeader, "Name", "Borrowed At", "Returned At", "Status", "Returned By"}
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		resource := record.ResourceName
		if resource == "" {
			resource = record.ResourceID
		}
		rows = append(rows, map[string]string{
			"Record ID":    record.ID,
			"Team ID":      record.TeamID,
			"Class ID":     record.ClassID,
			resourceHeader: resource,
			"Name":         record.Name,
			"Borrowed At":  record.BorrowDate.UTC().Format(time.RFC3339),
			"Returned At":  formatExportTime(record.ReturnDate),
			"Status":       string(record.Status),
			"Returned By":  deref(record.ReturnedBy),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func buildHistoryFilename(kind models.ResourceKind, format models.ExportFormat, at time.Time) string {
	prefix := "team_equipment"
	if kind == models.ResourceKit {
		prefix = "team_kit"
	}
	return fmt.Sprintf("%s_history_%s.%s", prefix, at.UTC().Format("20060102_150405"), format)
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
