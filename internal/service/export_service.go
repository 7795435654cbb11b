package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mtb-case-api/internal/models"
	appErrors "github.com/noah-isme/mtb-case-api/pkg/errors"
	"github.com/noah-isme/mtb-case-api/pkg/export"
)

type caseExportSource interface {
	ListOwnedCases(ctx context.Context, userID string) ([]models.CaseListItem, error)
	GetCaseDetail(ctx context.Context, userID, caseID string) (*models.CaseDetail, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderDocument(doc export.Document) ([]byte, error)
}

// ExportResult is a rendered file ready to be sent to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders case lists and case dossiers.
type ExportService struct {
	cases  caseExportSource
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default exporters.
func NewExportService(cases caseExportSource, csv csvRenderer, pdf pdfRenderer, loc *time.Location, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ExportService{cases: cases, csv: csv, pdf: pdf, logger: logger, loc: loc, now: time.Now}
}

var caseListHeaders = []string{"Case Name", "Patient", "Age", "Sex", "Cancer Type", "Status", "Finalized", "Created At"}

// ExportOwnedCases renders the caller's case list as CSV or PDF.
func (s *ExportService) ExportOwnedCases(ctx context.Context, userID string, format export.Format) (*ExportResult, error) {
	items, err := s.cases.ListOwnedCases(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]string{
			"Case Name":   item.CaseName,
			"Patient":     deref(item.PatientName),
			"Age":         strconv.Itoa(item.Age),
			"Sex":         item.Sex,
			"Cancer Type": item.CancerType,
			"Status":      string(item.Status),
			"Finalized":   strconv.FormatBool(item.Finalized),
			"Created At":  s.formatTime(item.CreatedAt),
		})
	}
	dataset := export.Dataset{Headers: caseListHeaders, Rows: rows}

	var data []byte
	switch format {
	case export.FormatCSV:
		data, err = s.csv.Render(dataset)
	case export.FormatPDF:
		data, err = s.pdf.Render(dataset, "My Cases")
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render case list")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("cases_%s.%s", s.now().In(s.loc).Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// ExportCase renders a readable case as a PDF dossier.
func (s *ExportService) ExportCase(ctx context.Context, userID, caseID string) (*ExportResult, error) {
	detail, err := s.cases.GetCaseDetail(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "case not found")
	}

	doc := export.Document{
		Title: detail.CaseName,
		Fields: []export.Field{
			{Label: "Patient", Value: deref(detail.PatientName)},
			{Label: "Age", Value: strconv.Itoa(detail.Age)},
			{Label: "Sex", Value: detail.Sex},
			{Label: "Cancer type", Value: detail.CancerType},
			{Label: "Status", Value: string(detail.Status)},
			{Label: "Created", Value: s.formatTime(detail.CreatedAt)},
		},
	}
	doc.Sections = append(doc.Sections,
		export.Section{Heading: "Summary", Body: deref(detail.Summary)},
		export.Section{Heading: "Treatment plan", Body: deref(detail.TreatmentPlan)},
		export.Section{Heading: "Follow-up", Body: deref(detail.FollowUp)},
	)
	if len(detail.Questions) > 0 {
		lines := make([]string, 0, len(detail.Questions))
		for i, q := range detail.Questions {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, q.Text))
		}
		doc.Sections = append(doc.Sections, export.Section{Heading: "Questions", Body: strings.Join(lines, "\n")})
	}
	if len(detail.Documents) > 0 {
		lines := make([]string, 0, len(detail.Documents))
		for _, d := range detail.Documents {
			lines = append(lines, fmt.Sprintf("%s (%s, %s)", d.Name, d.Type, d.Size))
		}
		doc.Sections = append(doc.Sections, export.Section{Heading: "Documents", Body: strings.Join(lines, "\n")})
	}
	for _, op := range detail.Opinions {
		author := deref(op.AuthorName)
		if author == "" {
			author = "Reviewer"
		}
		doc.Sections = append(doc.Sections, export.Section{Heading: "Opinion: " + author, Body: op.Content})
	}

	data, err := s.pdf.RenderDocument(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render case dossier")
	}
	s.logger.Debug("case dossier rendered", zap.String("case_id", caseID), zap.Int("bytes", len(data)))
	return &ExportResult{
		Filename:    sanitizeFilename(detail.CaseName) + ".pdf",
		ContentType: export.FormatPDF.ContentType(),
		Data:        data,
	}, nil
}

func (s *ExportService) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format("2006-01-02 15:04")
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "case"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
