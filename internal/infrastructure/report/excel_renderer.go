// Package report renders completion reports as xlsx workbooks.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/field-service/internal/application/port"
)

const (
	summarySheet  = "Completion"
	itemsSheet    = "Line items"
	evidenceSheet = "Evidence"
)

// ExcelRenderer implements port.ReportRenderer with excelize
type ExcelRenderer struct {
	companyName string
	logger      *zap.Logger
}

// NewExcelRenderer creates a renderer; companyName heads every report
func NewExcelRenderer(companyName string, logger *zap.Logger) *ExcelRenderer {
	return &ExcelRenderer{
		companyName: companyName,
		logger:      logger,
	}
}

// ContentType implements port.ReportRenderer
func (r *ExcelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements port.ReportRenderer
func (r *ExcelRenderer) Extension() string {
	return ".xlsx"
}

// Render builds the workbook: a summary sheet, the priced line items and the evidence links
func (r *ExcelRenderer) Render(report port.CompletionReport) ([]byte, error) {
	if report.Order == nil || report.Completion == nil {
		return nil, fmt.Errorf("report needs an order and a completion")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{itemsSheet, evidenceSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	r.fillSummary(f, report, bold, money)
	r.fillItems(f, report, bold, money)
	r.fillEvidence(f, report, bold)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Info("Completion report rendered",
		zap.Int64("order_id", report.Order.ID),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

func (r *ExcelRenderer) fillSummary(f *excelize.File, report port.CompletionReport, bold, money int) {
	order := report.Order
	record := report.Completion

	rows := [][2]interface{}{
		{"Company", r.companyName},
		{"Service order", order.Code},
		{"Client", order.ClientName},
		{"Phone", order.ClientPhone},
		{"Equipment", order.Equipment},
		{"Address", order.Address},
		{"Description", order.Description},
		{"Technician", record.CompletedBy},
		{"Completed at", record.CompletedAt.Format("2006-01-02 15:04")},
		{"Technical report", record.TechnicalReport},
		{"Total amount", record.TotalAmount},
		{"Payment confirmed", yesNo(record.PaymentConfirmed)},
		{"Administrative bypass", yesNo(record.AdministrativeBypass)},
		{"Fiscal document", fiscalSummary(report)},
	}
	if doc := report.FiscalDocument; doc != nil {
		rows = append(rows,
			[2]interface{}{"Verification code", doc.VerificationCode},
			[2]interface{}{"Service code", doc.ServiceCode},
			[2]interface{}{"Issued at", doc.IssuedAt.Format("2006-01-02 15:04")},
		)
	}

	for i, row := range rows {
		line := i + 1
		r.setCell(f, summarySheet, fmt.Sprintf("A%d", line), row[0])
		r.setCell(f, summarySheet, fmt.Sprintf("B%d", line), row[1])
		r.setStyle(f, summarySheet, fmt.Sprintf("A%d", line), bold)
		if row[0] == "Total amount" {
			r.setStyle(f, summarySheet, fmt.Sprintf("B%d", line), money)
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)
}

func (r *ExcelRenderer) fillItems(f *excelize.File, report port.CompletionReport, bold, money int) {
	headers := []interface{}{"Description", "Quantity", "Unit price", "Subtotal"}
	_ = f.SetSheetRow(itemsSheet, "A1", &headers)
	_ = f.SetCellStyle(itemsSheet, "A1", "D1", bold)

	line := 2
	for _, item := range report.Order.LineItems {
		row := []interface{}{item.Description, item.Quantity, item.UnitPrice, item.Subtotal()}
		_ = f.SetSheetRow(itemsSheet, fmt.Sprintf("A%d", line), &row)
		_ = f.SetCellStyle(itemsSheet, fmt.Sprintf("C%d", line), fmt.Sprintf("D%d", line), money)
		line++
	}

	r.setCell(f, itemsSheet, fmt.Sprintf("C%d", line), "Total")
	r.setStyle(f, itemsSheet, fmt.Sprintf("C%d", line), bold)
	r.setCell(f, itemsSheet, fmt.Sprintf("D%d", line), report.Order.Total())
	r.setStyle(f, itemsSheet, fmt.Sprintf("D%d", line), money)
	_ = f.SetColWidth(itemsSheet, "A", "A", 40)
}

func (r *ExcelRenderer) fillEvidence(f *excelize.File, report port.CompletionReport, bold int) {
	record := report.Completion

	headers := []interface{}{"Kind", "URL"}
	_ = f.SetSheetRow(evidenceSheet, "A1", &headers)
	_ = f.SetCellStyle(evidenceSheet, "A1", "B1", bold)

	line := 2
	addLink := func(kind, url string) {
		if url == "" {
			return
		}
		cell := fmt.Sprintf("B%d", line)
		r.setCell(f, evidenceSheet, fmt.Sprintf("A%d", line), kind)
		r.setCell(f, evidenceSheet, cell, url)
		if err := f.SetCellHyperLink(evidenceSheet, cell, url, "External"); err != nil {
			r.logger.Warn("Failed to set hyperlink", zap.String("cell", cell), zap.Error(err))
		}
		line++
	}

	for i, url := range record.Attachments {
		addLink(fmt.Sprintf("Attachment %d", i+1), url)
	}
	addLink("Technician signature", record.TechnicianSignature)
	addLink("Client signature", record.ClientSignature)
	_ = f.SetColWidth(evidenceSheet, "A", "A", 24)
	_ = f.SetColWidth(evidenceSheet, "B", "B", 80)
}

func (r *ExcelRenderer) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func (r *ExcelRenderer) setStyle(f *excelize.File, sheet, cell string, style int) {
	if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
		r.logger.Warn("Failed to set cell style",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func fiscalSummary(report port.CompletionReport) string {
	record := report.Completion
	switch {
	case report.FiscalDocument != nil:
		return report.FiscalDocument.ExternalID
	case record.FiscalDocumentID != "":
		return record.FiscalDocumentID
	case record.FiscalSkipped:
		return "skipped after failed emission"
	case record.FiscalDocumentRequested:
		return "requested"
	default:
		return "not requested"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

var _ port.ReportRenderer = (*ExcelRenderer)(nil)
