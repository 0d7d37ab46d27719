package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	history "gasledger/internal/history/domain"
)

// UsageReport is the flattened view rendered by the export builders. It
// is assembled from the persisted state plus, when available, the latest
// reconciliation cycle.
type UsageReport struct {
	EntryID     string
	GeneratedAt time.Time

	Balance          float64
	Arrears          float64
	MonthUsage       float64
	MonthCost        float64
	TotalUsage       float64
	AvailableDays    int
	ActiveTierPrice  float64
	CycleDescription string

	Stats history.RollingStats
	Days  []history.DailyUsageRecord
}

// ReportFromState builds a report directly from persisted state, for
// callers without a live cycle result.
func ReportFromState(state *history.PersistedState, generatedAt time.Time) UsageReport {
	report := UsageReport{
		EntryID:          state.EntryID,
		GeneratedAt:      generatedAt,
		Balance:          state.LastBalance,
		CycleDescription: state.CycleDescription,
		Stats:            state.RollingStats("", ""),
		Days:             state.Days(),
	}
	report.MonthUsage = state.MonthUsageTotal()
	return report
}

// BuildUsageReportPDF renders a usage report as PDF.
func BuildUsageReportPDF(report UsageReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Usage & Billing Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Entry: %s", report.EntryID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance: %.2f", report.Balance))
	pdf.Ln(5)
	if report.Arrears > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Arrears: %.2f", report.Arrears))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Month Usage: %.3f", report.MonthUsage))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Month Cost: %.2f", report.MonthCost))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Usage: %.3f", report.TotalUsage))
	pdf.Ln(5)
	if report.AvailableDays > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Available Days: %d", report.AvailableDays))
		pdf.Ln(5)
	}
	if report.ActiveTierPrice > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Active Tier Price: %.3f", report.ActiveTierPrice))
		pdf.Ln(5)
	}
	if report.CycleDescription != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Ladder Cycle: %s", report.CycleDescription))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Days Tracked: %d  Avg: %.3f  Max: %.3f  Min: %.3f",
		report.Stats.TotalDays, report.Stats.Average, report.Stats.Max, report.Stats.Min))
	pdf.Ln(8)

	// Daily table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Usage", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Recharge", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Flagged", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range report.Days {
		flagged := ""
		if day.Flagged {
			flagged = "yes"
		}
		pdf.CellFormat(35, 6, day.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.3f", day.Usage), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", day.Cost), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f", day.RechargeTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, flagged, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildUsageReportXLSX renders a usage report as XLSX.
func BuildUsageReportXLSX(report UsageReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	daysSheet := "days"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(daysSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Usage & Billing Report")
	_ = f.SetCellValue(summarySheet, "A3", "Entry")
	_ = f.SetCellValue(summarySheet, "B3", report.EntryID)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Balance")
	_ = f.SetCellValue(summarySheet, "B5", report.Balance)
	_ = f.SetCellValue(summarySheet, "A6", "Arrears")
	_ = f.SetCellValue(summarySheet, "B6", report.Arrears)
	_ = f.SetCellValue(summarySheet, "A7", "Month Usage")
	_ = f.SetCellValue(summarySheet, "B7", report.MonthUsage)
	_ = f.SetCellValue(summarySheet, "A8", "Month Cost")
	_ = f.SetCellValue(summarySheet, "B8", report.MonthCost)
	_ = f.SetCellValue(summarySheet, "A9", "Total Usage")
	_ = f.SetCellValue(summarySheet, "B9", report.TotalUsage)
	_ = f.SetCellValue(summarySheet, "A10", "Available Days")
	_ = f.SetCellValue(summarySheet, "B10", report.AvailableDays)
	_ = f.SetCellValue(summarySheet, "A11", "Active Tier Price")
	_ = f.SetCellValue(summarySheet, "B11", report.ActiveTierPrice)
	_ = f.SetCellValue(summarySheet, "A12", "Ladder Cycle")
	_ = f.SetCellValue(summarySheet, "B12", report.CycleDescription)
	_ = f.SetCellValue(summarySheet, "A13", "Days Tracked")
	_ = f.SetCellValue(summarySheet, "B13", report.Stats.TotalDays)
	_ = f.SetCellValue(summarySheet, "A14", "Average Usage")
	_ = f.SetCellValue(summarySheet, "B14", report.Stats.Average)

	_ = f.SetCellValue(daysSheet, "A1", "Day")
	_ = f.SetCellValue(daysSheet, "B1", "Usage")
	_ = f.SetCellValue(daysSheet, "C1", "Cost")
	_ = f.SetCellValue(daysSheet, "D1", "Start Balance")
	_ = f.SetCellValue(daysSheet, "E1", "Recharge")
	_ = f.SetCellValue(daysSheet, "F1", "Flagged")
	for i, day := range report.Days {
		row := i + 2
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("B%d", row), day.Usage)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("C%d", row), day.Cost)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("D%d", row), day.StartBalance)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("E%d", row), day.RechargeTotal)
		_ = f.SetCellValue(daysSheet, fmt.Sprintf("F%d", row), day.Flagged)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
