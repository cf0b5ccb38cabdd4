package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/meridian-pos/meridian-stock/internal/ledger"
	"github.com/meridian-pos/meridian-stock/internal/reports"
)

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

// WriteMovementSummaryCSV serialises a movement summary to CSV.
func WriteMovementSummaryCSV(w io.Writer, summaries []reports.MovementTypeSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Movement Type", "Count", "Total Quantity", "Total Value"}); err != nil {
		return err
	}
	for _, summary := range summaries {
		record := []string{
			summary.Type,
			formatInt(summary.Count),
			summary.TotalQuantity.String(),
			summary.TotalValue.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMovementsCSV serialises a stock card listing to CSV, one row per
// ledger record in the order given.
func WriteMovementsCSV(w io.Writer, records []ledger.MovementRecord) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{"Occurred At", "Seq", "Type", "Location", "Variant", "Quantity", "Value", "New Quantity", "New Average", "Note"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range records {
		row := []string{
			record.OccurredAt.Format("2006-01-02 15:04:05"),
			formatInt(record.Seq),
			string(record.Type),
			record.LocationID.String(),
			record.VariantID.String(),
			record.Quantity.String(),
			record.Value.String(),
			record.NewQuantity.String(),
			record.NewAverage.String(),
			record.Note,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WritePurchaseSummaryCSV serialises a purchase summary to CSV.
func WritePurchaseSummaryCSV(w io.Writer, summaries []reports.PurchaseStatusSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Payment Status", "Count", "Total Cost", "Paid Amount"}); err != nil {
		return err
	}
	for _, summary := range summaries {
		record := []string{
			summary.PaymentStatus,
			formatInt(summary.Count),
			summary.TotalCost.String(),
			summary.PaidAmount.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteValuationCSV serialises a valuation report to CSV, ending with the
// grand total row.
func WriteValuationCSV(w io.Writer, report reports.ValuationReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Location", "Variant", "Quantity", "Average Value", "Total Value"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := []string{
			row.LocationID.String(),
			row.VariantID.String(),
			row.Quantity.String(),
			row.AverageValue.String(),
			row.TotalValue.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "", "", "Grand Total", report.GrandTotal.String()}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
