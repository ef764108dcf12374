package export

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/escuelademusica/liquidaciones/payroll"
)

// ListingSheet is the worksheet name of the listing export.
const ListingSheet = "Liquidaciones"

var listingHeaders = []string{"ID", "Profesor", "Mes", "Año", "Fecha", "Total"}

// WriteListing writes statement rows and their grand total as an XLSX workbook.
func WriteListing(w io.Writer, rows []payroll.StatementSummary, grandTotal decimal.Decimal) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ListingSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return errors.Wrap(err, "creating money style")
	}

	for i, header := range listingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(ListingSheet, cell, header)
	}
	f.SetCellStyle(ListingSheet, "A1", "F1", bold)

	for i, r := range rows {
		row := i + 2
		f.SetCellValue(ListingSheet, fmt.Sprintf("A%d", row), r.ID)
		f.SetCellValue(ListingSheet, fmt.Sprintf("B%d", row), r.TeacherName)
		f.SetCellValue(ListingSheet, fmt.Sprintf("C%d", row), r.Month)
		f.SetCellValue(ListingSheet, fmt.Sprintf("D%d", row), r.Year)
		f.SetCellValue(ListingSheet, fmt.Sprintf("E%d", row), r.CreatedAt.Format("02/01/2006"))
		f.SetCellValue(ListingSheet, fmt.Sprintf("F%d", row), r.Total.InexactFloat64())
	}

	totalRow := len(rows) + 2
	f.SetCellValue(ListingSheet, fmt.Sprintf("E%d", totalRow), "TOTAL")
	f.SetCellValue(ListingSheet, fmt.Sprintf("F%d", totalRow), grandTotal.InexactFloat64())
	f.SetCellStyle(ListingSheet, fmt.Sprintf("E%d", totalRow), fmt.Sprintf("E%d", totalRow), bold)
	f.SetCellStyle(ListingSheet, "F2", fmt.Sprintf("F%d", totalRow), money)
	f.SetColWidth(ListingSheet, "B", "B", 32)

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
