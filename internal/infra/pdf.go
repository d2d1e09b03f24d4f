package infra

// pdf.go: receipt PDF generation using go-pdf/fpdf.
// Thermal-receipt sized page with:
//   - Clinic name header
//   - Sale id and timestamp
//   - Line table (medicine, batch, quantity, subtotal)
//   - VAT-exclusive amount, VAT and senior/PWD discount when applicable
//   - Bold total, cash and change
//
// The output file is saved to storagePath/receipt_{sale_id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"clinicrx/internal/model"

	"github.com/go-pdf/fpdf"
)

// GenerateReceiptPDF renders the receipt of a committed sale. storagePath is
// created if needed. Returns the path of the written file.
func GenerateReceiptPDF(sale *model.Sale, clinicName, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, fmt.Sprintf("receipt_%s.pdf", sale.ID))

	height := 90.0 + 5*float64(len(sale.Lines))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 80, Ht: height},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, tr(clinicName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Official Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, "Sale "+sale.ID.String(), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, sale.CreatedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(1)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Lines ────────────────────────────────────────────────────────────────
	col1 := contentW * 0.46
	col2 := contentW * 0.20
	col3 := contentW * 0.10
	col4 := contentW * 0.24

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Medicine", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Batch", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 5, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col4, 5, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, l := range sale.Lines {
		name := l.MedicineID.String()[:8]
		if l.Medicine != nil {
			name = l.Medicine.Name
		}
		if len(name) > 24 {
			name = name[:23] + "."
		}
		batch := ""
		if l.Batch != nil {
			batch = l.Batch.BatchNumber
		}
		pdf.CellFormat(col1, 5, tr(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, tr(batch), "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, fmt.Sprintf("%d", l.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col4, 5, l.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	// ── Totals ───────────────────────────────────────────────────────────────
	label := col1 + col2 + col3
	row := func(name, amount string) {
		pdf.CellFormat(label, 4, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(col4, 4, amount, "", 1, "R", false, 0, "")
	}
	row("Subtotal", sale.Subtotal.StringFixed(2))
	if sale.DiscountType != "none" {
		row("VAT-exempt sales", sale.VATExclusiveSubtotal.StringFixed(2))
		row("Less VAT 12%", "-"+sale.VATAmount.StringFixed(2))
		row(fmt.Sprintf("Less %s discount 20%%", sale.DiscountType), "-"+sale.DiscountAmount.StringFixed(2))
		if sale.DiscountName != nil {
			row("Beneficiary: "+*sale.DiscountName, "")
		}
	} else {
		row("VAT (included)", sale.Tax.StringFixed(2))
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(label, 6, "TOTAL", "", 0, "L", false, 0, "")
	pdf.CellFormat(col4, 6, sale.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	row("Cash", sale.Cash.StringFixed(2))
	row("Change", sale.Change.StringFixed(2))

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "Thank you. Keep this receipt.", "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}
