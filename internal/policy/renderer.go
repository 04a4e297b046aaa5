// Package policy renders issued insurance policies as PDF documents.
package policy

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/internal/model"
)

const (
	comp = logger.CompPolicy

	font       = "Helvetica"
	lineHeight = 6.0
)

// Renderer draws policies on A4 pages. The zero value is ready to use.
type Renderer struct {
	// Issuer is printed in the footer and document metadata.
	Issuer string
}

// NewRenderer returns a renderer that signs documents as issuer.
func NewRenderer(issuer string) *Renderer {
	return &Renderer{Issuer: issuer}
}

// Render returns the PDF bytes for rec.
func (r *Renderer) Render(ctx context.Context, rec model.PolicyRecord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.PolicyNumber) == "" {
		return nil, fmt.Errorf("policy number is empty")
	}
	start := time.Now()

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	issuer := r.issuer()

	title := "Insurance Policy #" + rec.PolicyNumber
	pdf.SetTitle(title, true)
	pdf.SetCreator(issuer, true)
	pdf.SetCreationDate(rec.IssueDate)
	pdf.SetMargins(20, 20, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(font, "I", 8)
		pdf.CellFormat(0, 10, tr("Issued by "+issuer), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(font, "B", 18)
	pdf.CellFormat(0, 12, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	section(pdf, tr, "Policy Details", strings.Join([]string{
		"Policy Number: " + rec.PolicyNumber,
		"Issue Date: " + model.FormatDate(rec.IssueDate),
		"Valid Until: " + model.FormatDate(rec.ValidUntil),
		fmt.Sprintf("Price: %d %s", rec.Price, rec.Currency),
	}, "\n"))
	section(pdf, tr, "Passport Information", rec.PassportSummary)
	section(pdf, tr, "Vehicle Information", rec.VehicleSummary)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render policy %s: %w", rec.PolicyNumber, err)
	}
	logger.Debug(ctx, comp, "policy.rendered",
		slog.String("policy", rec.PolicyNumber),
		slog.Int("bytes", buf.Len()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return buf.Bytes(), nil
}

func (r *Renderer) issuer() string {
	if s := strings.TrimSpace(r.Issuer); s != "" {
		return s
	}
	return "InsureBot"
}

func section(pdf *fpdf.Fpdf, tr func(string) string, heading, body string) {
	pdf.SetFont(font, "B", 14)
	pdf.CellFormat(0, 8, tr(heading), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont(font, "", 11)
	if strings.TrimSpace(body) == "" {
		body = "Not provided"
	}
	pdf.MultiCell(0, lineHeight, tr(body), "", "L", false)
	pdf.Ln(6)
}
