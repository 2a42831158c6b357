// Package export renders itineraries for people: a printable PDF used when
// the remote PDF endpoint is unavailable, and Markdown for the terminal.
package export

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/five82/tripsync/internal/itinerary"
)

const footerText = "North Bengal Travel Guide"

// Options tweaks rendering. The zero value is usable.
type Options struct {
	// Now stamps the footer; defaults to time.Now.
	Now func() time.Time
}

// DateRange formats the trip dates as "Jan 02, 2006 - Jan 04, 2006". It
// returns "" when the start date cannot be parsed.
func DateRange(rec itinerary.Record) string {
	start, ok := rec.Start()
	if !ok {
		return ""
	}
	days := rec.Duration
	if days < 1 {
		days = 1
	}
	end := start.AddDate(0, 0, days-1)
	return start.Format("Jan 02, 2006") + " - " + end.Format("Jan 02, 2006")
}

var spaces = regexp.MustCompile(`\s+`)

// FileName returns the suggested PDF file name for rec.
func FileName(rec itinerary.Record) string {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = rec.ID
	}
	title = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, title)
	return spaces.ReplaceAllString(title, "_") + "_Itinerary.pdf"
}

// FormatAmount renders a cost with thousands separators.
func FormatAmount(v float64) string {
	whole := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// PDF renders rec as an A4 document.
func PDF(rec itinerary.Record, opts Options) ([]byte, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(rec.Title), false)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")
	generated := now().Format("Jan 02, 2006")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Generated on %s - %s", generated, footerText)), "", 0, "C", false, 0, "")
		pdf.SetX(-40)
		pdf.CellFormat(30, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 10, tr(rec.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(0, 0, 0)
	line := func(s string) { pdf.CellFormat(0, 7, tr(s), "", 1, "L", false, 0, "") }
	line("Destination: " + rec.Destination)
	if dates := DateRange(rec); dates != "" {
		line("Dates: " + dates)
	}
	line(fmt.Sprintf("Duration: %d days", rec.Duration))
	line("Total Budget: INR " + FormatAmount(rec.TotalCost))

	if desc := strings.TrimSpace(rec.Description); desc != "" {
		pdf.Ln(3)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr("Description: "+desc), "", "L", false)
	}
	if len(rec.Tags) > 0 {
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr("Tags: "+strings.Join(rec.Tags, ", ")), "", "L", false)
	}

	pdf.Ln(3)
	pdf.SetDrawColor(0, 0, 128)
	pdf.SetLineWidth(0.5)
	y := pdf.GetY()
	pdf.Line(20, y, 190, y)
	pdf.Ln(5)

	if len(rec.Days) > 0 {
		pdf.SetFont("Arial", "B", 14)
		pdf.SetTextColor(0, 0, 128)
		pdf.CellFormat(0, 8, "Daily Itinerary", "", 1, "C", false, 0, "")
		pdf.Ln(2)
	}

	for i, day := range rec.Days {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetTextColor(255, 255, 255)
		pdf.SetFillColor(0, 0, 128)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Day %d: %s", i+1, day.Date)), "", 1, "L", true, 0, "")
		pdf.Ln(2)

		pdf.SetTextColor(0, 0, 0)
		for _, a := range day.Activities {
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s - %s", a.Time, a.Title)), "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			if a.Description != "" {
				pdf.MultiCell(0, 5, tr(a.Description), "", "L", false)
			}
			if a.Location != "" {
				pdf.CellFormat(0, 5, tr("Location: "+a.Location), "", 1, "L", false, 0, "")
			}
			if a.Cost != nil && *a.Cost > 0 {
				pdf.CellFormat(0, 5, "Cost: INR "+FormatAmount(*a.Cost), "", 1, "L", false, 0, "")
			}
			if a.Notes != "" {
				pdf.MultiCell(0, 5, tr("Notes: "+a.Notes), "", "L", false)
			}
			pdf.Ln(3)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// Markdown renders rec as a Markdown document.
func Markdown(rec itinerary.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	if rec.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", rec.Description)
	}
	fmt.Fprintf(&b, "- **Destination:** %s\n", rec.Destination)
	if dates := DateRange(rec); dates != "" {
		fmt.Fprintf(&b, "- **Dates:** %s\n", dates)
	}
	fmt.Fprintf(&b, "- **Duration:** %d days\n", rec.Duration)
	fmt.Fprintf(&b, "- **Total budget:** ₹%s\n", FormatAmount(rec.TotalCost))
	if len(rec.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.SavedAt != "" {
		fmt.Fprintf(&b, "- **Saved:** %s\n", rec.SavedAt)
	}
	if rec.DurationMismatch() {
		fmt.Fprintf(&b, "\n> Duration says %d days but the plan has %d.\n", rec.Duration, len(rec.Days))
	}

	for i, day := range rec.Days {
		fmt.Fprintf(&b, "\n## Day %d: %s\n\n", i+1, day.Date)
		if len(day.Activities) == 0 {
			b.WriteString("_No activities planned._\n")
			continue
		}
		for _, a := range day.Activities {
			fmt.Fprintf(&b, "- %s **%s** %s", a.Category.Icon(), a.Time, a.Title)
			if a.Location != "" {
				fmt.Fprintf(&b, " (%s)", a.Location)
			}
			if a.Cost != nil && *a.Cost > 0 {
				fmt.Fprintf(&b, " · ₹%s", FormatAmount(*a.Cost))
			}
			b.WriteString("\n")
			if a.Description != "" {
				fmt.Fprintf(&b, "  %s\n", a.Description)
			}
			if a.Notes != "" {
				fmt.Fprintf(&b, "  _Note: %s_\n", a.Notes)
			}
		}
	}
	return b.String()
}
