package export

import (
	"fmt"
	"io"
	"time"

	"github.com/calin/convohist/internal/domain"
	"github.com/calin/convohist/internal/logger"
	"github.com/jaytaylor/html2text"
	"github.com/jung-kurt/gofpdf"
)

// Layout constants in millimeters (A4 portrait).
const (
	pageMargin   = 15.0
	bottomMargin = 20.0

	// Conservative minimum height a message block needs before it starts:
	// header line plus the first body line. Blocks never split at the
	// header/body seam across a page boundary.
	minBlockHeight = 26.0
)

// RendererConfig holds truncation ceilings for the renderer.
type RendererConfig struct {
	EmailBodyLimit  int
	TranscriptLimit int
}

// Renderer turns contact metadata and an ordered message sequence into a
// paginated PDF document. Rendering performs no network calls.
type Renderer struct {
	emailBodyLimit  int
	transcriptLimit int
	// compress toggles PDF stream compression. Always on in production;
	// tests turn it off to scan the output for literal text.
	compress bool
	logger   *logger.Logger
}

// NewRenderer creates a new document renderer.
// Parameters:
//   - cfg: truncation settings; zero values fall back to defaults.
//   - log: logger instance.
// Returns:
//   - *Renderer: initialized renderer.
func NewRenderer(cfg *RendererConfig, log *logger.Logger) *Renderer {
	emailLimit := cfg.EmailBodyLimit
	if emailLimit <= 0 {
		emailLimit = 3000
	}
	transcriptLimit := cfg.TranscriptLimit
	if transcriptLimit <= 0 {
		transcriptLimit = 2000
	}
	return &Renderer{
		emailBodyLimit:  emailLimit,
		transcriptLimit: transcriptLimit,
		compress:        true,
		logger:          log,
	}
}

// footerText builds one body-page footer line. Numbering is body-relative:
// the first body page is page 1, the cover is never counted.
func footerText(bodyPage, totalBodyPages int, exportedAt time.Time) string {
	return fmt.Sprintf("Page %d of %d  -  Exported %s", bodyPage, totalBodyPages, exportedAt.Format("Jan 2, 2006"))
}

// Render writes the export document to w. The messages are expected in
// ascending timestamp order. Footers need the final body page count, so
// the document is rendered twice: a counting pass to io.Discard, then the
// real pass with page totals known.
func (r *Renderer) Render(w io.Writer, contact domain.Contact, messages []domain.Message, exportedAt time.Time) error {
	bodyPages, err := r.renderDocument(io.Discard, contact, messages, exportedAt, 0)
	if err != nil {
		return fmt.Errorf("failed to lay out document: %w", err)
	}

	if _, err := r.renderDocument(w, contact, messages, exportedAt, bodyPages); err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	return nil
}

// renderDocument performs one full layout pass and returns the number of
// body pages (the cover is not counted). When totalBodyPages is zero the
// footers are suppressed; footer text lives in a fixed bottom region, so
// suppressing it does not change content layout between passes.
func (r *Renderer) renderDocument(w io.Writer, contact domain.Contact, messages []domain.Message, exportedAt time.Time, totalBodyPages int) (int, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.SetCompression(r.compress)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		if pdf.PageNo() == 1 || totalBodyPages == 0 {
			return
		}
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(130, 130, 130)
		pdf.CellFormat(0, 10,
			footerText(pdf.PageNo()-1, totalBodyPages, exportedAt),
			"", 0, "C", false, 0, "")
	})

	r.renderCover(pdf, tr, contact, messages, exportedAt)

	if len(messages) > 0 {
		pdf.AddPage()
		lastBlockPage := pdf.PageNo()
		first := true

		for i := range messages {
			_, pageHeight := pdf.GetPageSize()
			if pdf.GetY()+minBlockHeight > pageHeight-bottomMargin {
				pdf.AddPage()
			}

			// Cosmetic separator between consecutive blocks on one page;
			// omitted for the first block on a page
			if !first && pdf.PageNo() == lastBlockPage {
				pdf.Ln(2)
				pdf.SetDrawColor(220, 220, 220)
				y := pdf.GetY()
				pdf.Line(pageMargin, y, 210-pageMargin, y)
				pdf.Ln(3)
			}

			r.renderMessage(pdf, tr, &messages[i])
			lastBlockPage = pdf.PageNo()
			first = false
		}
	}

	if err := pdf.Output(w); err != nil {
		return 0, err
	}
	return pdf.PageCount() - 1, nil
}

// CoverStats summarizes the sequence for the cover page.
type CoverStats struct {
	TotalMessages int
	DateRange     string
	Channels      []string
}

// BuildCoverStats computes cover-page statistics for an ordered sequence.
func BuildCoverStats(messages []domain.Message) CoverStats {
	stats := CoverStats{
		TotalMessages: len(messages),
		DateRange:     "N/A",
		Channels:      DistinctChannels(messages),
	}
	if len(messages) == 0 {
		return stats
	}

	start := messages[0].DateAdded.Format("Jan 2, 2006")
	end := messages[len(messages)-1].DateAdded.Format("Jan 2, 2006")
	if start == end {
		stats.DateRange = start
	} else {
		stats.DateRange = start + " - " + end
	}
	return stats
}

func (r *Renderer) renderCover(pdf *gofpdf.Fpdf, tr func(string) string, contact domain.Contact, messages []domain.Message, exportedAt time.Time) {
	pdf.AddPage()

	pdf.SetY(60)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 12, "Conversation History", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, tr(contact.Name), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(100, 100, 100)
	if contact.Email != "" {
		pdf.CellFormat(0, 6, tr(contact.Email), "", 1, "C", false, 0, "")
	}
	if contact.Phone != "" {
		pdf.CellFormat(0, 6, tr(contact.Phone), "", 1, "C", false, 0, "")
	}

	stats := BuildCoverStats(messages)
	channels := "None"
	if len(stats.Channels) > 0 {
		channels = ""
		for i, ch := range stats.Channels {
			if i > 0 {
				channels += ", "
			}
			channels += ch
		}
	}

	pdf.Ln(16)
	rows := [][2]string{
		{"Total Messages", fmt.Sprintf("%d", stats.TotalMessages)},
		{"Date Range", stats.DateRange},
		{"Channels", channels},
		{"Exported", exportedAt.Format("Jan 2, 2006 3:04 PM")},
	}
	for _, row := range rows {
		pdf.SetX(50)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(45, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(30, 30, 30)
		pdf.CellFormat(0, 7, tr(row[1]), "", 1, "L", false, 0, "")
	}
}

func (r *Renderer) renderMessage(pdf *gofpdf.Fpdf, tr func(string) string, m *domain.Message) {
	tag := "INBOUND"
	fillR, fillG, fillB := 46, 125, 50
	if m.Direction == domain.DirectionOutbound {
		tag = "OUTBOUND"
		fillR, fillG, fillB = 41, 98, 255
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(fillR, fillG, fillB)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(24, 6, tag, "", 0, "C", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	header := fmt.Sprintf("  %s  %s  |  %s",
		m.DateAdded.Format("Jan 2, 2006"),
		m.DateAdded.Format("3:04 PM"),
		ChannelLabel(m.Type))
	pdf.CellFormat(0, 6, tr(header), "", 1, "L", false, 0, "")
	pdf.Ln(1)

	pdf.SetTextColor(40, 40, 40)
	switch m.Type {
	case domain.TypeEmail:
		r.renderEmailBody(pdf, tr, m)
	case domain.TypeCall:
		r.renderCallBody(pdf, tr, m)
	default:
		if m.Body != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(m.Body), "", "L", false)
		}
	}

	for i, a := range m.Attachments {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 5, tr("Attachment: "+AttachmentName(a, i)), "", 1, "L", false, 0, "")
	}

	pdf.Ln(2)
}

func (r *Renderer) renderEmailBody(pdf *gofpdf.Fpdf, tr func(string) string, m *domain.Message) {
	subject := m.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.MultiCell(0, 5, tr(subject), "", "L", false)

	if m.From != "" || m.To != "" {
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("From: %s   To: %s", m.From, m.To)), "", 1, "L", false, 0, "")
		pdf.SetTextColor(40, 40, 40)
	}

	if m.Body != "" {
		text, err := html2text.FromString(m.Body, html2text.Options{TextOnly: true})
		if err != nil {
			r.logger.WithError(err).Warn("Failed to convert email HTML, using raw body")
			text = m.Body
		}
		text = Truncate(text, r.emailBodyLimit, " [truncated]")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(text), "", "L", false)
	}
}

func (r *Renderer) renderCallBody(pdf *gofpdf.Fpdf, tr func(string) string, m *domain.Message) {
	status := m.CallStatus
	if status == "" {
		status = "unknown"
	}
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5,
		tr(fmt.Sprintf("Duration: %s   Status: %s", FormatCallDuration(m.CallDuration), status)),
		"", 1, "L", false, 0, "")

	if m.Transcription != "" {
		quoted := "\"" + Truncate(m.Transcription, r.transcriptLimit, "...") + "\""
		pdf.SetFont("Helvetica", "I", 10)
		pdf.SetTextColor(70, 70, 70)
		pdf.MultiCell(0, 5, tr(quoted), "", "L", false)
		pdf.SetTextColor(40, 40, 40)
	}
}

// FormatCallDuration renders a call duration in seconds as "Xm Ys", "Ys"
// under one minute, and "0s" for zero or negative values.
func FormatCallDuration(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// Truncate cuts s to at most limit runes, appending marker when anything
// was cut. A non-positive limit disables truncation.
func Truncate(s string, limit int, marker string) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + marker
}
