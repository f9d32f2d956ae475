package content

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const PDFContentType = "application/pdf"

// PDFRenderer turns a report into PDF bytes
type PDFRenderer interface {
	Render(ctx context.Context, data *ReportData) ([]byte, error)
}

// Document is a rendered PDF with its checksum
type Document struct {
	FileName string
	Data     []byte
	SHA256   string
}

// PDFFileName returns the file name of the daily report
func PDFFileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_daily_report_%s.pdf", reportDate)
}

// GeneratePDF renders the report and hashes the result
func GeneratePDF(ctx context.Context, renderer PDFRenderer, data *ReportData) (*Document, error) {
	buf, err := renderer.Render(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("render pdf: empty document")
	}
	return &Document{
		FileName: PDFFileName(data.ReportDate),
		Data:     buf,
		SHA256:   Checksum(buf),
	}, nil
}

// ChromeRenderer prints the HTML report with headless Chromium
type ChromeRenderer struct {
	// ExecPath overrides the Chromium binary lookup
	ExecPath string
	Timeout  time.Duration
}

// NewChromeRenderer creates a renderer with a 30s default timeout
func NewChromeRenderer(execPath string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{ExecPath: execPath, Timeout: timeout}
}

// Render implements PDFRenderer
func (r *ChromeRenderer) Render(ctx context.Context, data *ReportData) ([]byte, error) {
	html, err := RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	runCtx, cancelRun := chromedp.NewContext(allocCtx)
	defer cancelRun()
	runCtx, cancelTimeout := context.WithTimeout(runCtx, r.Timeout)
	defer cancelTimeout()

	var pdf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("data:text/html,"+url.PathEscape(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, perr := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if perr != nil {
				return perr
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run failed: %w", err)
	}
	return pdf, nil
}
