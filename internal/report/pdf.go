package report

import (
	"context"
	"encoding/base64"
	"os"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/contentforge/kwuniverse/internal/expansion"
)

// PDFRenderer prints the HTML report through headless Chromium.
type PDFRenderer struct {
	chromePath string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{chromePath: detectChromePath()}
}

func (r *PDFRenderer) Render(ctx context.Context, res *expansion.ExpansionResult) ([]byte, error) {
	htmlDoc, err := buildPrintHTML(res)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func buildPrintHTML(res *expansion.ExpansionResult) (string, error) {
	contentHTML, err := RenderHTML(res)
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Keyword Universe Report</title>" +
		"<style>" + printCSS + "</style></head><body>" +
		"<div class='report'>" + contentHTML + "</div>" +
		"</body></html>", nil
}

const printCSS = `
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:-apple-system,'Segoe UI',Roboto,sans-serif;color:#1c1917;background:#fff;margin:0;padding:0.6rem;}
.report{max-width:960px;margin:0 auto;font-size:0.85rem;line-height:1.45;}
.report h1{font-size:1.5rem;border-bottom:2px solid #1d4ed8;padding-bottom:0.3rem;}
.report h2{font-size:1.1rem;margin-top:1.4rem;break-after:avoid;}
.report table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.78rem;}
.report th,.report td{border:1px solid #a8a29e;padding:0.3rem 0.4rem;text-align:left;vertical-align:top;}
.report thead th{background:#f1f5f9;font-weight:700;}
.report blockquote{border-left:3px solid #d97706;background:#fffbeb;margin:0;padding:0.4rem 0.7rem;color:#78350f;}
@media print{ @page{size:A4;margin:12mm;} body{padding:0;} .report{max-width:none;} }
`

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
