package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PDFExtractor pulls concatenated page text out of a downloaded PDF file.
type PDFExtractor struct {
	minRunes int
	http     *http.Client
	logger   *zap.Logger
}

// NewPDFExtractor builds a PDFExtractor. minRunes is the threshold below
// which a document is reported as having no extractable text layer.
func NewPDFExtractor(minRunes int, timeout time.Duration, logger *zap.Logger) *PDFExtractor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PDFExtractor{
		minRunes: minRunes,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// LooksLikePDF probes the URL with a HEAD request and reports whether the
// server advertises a PDF content type.
func (e *PDFExtractor) LooksLikePDF(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "application/pdf")
}

// Fetch downloads the resource to a temporary file and extracts its text.
func (e *PDFExtractor) Fetch(ctx context.Context, rawURL string, creds Credentials) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Failuref(ClassConnection, "bad PDF URL: %v", err)
	}
	if cookie := creds.CookieHeader(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if creds.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Bearer)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if statusOutcome := classifyStatus(resp.StatusCode); !statusOutcome.OK {
		return statusOutcome
	}

	tmp, err := os.CreateTemp("", "paperdock-*.pdf")
	if err != nil {
		return Failuref(ClassConnection, "cannot stage PDF download: %v", err)
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return classifyError(copyErr)
	}
	if closeErr != nil {
		return Failuref(ClassConnection, "cannot stage PDF download: %v", closeErr)
	}

	outcome := e.ExtractFile(tmp.Name())
	if outcome.OK {
		outcome.Reason = "downloaded PDF, " + outcome.Reason
	}
	return outcome
}

// ExtractFile opens the file and extracts text page by page. A single
// page's failure does not abort the document.
func (e *PDFExtractor) ExtractFile(path string) Outcome {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Failuref(ClassParseError, "corrupt or unreadable PDF: %v", err)
	}
	defer file.Close()

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return Failure(ClassNoContent, "PDF has no pages")
	}

	var texts []string
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, pageErr := e.extractPage(reader, pageNum)
		if pageErr != nil {
			e.logger.Debug("pdf page extraction failed",
				zap.String("path", path),
				zap.Int("page", pageNum),
				zap.Error(pageErr),
			)
			continue
		}
		if text != "" {
			texts = append(texts, text)
		}
	}

	joined := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if len([]rune(joined)) <= e.minRunes {
		return Failuref(ClassNoContent,
			"PDF yielded %d chars of text; likely scanned images with no text layer",
			len([]rune(joined)),
		)
	}
	return Success(joined, fmt.Sprintf("extracted %d PDF pages", pageCount))
}

// extractPage isolates per-page panics from the underlying PDF library so
// one mangled page cannot take down the whole document.
func (e *PDFExtractor) extractPage(reader *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", pageNum, rec)
		}
	}()
	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", pageNum, err)
	}
	return strings.TrimSpace(text), nil
}
