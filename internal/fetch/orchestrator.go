package fetch

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/library"
	"github.com/paperdock/paperdock/internal/metrics"
)

// StaticFetcher is the static HTTP fetch dependency of the orchestrator.
type StaticFetcher interface {
	Wait(ctx context.Context) error
	Get(ctx context.Context, rawURL string, creds Credentials) (Page, error)
}

// RenderFetcher is the headless rendering fallback dependency.
type RenderFetcher interface {
	Fetch(ctx context.Context, rawURL string, creds Credentials) Outcome
}

// AttemptPlanner produces the ordered access attempts for a URL.
type AttemptPlanner interface {
	Plan(rawURL string) []Attempt
}

// PDFFetcher is the download-and-extract path for resources that turn out
// to be PDFs despite an HTML-looking URL.
type PDFFetcher interface {
	LooksLikePDF(ctx context.Context, rawURL string) bool
	Fetch(ctx context.Context, rawURL string, creds Credentials) Outcome
}

// Orchestrator composes client, extractor, planner, and renderer into one
// "fetch article text for this URL" operation.
type Orchestrator struct {
	client       StaticFetcher
	extractor    *Extractor
	renderer     RenderFetcher // nil disables the rendering fallback
	pdf          PDFFetcher    // nil disables the PDF fallback
	planner      AttemptPlanner
	maxTextRunes int
	logger       *zap.Logger
}

// NewOrchestrator wires the fetch pipeline together.
func NewOrchestrator(
	client StaticFetcher,
	extractor *Extractor,
	renderer RenderFetcher,
	pdfFetcher PDFFetcher,
	planner AttemptPlanner,
	maxTextRunes int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		client:       client,
		extractor:    extractor,
		renderer:     renderer,
		pdf:          pdfFetcher,
		planner:      planner,
		maxTextRunes: maxTextRunes,
		logger:       logger,
	}
}

// Fetch runs the full ladder for one URL. Expected failures come back as
// outcomes, never as errors; the worst case is a failure outcome with the
// most specific reason seen across all attempts.
func (o *Orchestrator) Fetch(ctx context.Context, rawURL string, creds Credentials) Outcome {
	if IsPDFURL(rawURL) {
		// The HTML ladder does not attempt PDF resources; callers route
		// those through the download-and-extract path instead.
		return Failure(ClassSkippedPDF, "skipped PDF URL")
	}

	if err := o.client.Wait(ctx); err != nil {
		return Failuref(ClassTimeout, "canceled before fetch: %v", err)
	}

	start := time.Now()
	failure := Outcome{}
	for _, attempt := range o.planner.Plan(rawURL) {
		metrics.ObserveFetchAttempt(attempt.Method)
		outcome := o.tryAttempt(ctx, attempt, creds)
		if outcome.OK {
			outcome.Content = library.Truncate(outcome.Content, o.maxTextRunes)
			o.logger.Info("fetch succeeded",
				zap.String("url", rawURL),
				zap.String("method", attempt.Method),
				zap.String("reason", outcome.Reason),
				zap.Int("chars", len([]rune(outcome.Content))),
			)
			metrics.ObserveFetchOutcome("success")
			metrics.ObserveFetchDuration(attempt.Method, time.Since(start))
			return outcome
		}
		o.logger.Debug("fetch attempt failed",
			zap.String("url", attempt.URL),
			zap.String("method", attempt.Method),
			zap.String("reason", outcome.Reason),
		)
		failure = moreSpecific(failure, outcome)
		if ctx.Err() != nil {
			break
		}
	}
	if failure.Reason == "" {
		failure = Failure(ClassNoContent, "no content extracted")
	}
	metrics.ObserveFetchOutcome(string(failure.Class))
	return failure
}

// tryAttempt fetches one transformed URL, extracts statically, and
// escalates to the renderer only when static extraction under-qualifies.
func (o *Orchestrator) tryAttempt(ctx context.Context, attempt Attempt, creds Credentials) Outcome {
	page, err := o.client.Get(ctx, attempt.URL, creds)
	if err != nil {
		return classifyError(err)
	}
	if statusOutcome := classifyStatus(page.StatusCode); !statusOutcome.OK {
		// Auth and bot walls often hide behind 403; rendering with a real
		// browser identity is still worth one try for those pages.
		if o.renderer != nil && renderWorthStatus(page.StatusCode) {
			if rendered := o.renderer.Fetch(ctx, attempt.URL, creds); rendered.OK {
				return rendered
			}
		}
		return statusOutcome
	}

	static := o.extractor.Extract(page.Body, page.FinalURL)
	if static.OK {
		return static
	}
	switch static.Class {
	case ClassTooShort, ClassNoContent:
		// An HTML-looking URL can still serve a PDF; a cheap HEAD probe
		// settles it before spending a browser render.
		if o.pdf != nil && o.pdf.LooksLikePDF(ctx, attempt.URL) {
			extracted := o.pdf.Fetch(ctx, attempt.URL, creds)
			if extracted.OK {
				return extracted
			}
			return moreSpecific(static, extracted)
		}
		if o.renderer == nil {
			return static
		}
		rendered := o.renderer.Fetch(ctx, attempt.URL, creds)
		if rendered.OK {
			return rendered
		}
		return moreSpecific(static, rendered)
	default:
		return static
	}
}

// IsPDFURL reports whether the URL unambiguously denotes a PDF resource.
func IsPDFURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	if strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf") {
		return true
	}
	query := parsed.Query()
	for _, key := range []string{"format", "type"} {
		if strings.EqualFold(query.Get(key), "pdf") {
			return true
		}
	}
	return false
}

// classifyStatus maps an HTTP status class onto the failure taxonomy.
func classifyStatus(status int) Outcome {
	switch {
	case status == 0:
		return Failure(ClassConnection, "connection error: no response")
	case status == 401 || status == 403:
		return Failuref(ClassAuthRequired, "HTTP %d: authentication required", status)
	case status == 404 || status == 410:
		return Failuref(ClassNotFound, "HTTP %d: not found", status)
	case status == 429:
		return Failuref(ClassRateLimited, "HTTP %d: rate limited", status)
	case status >= 500:
		return Failuref(ClassTransientServer, "HTTP %d: server error (retries exhausted)", status)
	case status >= 400:
		return Failuref(ClassConnection, "HTTP %d: request rejected", status)
	default:
		return Outcome{OK: true}
	}
}

// classifyError maps transport errors onto the failure taxonomy.
func classifyError(err error) Outcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Failuref(ClassTimeout, "timeout: %v", err)
	case errors.Is(err, context.Canceled):
		return Failuref(ClassTimeout, "canceled: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failuref(ClassTimeout, "timeout: %v", err)
	}
	return Failuref(ClassConnection, "connection error: %v", err)
}

// renderWorthStatus lists status codes where a rendered retry can still
// pay off (bot walls and soft paywalls).
func renderWorthStatus(status int) bool {
	return status == 401 || status == 403 || status == 429
}
