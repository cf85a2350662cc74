// Package importer runs batch article imports: it walks candidate links in
// input order, routes each through the fetch pipeline, and appends one
// library record per attempted link, failed attempts included. Failed
// imports stay visible and retryable instead of silently vanishing.
package importer

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/fetch"
	"github.com/paperdock/paperdock/internal/library"
	"github.com/paperdock/paperdock/internal/metrics"
)

// Link is one candidate article to import.
type Link struct {
	Title    string
	URL      string
	Authors  []string
	Abstract string
}

// Fetcher is the orchestrated fetch operation the importer drives.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, creds fetch.Credentials) fetch.Outcome
}

// Store is the slice of the library the importer needs: appending new
// records, updating scanned ones, and flushing partial progress mid-batch.
type Store interface {
	Append(records []library.Record) error
	Update(record library.Record) error
	NewRecordID() (string, error)
	Now() time.Time
	MaxTextRunes() int
}

// Config carries the importer knobs.
type Config struct {
	// FlushEvery persists partial progress after this many appended
	// records, so a long batch interrupted mid-run keeps its completed work.
	FlushEvery int
	// MinContentRunes is the qualification threshold for scanned text.
	MinContentRunes int
}

// Importer executes batches. One Importer is safe for sequential reuse;
// batches never run concurrently against the same store.
type Importer struct {
	fetcher   Fetcher
	store     Store
	blocklist *fetch.Blocklist
	creds     fetch.Credentials
	cfg       Config
	logger    *zap.Logger
}

// New builds an Importer.
func New(
	fetcher Fetcher,
	store Store,
	blocklist *fetch.Blocklist,
	creds fetch.Credentials,
	cfg Config,
	logger *zap.Logger,
) *Importer {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 10
	}
	if cfg.MinContentRunes <= 0 {
		cfg.MinContentRunes = 200
	}
	return &Importer{
		fetcher:   fetcher,
		store:     store,
		blocklist: blocklist,
		creds:     creds,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run imports links in input order. It returns the records appended during
// the batch, a per-item log, and the count of successful imports. seen maps
// already-imported URLs; links resolving into it are skipped, as is a URL's
// second occurrence within the same batch. A panic on one item is recovered
// and logged so the rest of the batch still runs.
func (im *Importer) Run(ctx context.Context, links []Link, seen map[string]struct{}) ([]library.Record, []string, int) {
	if seen == nil {
		seen = map[string]struct{}{}
	}
	var (
		records  []library.Record
		log      []string
		imported int
		pending  int
	)
	for i, link := range links {
		if ctx.Err() != nil {
			log = append(log, fmt.Sprintf("%s: batch canceled: %v", link.label(i), ctx.Err()))
			break
		}
		record, entry := im.runOne(ctx, i, link, seen)
		log = append(log, entry)
		if record == nil {
			continue
		}
		records = append(records, *record)
		if record.ImportStatus == library.StatusSuccess {
			imported++
		}
		metrics.ObserveImportItem(string(record.ImportStatus))

		pending++
		if pending >= im.cfg.FlushEvery {
			if err := im.store.Append(records[len(records)-pending:]); err != nil {
				im.logger.Warn("partial flush failed", zap.Error(err))
			} else {
				pending = 0
			}
		}
	}
	if pending > 0 {
		if err := im.store.Append(records[len(records)-pending:]); err != nil {
			im.logger.Warn("final flush failed", zap.Error(err))
			log = append(log, fmt.Sprintf("warning: could not persist %d records: %v", pending, err))
		}
	}
	log = append(log, im.failureSummary(records)...)
	return records, log, imported
}

// runOne processes a single link, isolating panics so one poisoned item
// cannot abort the batch.
func (im *Importer) runOne(ctx context.Context, i int, link Link, seen map[string]struct{}) (record *library.Record, entry string) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := truncateMessage(fmt.Sprintf("%v", rec), 200)
			im.logger.Error("import item panicked",
				zap.String("url", link.URL),
				zap.String("panic", msg),
			)
			failed := library.NewFailed(
				im.newID(), link.Title, link.URL,
				"unexpected error: "+msg, im.store.Now(),
			)
			record = &failed
			entry = fmt.Sprintf("%s: unexpected error: %s", link.label(i), msg)
		}
	}()

	if strings.TrimSpace(link.URL) == "" {
		metrics.ObserveImportItem("skipped")
		return nil, fmt.Sprintf("%s: skipped, no URL provided", link.label(i))
	}
	if _, dup := seen[link.URL]; dup {
		skipped := fetch.Failuref(fetch.ClassSkippedDuplicate, "skipped duplicate URL %s", link.URL)
		metrics.ObserveImportItem(string(skipped.Class))
		return nil, fmt.Sprintf("%s: %s", link.label(i), skipped.Reason)
	}
	seen[link.URL] = struct{}{}

	if fetch.IsPDFURL(link.URL) {
		skipped := fetch.Failuref(fetch.ClassSkippedPDF, "skipped PDF URL %s", link.URL)
		metrics.ObserveImportItem(string(skipped.Class))
		return nil, fmt.Sprintf("%s: %s", link.label(i), skipped.Reason)
	}

	outcome := im.fetcher.Fetch(ctx, link.URL, im.creds)
	if outcome.OK {
		rec := library.NewImported(
			im.newID(), link.Title, link.URL, outcome.Content,
			link.Authors, link.Abstract, im.store.Now(), im.store.MaxTextRunes(),
		)
		return &rec, fmt.Sprintf("%s: imported %d chars (%s)",
			link.label(i), len([]rune(rec.Text)), outcome.Reason)
	}
	rec := library.NewFailed(im.newID(), link.Title, link.URL, outcome.Reason, im.store.Now())
	return &rec, fmt.Sprintf("%s: failed, %s", link.label(i), outcome.Reason)
}

// Scan walks existing records that have a URL but no text and tries to
// backfill them through the fetch pipeline, updating the store in place.
// It returns a per-record log and the number of records updated.
func (im *Importer) Scan(ctx context.Context, records []library.Record) ([]string, int) {
	var (
		log     []string
		updated int
	)
	for _, rec := range records {
		if ctx.Err() != nil {
			log = append(log, fmt.Sprintf("%s: scan canceled: %v", rec.Title, ctx.Err()))
			break
		}
		if strings.TrimSpace(rec.Text) != "" {
			log = append(log, fmt.Sprintf("%s: already has text, skipping", rec.Title))
			continue
		}
		if strings.TrimSpace(rec.URL) == "" {
			log = append(log, fmt.Sprintf("%s: no URL provided", rec.Title))
			continue
		}
		outcome := im.fetcher.Fetch(ctx, rec.URL, im.creds)
		if !outcome.OK {
			log = append(log, fmt.Sprintf("%s: failed to extract, %s", rec.Title, outcome.Reason))
			continue
		}
		if len([]rune(outcome.Content)) <= im.cfg.MinContentRunes {
			log = append(log, fmt.Sprintf("%s: extracted only %d chars (min %d)",
				rec.Title, len([]rune(outcome.Content)), im.cfg.MinContentRunes))
			continue
		}
		rec.Text = library.Truncate(outcome.Content, im.store.MaxTextRunes())
		rec.ImportStatus = library.StatusSuccess
		rec.ImportReason = ""
		if err := im.store.Update(rec); err != nil {
			log = append(log, fmt.Sprintf("%s: extracted but could not persist: %v", rec.Title, err))
			continue
		}
		updated++
		log = append(log, fmt.Sprintf("%s: extracted %d chars from %s",
			rec.Title, len([]rune(rec.Text)), rec.URL))
	}
	return log, updated
}

// failureSummary groups failed records under recognized blocked domains so
// a systemic access problem stands out from scattered per-article ones.
func (im *Importer) failureSummary(records []library.Record) []string {
	if im.blocklist == nil {
		return nil
	}
	byDomain := map[string]int{}
	for _, rec := range records {
		if rec.ImportStatus != library.StatusFailed {
			continue
		}
		parsed, err := url.Parse(rec.URL)
		if err != nil || parsed.Host == "" {
			continue
		}
		if im.blocklist.IsBlocked(parsed.Host) {
			byDomain[strings.TrimPrefix(parsed.Host, "www.")]++
		}
	}
	if len(byDomain) == 0 {
		return nil
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	lines := []string{"summary: failures on publisher domains that usually need institutional access:"}
	for _, d := range domains {
		lines = append(lines, fmt.Sprintf("  %s: %d failed; check proxy or VPN access", d, byDomain[d]))
	}
	return lines
}

// newID falls back to a timestamp-derived ID if the generator fails, so an
// import result is never dropped over an ID.
func (im *Importer) newID() string {
	id, err := im.store.NewRecordID()
	if err != nil {
		im.logger.Warn("id generation failed", zap.Error(err))
		return fmt.Sprintf("rec-%d", im.store.Now().UnixNano())
	}
	return id
}

func (l Link) label(i int) string {
	if strings.TrimSpace(l.Title) != "" {
		return l.Title
	}
	return fmt.Sprintf("item %d", i+1)
}

func truncateMessage(msg string, maxRunes int) string {
	runes := []rune(msg)
	if len(runes) <= maxRunes {
		return msg
	}
	return string(runes[:maxRunes]) + "..."
}
