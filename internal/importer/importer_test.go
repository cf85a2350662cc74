package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paperdock/paperdock/internal/fetch"
	"github.com/paperdock/paperdock/internal/library"
)

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string, creds fetch.Credentials) fetch.Outcome {
	args := m.Called(ctx, rawURL, creds)
	return args.Get(0).(fetch.Outcome)
}

// memStore is an in-memory Store recording every flush.
type memStore struct {
	records []library.Record
	flushes int
	nextID  int
	failAll bool
}

func (s *memStore) Append(records []library.Record) error {
	if s.failAll {
		return fmt.Errorf("disk full")
	}
	s.records = append(s.records, records...)
	s.flushes++
	return nil
}

func (s *memStore) Update(record library.Record) error {
	if s.failAll {
		return fmt.Errorf("disk full")
	}
	for i, r := range s.records {
		if r.ID == record.ID {
			s.records[i] = record
			return nil
		}
	}
	return fmt.Errorf("record %s not found", record.ID)
}

func (s *memStore) NewRecordID() (string, error) {
	s.nextID++
	return fmt.Sprintf("id-%d", s.nextID), nil
}

func (s *memStore) Now() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *memStore) MaxTextRunes() int { return 10_000 }

func newTestImporter(fetcher Fetcher, store Store, blocklist *fetch.Blocklist) *Importer {
	return New(fetcher, store, blocklist, fetch.Credentials{}, Config{FlushEvery: 10}, zap.NewNop())
}

func TestRunImportsSuccessAndFailure(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.example/1", mock.Anything).
		Return(fetch.Success(strings.Repeat("x", 500), "extracted from article tag"))
	fetcher.On("Fetch", mock.Anything, "https://a.example/2", mock.Anything).
		Return(fetch.Failure(fetch.ClassAuthRequired, "HTTP 403: authentication required"))

	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)
	records, log, imported := im.Run(context.Background(), []Link{
		{Title: "First", URL: "https://a.example/1"},
		{Title: "Second", URL: "https://a.example/2"},
	}, nil)

	require.Len(t, records, 2)
	require.Equal(t, 1, imported)
	require.Equal(t, library.StatusSuccess, records[0].ImportStatus)
	require.Empty(t, records[0].ImportReason)
	require.Equal(t, library.StatusFailed, records[1].ImportStatus)
	require.Equal(t, "HTTP 403: authentication required", records[1].ImportReason)
	require.Empty(t, records[1].Text)
	require.Len(t, store.records, 2, "batch must be persisted")
	require.Len(t, log, 2)
	require.Contains(t, log[1], "failed")
}

func TestRunSkipsMissingAndDuplicateURLs(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.example/1", mock.Anything).
		Return(fetch.Success(strings.Repeat("x", 500), "extracted from main")).Once()

	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)
	records, log, imported := im.Run(context.Background(), []Link{
		{Title: "No URL"},
		{Title: "Real", URL: "https://a.example/1"},
		{Title: "Repeat", URL: "https://a.example/1"},
	}, nil)

	require.Len(t, records, 1, "duplicate must not create a second record")
	require.Equal(t, 1, imported)
	require.Contains(t, log[0], "no URL provided")
	require.Contains(t, log[2], "skipped duplicate URL")
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRunSkipsAlreadySeenURLs(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)
	seen := map[string]struct{}{"https://a.example/old": {}}
	records, log, imported := im.Run(context.Background(), []Link{
		{Title: "Old", URL: "https://a.example/old"},
	}, seen)

	require.Empty(t, records)
	require.Zero(t, imported)
	require.Equal(t, "Old: skipped duplicate URL https://a.example/old", log[0])
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunSkipsPDFURLs(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)
	records, log, _ := im.Run(context.Background(), []Link{
		{Title: "Paper", URL: "https://a.example/paper.pdf"},
	}, nil)

	require.Empty(t, records, "skipped item must not create a record")
	require.Equal(t, "Paper: skipped PDF URL https://a.example/paper.pdf", log[0])
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunRecoversFromPanickingItem(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.example/bad", mock.Anything).
		Run(func(mock.Arguments) { panic("poisoned item") }).
		Return(fetch.Outcome{})
	fetcher.On("Fetch", mock.Anything, "https://a.example/good", mock.Anything).
		Return(fetch.Success(strings.Repeat("x", 500), "extracted from article tag"))

	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)
	records, log, imported := im.Run(context.Background(), []Link{
		{Title: "Bad", URL: "https://a.example/bad"},
		{Title: "Good", URL: "https://a.example/good"},
	}, nil)

	require.Len(t, records, 2, "batch continues past the panic")
	require.Equal(t, 1, imported)
	require.Equal(t, library.StatusFailed, records[0].ImportStatus)
	require.Contains(t, records[0].ImportReason, "unexpected error: poisoned item")
	require.Contains(t, log[0], "poisoned item")
}

func TestRunFlushesPeriodically(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(fetch.Success(strings.Repeat("x", 500), "extracted from article tag"))

	store := &memStore{}
	im := New(fetcher, store, nil, fetch.Credentials{}, Config{FlushEvery: 2}, zap.NewNop())

	var links []Link
	for i := 0; i < 5; i++ {
		links = append(links, Link{Title: fmt.Sprintf("n%d", i), URL: fmt.Sprintf("https://a.example/%d", i)})
	}
	records, _, imported := im.Run(context.Background(), links, nil)
	require.Len(t, records, 5)
	require.Equal(t, 5, imported)
	require.Len(t, store.records, 5)
	// 2 + 2 + final 1.
	require.Equal(t, 3, store.flushes)
}

func TestRunSummarizesBlockedDomainFailures(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(fetch.Failure(fetch.ClassAuthRequired, "HTTP 403: authentication required"))

	store := &memStore{}
	blocklist := fetch.NewBlocklist([]string{"sciencedirect.com", "wiley.com"})
	im := newTestImporter(fetcher, store, blocklist)
	_, log, _ := im.Run(context.Background(), []Link{
		{Title: "A", URL: "https://www.sciencedirect.com/science/article/1"},
		{Title: "B", URL: "https://www.sciencedirect.com/science/article/2"},
		{Title: "C", URL: "https://open.example.org/3"},
	}, nil)

	joined := strings.Join(log, "\n")
	require.Contains(t, joined, "sciencedirect.com: 2 failed")
	require.NotContains(t, joined, "open.example.org")
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	store := &memStore{}
	im := newTestImporter(fetcher, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, log, _ := im.Run(ctx, []Link{
		{Title: "A", URL: "https://a.example/1"},
	}, nil)
	require.Empty(t, records)
	require.Contains(t, log[0], "batch canceled")
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestScanBackfillsEmptyRecords(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.example/empty", mock.Anything).
		Return(fetch.Success(strings.Repeat("y", 400), "extracted from main"))

	store := &memStore{records: []library.Record{
		{ID: "r1", Title: "Has text", URL: "https://a.example/full", Text: "already here"},
		{ID: "r2", Title: "Needs text", URL: "https://a.example/empty"},
		{ID: "r3", Title: "No URL"},
	}}
	im := newTestImporter(fetcher, store, nil)
	log, updated := im.Scan(context.Background(), store.records)

	require.Equal(t, 1, updated)
	require.Contains(t, log[0], "already has text")
	require.Contains(t, log[1], "extracted 400 chars")
	require.Contains(t, log[2], "no URL provided")
	require.Equal(t, strings.Repeat("y", 400), store.records[1].Text)
	require.Equal(t, library.StatusSuccess, store.records[1].ImportStatus)
	fetcher.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestScanRejectsShortExtractions(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(fetch.Success("tiny", "extracted from paragraphs"))

	store := &memStore{records: []library.Record{
		{ID: "r1", Title: "Thin page", URL: "https://a.example/thin"},
	}}
	im := newTestImporter(fetcher, store, nil)
	log, updated := im.Scan(context.Background(), store.records)

	require.Zero(t, updated)
	require.Contains(t, log[0], "extracted only 4 chars")
	require.Empty(t, store.records[0].Text)
}
