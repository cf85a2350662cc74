package library

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTruncateAppendsMarker(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 150)
	got := Truncate(long, 100)
	require.Len(t, []rune(got), 100+len([]rune(TruncationMarker)))
	require.True(t, strings.HasSuffix(got, TruncationMarker))

	short := "short text"
	require.Equal(t, short, Truncate(short, 100))
}

func TestNewImportedDefaultsTitle(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewImported("id-1", "", "https://example.org/a", strings.Repeat("x", 300), nil, "", now, 1000)
	require.Equal(t, DefaultTitle, rec.Title)
	require.Equal(t, StatusSuccess, rec.ImportStatus)
	require.NoError(t, rec.Validate(200))
}

func TestNewFailedKeepsReasonAndNoText(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := NewFailed("id-2", "Some Paper", "https://example.org/b", "HTTP 403: authentication required", now)
	require.Equal(t, StatusFailed, rec.ImportStatus)
	require.Empty(t, rec.Text)
	require.NotEmpty(t, rec.ImportReason)
	require.NoError(t, rec.Validate(200))
}

func TestValidateRejectsInvariantViolations(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "success with short text",
			rec: Record{
				ID: "a", Title: "t", Text: "tiny",
				CreatedAt: now, ImportStatus: StatusSuccess,
			},
		},
		{
			name: "failed with text",
			rec: Record{
				ID: "b", Title: "t", Text: "leftover", ImportReason: "x",
				CreatedAt: now, ImportStatus: StatusFailed,
			},
		},
		{
			name: "failed without reason",
			rec: Record{
				ID: "c", Title: "t",
				CreatedAt: now, ImportStatus: StatusFailed,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Error(t, tt.rec.Validate(200))
		})
	}
}

func TestRecordPreservesUnknownFields(t *testing.T) {
	t.Parallel()

	raw := `{"id":"x","title":"T","text":"","created_at":"2025-01-02T03:04:05Z","snippet":"first 500 chars","raw":{"source":"api"}}`
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	require.Equal(t, "x", rec.ID)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(out), `"snippet":"first 500 chars"`)
	require.Contains(t, string(out), `"source":"api"`)
}

func TestSearchTextPrefersTextOverAbstract(t *testing.T) {
	t.Parallel()

	rec := Record{Text: "full text", Abstract: "abstract"}
	require.Equal(t, "full text", rec.SearchText())
	rec.Text = ""
	require.Equal(t, "abstract", rec.SearchText())
}
