package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractFileMissingPath(t *testing.T) {
	t.Parallel()

	e := NewPDFExtractor(100, time.Second, zap.NewNop())
	out := e.ExtractFile(filepath.Join(t.TempDir(), "nope.pdf"))
	require.False(t, out.OK)
	require.Equal(t, ClassParseError, out.Class)
	require.Contains(t, out.Reason, "corrupt or unreadable PDF")
}

func TestExtractFileCorruptDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 this is not a real pdf"), 0o644))

	e := NewPDFExtractor(100, time.Second, zap.NewNop())
	out := e.ExtractFile(path)
	require.False(t, out.OK)
	require.Equal(t, ClassParseError, out.Class)
}

func TestLooksLikePDFChecksContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/paper" {
			w.Header().Set("Content-Type", "application/pdf")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
	}))
	defer server.Close()

	e := NewPDFExtractor(100, time.Second, zap.NewNop())
	require.True(t, e.LooksLikePDF(context.Background(), server.URL+"/paper"))
	require.False(t, e.LooksLikePDF(context.Background(), server.URL+"/page"))
}

func TestFetchDownloadsAndRejectsCorruptPDF(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 this is not a real pdf"))
	}))
	defer server.Close()

	e := NewPDFExtractor(100, time.Second, zap.NewNop())
	out := e.Fetch(context.Background(), server.URL+"/paper", Credentials{})
	require.False(t, out.OK)
	require.Equal(t, ClassParseError, out.Class)
}

func TestFetchClassifiesHTTPFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	e := NewPDFExtractor(100, time.Second, zap.NewNop())
	out := e.Fetch(context.Background(), server.URL+"/paper", Credentials{})
	require.False(t, out.OK)
	require.Equal(t, ClassAuthRequired, out.Class)
}
