package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{"paperdock-test/1.0"}
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ClientConfig{Timeout: time.Second}, zap.NewNop())
	require.Error(t, err)
}

func TestGetReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{})
	page, err := client.Get(context.Background(), srv.URL, Credentials{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "hello")
	require.Equal(t, srv.URL, page.URL)
}

func TestGetSendsCredentialHeaders(t *testing.T) {
	t.Parallel()

	var gotCookie, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{})
	creds := Credentials{
		Cookies: map[string]string{"session": "abc"},
		Bearer:  "tok123",
	}
	_, err := client.Get(context.Background(), srv.URL, creds)
	require.NoError(t, err)
	require.Equal(t, "session=abc", gotCookie)
	require.Equal(t, "Bearer tok123", gotAuth)
}

func TestGetPreservesClientErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{})
	page, err := client.Get(context.Background(), srv.URL, Credentials{})
	// 4xx is a page to classify, not a transport failure.
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, page.StatusCode)
}

func TestGetRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html><body>recovered</body></html>"))
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{
		MaxRetries:  3,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	page, err := client.Get(context.Background(), srv.URL, Credentials{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	page, err := client.Get(context.Background(), srv.URL, Credentials{})
	// Retries exhausted on a 5xx still hand back the page for status
	// classification, not a transport error.
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, page.StatusCode)
	require.EqualValues(t, 3, calls.Load())
}

func TestExhaustedServerErrorClassifiesAsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, ClientConfig{
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	})
	planner := new(MockPlanner)
	planner.On("Plan", srv.URL).Return([]Attempt{{URL: srv.URL, Method: MethodDirect}})

	o := NewOrchestrator(client, NewExtractor(200, zap.NewNop()), nil, nil, planner, 100_000, zap.NewNop())
	out := o.Fetch(context.Background(), srv.URL, Credentials{})
	require.False(t, out.OK)
	require.Equal(t, ClassTransientServer, out.Class)
	require.Contains(t, out.Reason, "500")
}

func TestWaitEnforcesDelay(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, ClientConfig{Delay: 50 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, client.Wait(ctx))

	start := time.Now()
	require.NoError(t, client.Wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, ClientConfig{Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, client.Wait(ctx))
	cancel()
	require.Error(t, client.Wait(ctx))
}
