package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/ogimet-history/internal/crawler"
)

const okPage = `<html><body><table border="0"><tr><th>Date</th></tr></table></body></html>`

func newTestFetcher(maxAttempts int) *Fetcher {
	f := New(Config{
		UserAgent:   "ogimet-test",
		Timeout:     time.Second,
		MaxAttempts: maxAttempts,
		Backoff:     time.Millisecond,
	}, zap.NewNop())
	return f
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.UserAgent())
		_, _ = w.Write([]byte(okPage))
	}))
	t.Cleanup(srv.Close)

	doc, err := newTestFetcher(3).Fetch(context.Background(), srv.URL+"/cgi-bin/gsynres?ind=97240")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find(`table[border="0"]`).Length())
	assert.Equal(t, "ogimet-test", gotUA.Load())
}

func TestFetchRetriesNonOKWithoutBackoff(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okPage))
	}))
	t.Cleanup(srv.Close)

	f := newTestFetcher(5)
	var pauses int
	f.pause = func(context.Context, time.Duration) error {
		pauses++
		return nil
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Zero(t, pauses, "status retries must not back off")
}

func TestFetchExhaustedOnStatus(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestFetcher(4).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrFetchExhausted))
	assert.Equal(t, int32(4), hits.Load())
}

func TestFetchBacksOffOnTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newTestFetcher(3)
	var waits []time.Duration
	f.pause = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	_, err := f.Fetch(context.Background(), url)
	require.ErrorIs(t, err, crawler.ErrFetchExhausted)
	// No wait after the final attempt.
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, waits)
}

func TestFetchCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := newTestFetcher(5)
	f.pause = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	_, err := f.Fetch(context.Background(), url)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, crawler.ErrFetchExhausted))
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(okPage))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(3).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{Backoff: -time.Second}, nil)
	assert.Equal(t, DefaultMaxAttempts, f.cfg.MaxAttempts)
	assert.Equal(t, DefaultTimeout, f.cfg.Timeout)
	assert.Zero(t, f.cfg.Backoff)
	assert.True(t, f.baseCollector.AllowURLRevisit)
	assert.True(t, f.baseCollector.ParseHTTPErrorResponse)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var res attemptResult
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &res)
	if hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	assert.Equal(t, http.StatusOK, res.statusCode)
	assert.Equal(t, "body", string(res.body))

	hooks.onError(&colly.Response{}, errors.New("boom"))
	assert.EqualError(t, res.err, "boom")
	assert.Equal(t, http.StatusOK, res.statusCode, "a zero status must not overwrite the last one")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, attemptSuccess, classify(attemptResult{statusCode: http.StatusOK}))
	assert.Equal(t, attemptRetryNow, classify(attemptResult{statusCode: http.StatusNotFound}))
	assert.Equal(t, attemptRetryAfterBackoff, classify(attemptResult{err: errors.New("dial")}))
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func TestFetchPacesRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(okPage))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{
		Timeout:           time.Second,
		MaxAttempts:       3,
		RequestsPerSecond: 10,
	}, zap.NewNop())

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
