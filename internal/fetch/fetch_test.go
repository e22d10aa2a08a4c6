package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"briefly/internal/core"
)

func TestExtractMainText(t *testing.T) {
	html := `<html><head><title>Ignore</title></head><body>
		<nav>Home About</nav>
		<article><p>First paragraph.</p><p>Second paragraph.</p></article>
		<footer>copyright</footer>
	</body></html>`

	text := ExtractMainText(html)
	if text == "" {
		t.Fatal("expected non-empty extracted text")
	}
	if strings.Contains(text, "Home About") {
		t.Errorf("expected nav boilerplate to be removed, got: %s", text)
	}
	if !strings.Contains(text, "First paragraph.") || !strings.Contains(text, "Second paragraph.") {
		t.Errorf("expected article paragraphs in extracted text, got: %s", text)
	}
}

func TestExtractTitle(t *testing.T) {
	html := `<html><head><title>  My Title  </title></head><body></body></html>`
	if got := ExtractTitle(html); got != "My Title" {
		t.Errorf("expected 'My Title', got %q", got)
	}

	ogOnly := `<html><head><meta property="og:title" content="OG Title"></head><body></body></html>`
	if got := ExtractTitle(ogOnly); got != "OG Title" {
		t.Errorf("expected 'OG Title', got %q", got)
	}
}

func TestFetcherFetchAllSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><article><p>hello world</p></article></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(DefaultOptions())
	candidates := []core.PageCandidate{
		{URL: srv.URL, Source: core.SourceSeed},
	}

	outcomes := f.FetchAll(context.Background(), candidates)
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Content == nil {
		t.Fatalf("expected successful content, got error %s: %s", outcomes[0].Kind, outcomes[0].Message)
	}
	if !strings.Contains(outcomes[0].Content.Text, "hello world") {
		t.Errorf("expected extracted text to contain 'hello world', got %q", outcomes[0].Content.Text)
	}
}

func TestFetcherHandles4xxWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(DefaultOptions())
	outcomes := f.FetchAll(context.Background(), []core.PageCandidate{{URL: srv.URL}})

	if len(outcomes) != 1 || outcomes[0].Content != nil {
		t.Fatalf("expected a failed outcome, got %+v", outcomes)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a 4xx response (no retry), got %d", calls)
	}
}

func TestFetcherMarksBlockedStatusesWithDistinctKind(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		f := NewFetcher(DefaultOptions())
		outcomes := f.FetchAll(context.Background(), []core.PageCandidate{{URL: srv.URL}})
		srv.Close()

		if len(outcomes) != 1 || outcomes[0].Content != nil {
			t.Fatalf("status %d: expected a failed outcome, got %+v", status, outcomes)
		}
		if outcomes[0].Kind != core.KindFetchBlocked {
			t.Errorf("status %d: expected KindFetchBlocked, got %s", status, outcomes[0].Kind)
		}
	}
}

func TestFetcherRetriesOn5xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>recovered</p></body></html>`))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.BackoffBase = 5 * time.Millisecond
	f := NewFetcher(opts)

	outcomes := f.FetchAll(context.Background(), []core.PageCandidate{{URL: srv.URL}})
	if len(outcomes) != 1 || outcomes[0].Content == nil {
		t.Fatalf("expected a successful outcome after retry, got %+v", outcomes)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 calls (1 retry), got %d", calls)
	}
}

func TestFetcherRespectsParallelismCap(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		_, _ = w.Write([]byte(`<html><body><p>ok</p></body></html>`))
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.Parallelism = 2
	f := NewFetcher(opts)

	candidates := make([]core.PageCandidate, 6)
	for i := range candidates {
		candidates[i] = core.PageCandidate{URL: srv.URL}
	}

	outcomes := f.FetchAll(context.Background(), candidates)
	if len(outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(outcomes))
	}
	mu.Lock()
	defer mu.Unlock()
	if maxInFlight > 2 {
		t.Errorf("expected at most 2 requests in flight, observed %d", maxInFlight)
	}
}

func TestTruncateAggregate(t *testing.T) {
	pages := []core.PageContent{
		{URL: "a", Text: "0123456789"},
		{URL: "b", Text: "0123456789"},
	}
	out := TruncateAggregate(pages, 15)
	if out[0].Text != pages[0].Text {
		t.Errorf("expected first page untouched, got %q", out[0].Text)
	}
	if len(out[1].Text) != 5 {
		t.Errorf("expected second page trimmed to 5 chars, got %d", len(out[1].Text))
	}
}

func TestFetcherCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := f.FetchAll(ctx, []core.PageCandidate{{URL: srv.URL}, {URL: srv.URL}})
	for _, o := range outcomes {
		if o.Content != nil {
			t.Errorf("expected no successful fetches after cancellation, got %+v", o)
		}
	}
}
