package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\nSitemap: " + testServerURL + "/sitemap.xml\n"))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><urlset><url><loc>` + testServerURL + `/about</loc></url></urlset>`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<a href="/about">About</a>
			<a href="/team">Team</a>
			<a href="https://external.example.com/other">External</a>
			<a href="/logo.png">Logo</a>
		</body></html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="/team">Team</a></body></html>`))
	})
	mux.HandleFunc("/team", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>no links here</body></html>`))
	})
	srv := httptest.NewServer(mux)
	testServerURL = srv.URL
	return srv
}

// testServerURL is set by newTestSite before any handler closures (which
// reference it) run, so the sitemap can point back at the same server.
var testServerURL string

func TestDiscoverFindsSitemapAndCrawledPages(t *testing.T) {
	srv := newTestSite(t)
	defer srv.Close()

	d := NewDiscoverer(DefaultOptions())
	candidates, err := d.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	urls := make(map[string]bool)
	for _, c := range candidates {
		urls[c.URL] = true
	}

	if !urls[srv.URL+"/about"] {
		t.Errorf("expected /about to be discovered, got %+v", candidates)
	}
	if !urls[srv.URL+"/team"] {
		t.Errorf("expected /team to be discovered, got %+v", candidates)
	}
	for u := range urls {
		if strings.Contains(u, "logo.png") {
			t.Errorf("expected asset URL to be filtered out, got %s", u)
		}
		if strings.Contains(u, "external.example.com") {
			t.Errorf("expected off-domain URL to be filtered out, got %s", u)
		}
	}
}

func TestDiscoverOrdersBySourcePriority(t *testing.T) {
	srv := newTestSite(t)
	defer srv.Close()

	d := NewDiscoverer(DefaultOptions())
	candidates, err := d.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	// The sitemap-sourced /about page should be ranked ahead of the
	// recursively-discovered /team page.
	aboutIdx, teamIdx := -1, -1
	for i, c := range candidates {
		if c.URL == srv.URL+"/about" {
			aboutIdx = i
		}
		if c.URL == srv.URL+"/team" {
			teamIdx = i
		}
	}
	if aboutIdx == -1 || teamIdx == -1 {
		t.Fatalf("expected both /about and /team present: %+v", candidates)
	}
	if aboutIdx > teamIdx {
		t.Errorf("expected sitemap-sourced /about to rank ahead of recursive /team")
	}
}

func TestDiscoverFailsFatalOnHomepageFetchFailure(t *testing.T) {
	d := NewDiscoverer(DefaultOptions())
	_, err := d.Discover(context.Background(), "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected an error when the homepage cannot be fetched")
	}
}

func TestDiscoverRespectsCap(t *testing.T) {
	srv := newTestSite(t)
	defer srv.Close()

	opts := DefaultOptions()
	opts.Cap = 1
	d := NewDiscoverer(opts)

	candidates, err := d.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(candidates) > 1 {
		t.Errorf("expected at most 1 candidate with cap=1, got %d", len(candidates))
	}
}
