// Package crawler fetches the upstream mirror list and parses it into the
// flattened records the reconciler (internal/reconciler) diffs against the
// registry store.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

// CrawledMirror is one row of the upstream mirror list, already flattened:
// a country can list more than one mirror, so the same country metadata is
// attached to each of its mirrors.
type CrawledMirror struct {
	ID          string
	BaseURL     string
	CountryCode string
	CountryName string
}

// Crawler fetches and parses the upstream mirror list.
type Crawler struct {
	client          *http.Client
	url             string
	excludedMirrors map[string]bool
	maxRetries      int
	retryWait       time.Duration
}

// New builds a Crawler. excludedMirrors holds hostnames to drop before the
// diff, matching EXCLUDED_MIRRORS.
func New(listURL string, excludedMirrors []string, client *http.Client) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	excluded := make(map[string]bool, len(excludedMirrors))
	for _, h := range excludedMirrors {
		excluded[strings.ToLower(h)] = true
	}
	return &Crawler{
		client:          client,
		url:             listURL,
		excludedMirrors: excluded,
		maxRetries:      3,
		retryWait:       2 * time.Second,
	}
}

// Crawl fetches the mirror list and returns every mirror row, country
// metadata attached to each, hostnames in EXCLUDED_MIRRORS dropped.
func (c *Crawler) Crawl(ctx context.Context) ([]CrawledMirror, error) {
	body, err := c.fetchWithRetry(ctx)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, apperrors.NewUpstreamFetch("mirror list", fmt.Errorf("parsing mirror list: %w", err))
	}

	var mirrors []CrawledMirror
	doc.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("td.newregion").Length() > 0 {
			return
		}
		img := row.Find("img").First()
		if img.Length() == 0 {
			return
		}
		countryCode, _ := img.Attr("alt")
		if countryCode == "" {
			return
		}
		countryName := strings.TrimSpace(img.Parent().Text())

		link := row.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.TrimSpace(s.Text()) == "HTTP"
		}).First()
		if link.Length() == 0 {
			return
		}
		baseURL, _ := link.Attr("href")
		if baseURL == "" {
			return
		}
		u, err := url.Parse(baseURL)
		if err != nil || u.Hostname() == "" {
			return
		}
		hostname := u.Hostname()
		if c.excludedMirrors[strings.ToLower(hostname)] {
			return
		}

		mirrors = append(mirrors, CrawledMirror{
			ID:          hostname,
			BaseURL:     baseURL,
			CountryCode: strings.ToLower(countryCode),
			CountryName: countryName,
		})
	})

	return mirrors, nil
}

func (c *Crawler) fetchWithRetry(ctx context.Context) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryWait * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, apperrors.NewUpstreamFetch("mirror list", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %d fetching mirror list", resp.StatusCode)
			continue
		}
		return resp.Body, nil
	}
	return nil, apperrors.NewUpstreamFetch("mirror list", lastErr)
}
