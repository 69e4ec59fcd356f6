package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/jgoulah/espisync/internal/config"
)

// DefaultUserAgent is sent with every feed request. Some utility download
// endpoints reject non-browser clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// ErrFetch is wrapped by every FetchError.
var ErrFetch = errors.New("fetch failed")

// FetchError represents a transport failure or a non-success HTTP status
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// FeedScraper downloads an ESPI usage feed with a single GET
type FeedScraper struct {
	url       string
	userAgent string
	client    *http.Client
	logger    *slog.Logger
}

// NewFeedScraper creates a scraper for the configured source
func NewFeedScraper(cfg config.SourceConfig, logger *slog.Logger) *FeedScraper {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedScraper{
		url:       cfg.URL,
		userAgent: userAgent,
		// Zero timeout means no limit beyond the transport defaults
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// WithClient replaces the HTTP client, mainly for tests
func (s *FeedScraper) WithClient(client *http.Client) *FeedScraper {
	s.client = client
	return s
}

// Fetch retrieves the raw feed document
func (s *FeedScraper) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	s.logger.DebugContext(ctx, "requesting usage feed", "url", s.url)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{
			URL:        s.url,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: s.url, Err: fmt.Errorf("reading response body: %w", err)}
	}

	s.logger.InfoContext(ctx, "fetched usage feed",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"size", humanize.Bytes(uint64(len(body))),
	)

	return body, nil
}
