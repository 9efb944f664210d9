// Package fetcher runs single-shot search requests against the news
// API, normalizes the results and hands them to storage. Each worker is
// bound to one request and emits exactly one completion or one error.
package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/twbeatles/navernews-tabsearch/internal/models"
	"github.com/twbeatles/navernews-tabsearch/internal/textutil"
)

const (
	// DefaultEndpoint is the production search endpoint.
	DefaultEndpoint = "https://openapi.naver.com/v1/search/news.json"

	// PageSize is the fixed display size of every request.
	PageSize = 100

	// MaxStart is the highest 1-based offset the API accepts.
	MaxStart = 1000

	retrySleepSlice = time.Second
)

var errStopped = errors.New("fetcher: worker stopped")

// Config carries the credentials and client behavior shared by all
// workers. Endpoint is overridable for tests; empty means production.
type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     string
	Timeout      time.Duration
	MaxRetries   int
}

// Store is the persistence surface a worker needs.
type Store interface {
	UpsertNews(items []models.NewsItem, keyword string) (int, int, error)
}

// Worker performs one search request with retry, filtering and
// persistence. Create with NewWorker, run once with Run.
type Worker struct {
	cfg      Config
	client   *http.Client
	store    Store
	keyword  string
	term     string
	excludes []string
	start    int

	stopped atomic.Bool

	// Exactly one of these fires per Run, unless the worker was stopped.
	OnDone  func(models.FetchResult)
	OnError func(string)
}

// NewWorker builds a worker for one request. keyword is the storage
// keyword results are persisted under, normally the parsed search term
// so tabs differing only in exclusions share one dedup scope. term and
// excludes come from the parsed query. start is the 1-based result
// offset.
func NewWorker(cfg Config, client *http.Client, store Store, keyword, term string, excludes []string, start int) *Worker {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if start < 1 {
		start = 1
	}
	return &Worker{
		cfg:      cfg,
		client:   client,
		store:    store,
		keyword:  keyword,
		term:     term,
		excludes: excludes,
		start:    start,
	}
}

// Stop requests cancellation. A stopped worker finishes its current
// network call at most and then exits without emitting.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (w *Worker) Stopped() bool {
	return w.stopped.Load()
}

// Run executes the request to completion. Persistence failures are
// logged and reported as zero counts, not as fetch errors.
func (w *Worker) Run() {
	payload, err := w.fetchWithRetry()
	if err != nil {
		if errors.Is(err, errStopped) {
			log.Printf("Worker: request for %q cancelled", w.keyword)
			return
		}
		w.emitError(err.Error())
		return
	}

	items := make([]models.NewsItem, 0, len(payload.Items))
	filtered := 0
	for _, raw := range payload.Items {
		if w.stopped.Load() {
			log.Printf("Worker: request for %q cancelled", w.keyword)
			return
		}
		item := normalize(raw)
		if w.excluded(item) {
			filtered++
			continue
		}
		items = append(items, item)
	}

	added, duplicates := 0, 0
	if len(items) > 0 && w.store != nil {
		added, duplicates, err = w.store.UpsertNews(items, w.keyword)
		if err != nil {
			log.Printf("Worker: failed to persist %d item(s) for %q: %v", len(items), w.keyword, err)
			added, duplicates = 0, 0
		}
	}

	if w.stopped.Load() {
		log.Printf("Worker: result for %q discarded after stop", w.keyword)
		return
	}

	w.emitDone(models.FetchResult{
		Items:      items,
		Total:      payload.Total,
		Filtered:   filtered,
		Added:      added,
		Duplicates: duplicates,
	})
}

func (w *Worker) emitDone(result models.FetchResult) {
	if w.OnDone != nil {
		w.OnDone(result)
	}
}

func (w *Worker) emitError(msg string) {
	if w.OnError != nil {
		w.OnError(msg)
	}
}

type searchResponse struct {
	Total   int          `json:"total"`
	Start   int          `json:"start"`
	Display int          `json:"display"`
	Items   []searchItem `json:"items"`
}

type searchItem struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

type apiError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (w *Worker) fetchWithRetry() (*searchResponse, error) {
	var lastErr error

	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if w.stopped.Load() {
			return nil, errStopped
		}

		resp, err := w.client.Do(w.buildRequest())
		if err != nil {
			lastErr = err
			log.Printf("Worker: request attempt %d/%d failed: %v", attempt+1, w.cfg.MaxRetries, err)
			if attempt < w.cfg.MaxRetries-1 {
				if !w.sleepInterruptible(retrySleepSlice) {
					return nil, errStopped
				}
				continue
			}
			return nil, fmt.Errorf("request failed after %d attempts: %v", w.cfg.MaxRetries, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < w.cfg.MaxRetries-1 {
				if !w.sleepInterruptible(retrySleepSlice) {
					return nil, errStopped
				}
				continue
			}
			return nil, fmt.Errorf("failed to read response: %v", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var payload searchResponse
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, fmt.Errorf("failed to decode response: %v", err)
			}
			return &payload, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			backoff := time.Duration(attempt+1) * 2 * time.Second
			lastErr = fmt.Errorf("rate limited (HTTP 429)")
			log.Printf("Worker: rate limited, backing off %v (attempt %d/%d)", backoff, attempt+1, w.cfg.MaxRetries)
			if attempt < w.cfg.MaxRetries-1 {
				if !w.sleepInterruptible(backoff) {
					return nil, errStopped
				}
				continue
			}

		default:
			// Any other API failure is terminal: surface its message.
			var apiErr apiError
			if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorMessage != "" {
				return nil, fmt.Errorf("API error %s (HTTP %d): %s", apiErr.ErrorCode, resp.StatusCode, apiErr.ErrorMessage)
			}
			return nil, fmt.Errorf("API request failed with HTTP %d", resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %v", w.cfg.MaxRetries, lastErr)
}

func (w *Worker) buildRequest() *http.Request {
	endpoint := w.cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, _ := http.NewRequest(http.MethodGet, endpoint, nil)
	q := req.URL.Query()
	q.Set("query", w.term)
	q.Set("display", strconv.Itoa(PageSize))
	q.Set("start", strconv.Itoa(w.start))
	q.Set("sort", "date")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Naver-Client-Id", w.cfg.ClientID)
	req.Header.Set("X-Naver-Client-Secret", w.cfg.ClientSecret)
	return req
}

// sleepInterruptible sleeps for d in one-second slices, bailing out as
// soon as the worker is stopped. Returns false when interrupted.
func (w *Worker) sleepInterruptible(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if w.stopped.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > retrySleepSlice {
			remaining = retrySleepSlice
		}
		time.Sleep(remaining)
	}
	return !w.stopped.Load()
}

func (w *Worker) excluded(item models.NewsItem) bool {
	for _, word := range w.excludes {
		if word == "" {
			continue
		}
		if strings.Contains(item.Title, word) || strings.Contains(item.Description, word) {
			return true
		}
	}
	return false
}

func normalize(raw searchItem) models.NewsItem {
	return models.NewsItem{
		Title:       textutil.CleanMarkup(raw.Title),
		Description: textutil.CleanMarkup(raw.Description),
		Link:        deriveLink(raw.Link, raw.OriginalLink),
		PubDate:     raw.PubDate,
		Publisher:   derivePublisher(raw.Link, raw.OriginalLink),
	}
}

// deriveLink prefers the portal-hosted article page when present, since
// that URL is stable across republications of the same story.
func deriveLink(link, original string) string {
	if strings.Contains(hostOf(link), "news.naver.com") {
		return link
	}
	if strings.Contains(hostOf(original), "news.naver.com") {
		return original
	}
	if link != "" {
		return link
	}
	return original
}

func derivePublisher(link, original string) string {
	if original != "" {
		if host := hostOf(original); host != "" {
			return strings.TrimPrefix(host, "www.")
		}
	}
	host := hostOf(link)
	if strings.Contains(host, "naver.com") {
		return "Naver News"
	}
	if host != "" {
		return strings.TrimPrefix(host, "www.")
	}
	return "unknown"
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
