// sentiment/scraper.go
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"fx_sentinel_go/logs"

	"golang.org/x/time/rate"
)

// Source produces a per-instrument directional signal in [-1, 1]. An empty
// map means the source had nothing to say; callers treat it as all-zero
// sentiment, never as an error.
type Source interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// headlinePattern picks plausible headline fragments out of raw HTML.
var headlinePattern = regexp.MustCompile(`>([^<>]{20,100})<`)

const defaultInferenceURL = "https://api-inference.huggingface.co/models/distilbert-base-uncased-finetuned-sst-2-english"

// Scraper aggregates headlines from news sources and scores them through a
// remote inference API. Outbound calls are rate limited and the whole fetch
// is throttled so back-to-back ticks reuse the quiet period.
type Scraper struct {
	http         *http.Client
	limiter      *rate.Limiter
	sources      []string
	instruments  []string
	token        string
	inferenceURL string
	throttle     time.Duration

	mu        sync.Mutex
	lastFetch time.Time
}

// Option mutates a Scraper during construction.
type Option func(*Scraper)

// WithInferenceURL overrides the remote scoring endpoint (tests).
func WithInferenceURL(url string) Option {
	return func(s *Scraper) { s.inferenceURL = url }
}

// NewScraper builds a sentiment scraper for the given watchlist.
func NewScraper(sources, instruments []string, token string, throttleSeconds, requestsPerMinute, timeoutSeconds int, opts ...Option) *Scraper {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 5
	}
	s := &Scraper{
		http:         &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		sources:      sources,
		instruments:  instruments,
		token:        token,
		inferenceURL: defaultInferenceURL,
		throttle:     time.Duration(throttleSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch scrapes the configured sources and returns per-instrument signals.
// Within the throttle window, or when every source fails, it returns an
// empty map.
func (s *Scraper) Fetch(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	if time.Since(s.lastFetch) < s.throttle {
		s.mu.Unlock()
		return map[string]float64{}, nil
	}
	s.lastFetch = time.Now()
	s.mu.Unlock()

	var aggregated strings.Builder
	for _, url := range s.sources {
		headlines, err := s.scrape(ctx, url)
		if err != nil {
			logs.Errorf("[Sentiment] Failed to scrape %s: %v", url, err)
			continue
		}
		aggregated.WriteString(strings.Join(headlines, " "))
		aggregated.WriteString(" ")
	}

	text := strings.TrimSpace(aggregated.String())
	if text == "" {
		logs.Warn("[Sentiment] No headlines scraped.")
		return map[string]float64{}, nil
	}

	polarity, err := s.analyze(ctx, text)
	if err != nil {
		return map[string]float64{}, fmt.Errorf("sentiment analysis failed: %w", err)
	}
	return s.signals(polarity), nil
}

func (s *Scraper) scrape(ctx context.Context, url string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return ExtractHeadlines(string(body)), nil
}

// ExtractHeadlines pulls up to 20 headline candidates out of raw HTML.
func ExtractHeadlines(html string) []string {
	matches := headlinePattern.FindAllStringSubmatch(html, -1)
	headlines := make([]string, 0, 20)
	for _, m := range matches {
		h := strings.TrimSpace(m[1])
		if len(h) > 20 && len(h) < 100 {
			headlines = append(headlines, h)
			if len(headlines) == 20 {
				break
			}
		}
	}
	return headlines
}

// analyze posts the aggregated text to the inference API and reduces the
// classification to a single polarity in [-1, 1].
func (s *Scraper) analyze(ctx context.Context, text string) (float64, error) {
	if s.token == "" {
		return 0, fmt.Errorf("sentiment inference token not configured")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.inferenceURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("inference API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var nested [][]struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &nested); err != nil || len(nested) == 0 {
		return 0, fmt.Errorf("unexpected inference response: %s", string(body))
	}

	polarity := 0.0
	for _, cls := range nested[0] {
		switch strings.ToUpper(cls.Label) {
		case "POSITIVE":
			polarity += cls.Score
		case "NEGATIVE":
			polarity -= cls.Score
		}
	}
	if polarity > 1 {
		polarity = 1
	}
	if polarity < -1 {
		polarity = -1
	}
	return polarity, nil
}

// signals spreads the aggregate polarity over the watchlist. Each
// instrument gets a stable attenuation derived from its name so the
// decision engine does not see eight identical numbers. This is a
// placeholder mapping, like the one it replaces; the aggregate headline
// polarity carries no per-pair information.
func (s *Scraper) signals(polarity float64) map[string]float64 {
	out := make(map[string]float64, len(s.instruments))
	for _, instr := range s.instruments {
		h := fnv.New32a()
		h.Write([]byte(instr))
		weight := 0.3 + 0.7*float64(h.Sum32()%1000)/1000
		out[instr] = polarity * weight
	}
	return out
}
