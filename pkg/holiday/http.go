package holiday

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProvider fetches calendars from a remote holiday service:
//
//	GET {base}/holidays?scope={scope}&year={year}
//	-> {"holidays": [{"scope": "...", "date": "2025-01-01", "is_national": true}, ...]}
//
// Requests go through a politeness rate limiter and a bounded retry
// loop with exponential backoff and jitter. Exhausted retries surface
// as ErrUnavailable.
type HTTPProvider struct {
	base       string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

type httpCalendarResponse struct {
	Holidays []struct {
		Scope      string `json:"scope"`
		Date       string `json:"date"`
		IsNational bool   `json:"is_national"`
	} `json:"holidays"`
}

// NewHTTPProvider creates a provider for the given base URL.
func NewHTTPProvider(base string) *HTTPProvider {
	return &HTTPProvider{
		base:       base,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		maxRetries: 3,
	}
}

// Holidays fetches the (scope, year) set from the remote service.
func (p *HTTPProvider) Holidays(ctx context.Context, scope string, year int) (Set, error) {
	endpoint := fmt.Sprintf("%s/holidays?scope=%s&year=%d", p.base, url.QueryEscape(scope), year)

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		set, err := p.fetch(ctx, endpoint)
		if err == nil {
			return set, nil
		}
		lastErr = err

		if attempt == p.maxRetries {
			break
		}
		// backoff: base * 2^attempt + jitter
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
		jitter := time.Duration(0)
		if n, err := rand.Int(rand.Reader, big.NewInt(50)); err == nil {
			jitter = time.Duration(n.Int64()) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff + jitter):
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (p *HTTPProvider) fetch(ctx context.Context, endpoint string) (Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar service returned %d", resp.StatusCode)
	}

	var body httpCalendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode calendar response: %w", err)
	}

	set := make(Set, len(body.Holidays))
	for _, h := range body.Holidays {
		d, err := ParseDate(h.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar date %q: %w", h.Date, err)
		}
		set.Add(Holiday{Scope: h.Scope, Date: d, IsNational: h.IsNational})
	}
	return set, nil
}
