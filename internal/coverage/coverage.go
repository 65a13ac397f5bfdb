// Package coverage asks the coverage service whether an address can be
// connected.
package coverage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"contact-automation/internal/faults"
)

// Result of a coverage lookup.
type Result struct {
	Available   bool   `json:"available"`
	FullAddress string `json:"full_address,omitempty"`
}

// Checker decides address serviceability.
type Checker interface {
	Check(ctx context.Context, address string) (Result, error)
}

// HTTPChecker calls GET {BaseURL}/coverage?address=... . Answers are cached
// per address for CacheTTL and requests are throttled to Rate per second.
type HTTPChecker struct {
	BaseURL  string
	APIKey   string
	Client   *http.Client
	CacheTTL time.Duration

	limiter *rate.Limiter
	mu      sync.Mutex
	cache   map[string]cachedResult
	now     func() time.Time
}

type cachedResult struct {
	res       Result
	expiresAt time.Time
}

func NewHTTPChecker(baseURL, apiKey string, timeout time.Duration, perSecond float64, burst int) *HTTPChecker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &HTTPChecker{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: timeout},
		CacheTTL: 10 * time.Minute,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		cache:    map[string]cachedResult{},
		now:      time.Now,
	}
}

func (c *HTTPChecker) Check(ctx context.Context, address string) (Result, error) {
	const op = "coverage check"
	if c.BaseURL == "" {
		return Result{}, faults.ErrNotConfigured
	}
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if key == "" {
		return Result{}, faults.Malformed(op, errors.New("empty address"))
	}

	c.mu.Lock()
	if hit, ok := c.cache[key]; ok && c.now().Before(hit.expiresAt) {
		c.mu.Unlock()
		return hit.res, nil
	}
	c.mu.Unlock()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, faults.Transport(op, err)
		}
	}

	endpoint := fmt.Sprintf("%s/coverage?address=%s", c.BaseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return Result{}, faults.Transport(op, err)
	}
	defer resp.Body.Close()
	if err := faults.Status(op, resp.StatusCode); err != nil {
		return Result{}, err
	}

	var body struct {
		Available   *bool  `json:"available"`
		FullAddress string `json:"full_address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, faults.Malformed(op, err)
	}
	if body.Available == nil {
		return Result{}, faults.Malformed(op, errors.New("missing available"))
	}
	res := Result{Available: *body.Available, FullAddress: body.FullAddress}

	if c.CacheTTL > 0 {
		c.mu.Lock()
		if c.cache == nil {
			c.cache = map[string]cachedResult{}
		}
		c.evictLocked()
		c.cache[key] = cachedResult{res: res, expiresAt: c.now().Add(c.CacheTTL)}
		c.mu.Unlock()
	}
	return res, nil
}

// evictLocked drops expired answers; callers hold mu.
func (c *HTTPChecker) evictLocked() {
	now := c.now()
	for k, hit := range c.cache {
		if !now.Before(hit.expiresAt) {
			delete(c.cache, k)
		}
	}
}
