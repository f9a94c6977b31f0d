// Package geo resolves the service's approximate location from its public IP.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/aqicast/pkg/logger"
	"github.com/okian/aqicast/pkg/metrics"
	"github.com/sony/gobreaker"
)

// DefaultURL is the IP geolocation endpoint.
const DefaultURL = "https://ipinfo.io/json"

// Location is a resolved position. Lat and Lon are nil when the provider
// returned no coordinates.
type Location struct {
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	City string   `json:"city"`
}

// Backoff controls exponential backoff between attempts.
type Backoff struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client fetches the current location with retries, exponential backoff and
// a circuit breaker.
type Client struct {
	url     string
	http    *http.Client
	backoff Backoff
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithURL overrides the lookup endpoint.
func WithURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.url = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// WithBackoff replaces the retry schedule.
func WithBackoff(b Backoff) ClientOption {
	return func(c *Client) { c.backoff = b }
}

// WithBreaker replaces the circuit breaker settings.
func WithBreaker(s gobreaker.Settings) ClientOption {
	return func(c *Client) { c.breaker = gobreaker.NewCircuitBreaker(s) }
}

// WithClientLogger sets the logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a Client with a 5 second timeout, three retries and a
// breaker that opens after five consecutive failures.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		url:  DefaultURL,
		http: &http.Client{Timeout: 5 * time.Second},
		backoff: Backoff{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ipinfo",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State { return c.breaker.State() }

type ipinfoPayload struct {
	Loc  string `json:"loc"`
	City string `json:"city"`
}

// Fetch resolves the current location.
func (c *Client) Fetch(ctx context.Context) (Location, error) {
	start := time.Now()
	body, err := c.do(ctx)
	metrics.RecordLocationLatency(time.Since(start))
	if err != nil {
		return Location{}, err
	}

	var p ipinfoPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	loc := Location{City: strings.TrimSpace(p.City)}
	if p.Loc != "" {
		lat, lon, err := parseLatLon(p.Loc)
		if err != nil {
			return Location{}, err
		}
		loc.Lat, loc.Lon = &lat, &lon
	}
	return loc, nil
}

func parseLatLon(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: loc %q", ErrBadPayload, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: latitude %q", ErrBadPayload, parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: longitude %q", ErrBadPayload, parts[1])
	}
	return lat, lon, nil
}

// do runs the request under the breaker, retrying transient failures.
func (c *Client) do(ctx context.Context) ([]byte, error) {
	if c.backoff.MaxRetries < 0 || c.backoff.InitialInterval <= 0 {
		return nil, ErrInvalidConfig
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.breaker.Execute(func() (any, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				return nil, ErrRateLimited
			case resp.StatusCode >= 500:
				return nil, ErrServer
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				return nil, fmt.Errorf("%w: %d", ErrUnexpected, resp.StatusCode)
			}
			return io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		})
		if err == nil {
			return result.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		if attempt >= c.backoff.MaxRetries || errors.Is(err, ErrUnexpected) {
			return nil, err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}
		c.log.Debug(ctx, "location lookup failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Duration("delay", delay),
			logger.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
