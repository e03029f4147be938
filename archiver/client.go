package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	Mt "github.com/sirius-geo/ringdeform/types"
)

const (
	DefaultURL = "http://10.0.38.42/retrieval/data/getData.json"

	webTimeout = 10 * time.Second

	// DefaultMeanMinutes asks the archiver for 1-minute server-side means.
	DefaultMeanMinutes = 1

	// DropTrailingSamples is how many rows are removed from the end of every
	// joined table. The archiver returns one bin past the requested end when
	// averaging at 1-minute cadence; this is tuning for that deployment.
	DropTrailingSamples = 1

	DefaultMaxRetries = 4
	isoMillis         = "2006-01-02T15:04:05.000Z"
)

// HTTPClient is satisfied by *http.Client and by test doubles
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Shared HTTP Client, instrumented for tracing
var sharedHTTPClient = &http.Client{
	Timeout: webTimeout,
	Transport: otelhttp.NewTransport(&http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
	}),
}

// Recorder receives fetch telemetry. obvy.StatsInternal implements it.
type Recorder interface {
	RecFetch(outcome string, d time.Duration)
	RecRetry()
	RecZeroFill(channel string)
	RecCache(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecFetch(string, time.Duration) {}
func (nopRecorder) RecRetry()                      {}
func (nopRecorder) RecZeroFill(string)             {}
func (nopRecorder) RecCache(bool)                  {}

// Client fetches named channels over a window and joins them into a Signal Table.
type Client struct {
	baseURL      string
	http         HTTPClient
	meanMinutes  int
	maxRetries   uint64
	initInterval time.Duration
	limiter      *rate.Limiter
	cache        Cache
	stats        Recorder
}

type Option func(*Client)

func WithHTTPClient(h HTTPClient) Option { return func(c *Client) { c.http = h } }

// WithTimeout keeps the shared transport but changes the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d, Transport: sharedHTTPClient.Transport}
		}
	}
}

// WithMeanMinutes sets server-side averaging; 0 requests raw samples
func WithMeanMinutes(m int) Option { return func(c *Client) { c.meanMinutes = m } }

func WithMaxRetries(n uint64) Option { return func(c *Client) { c.maxRetries = n } }

// WithBackoff sets the first retry interval, it grows exponentially from there
func WithBackoff(d time.Duration) Option { return func(c *Client) { c.initInterval = d } }

// WithRateLimit caps requests per second across the whole fan-out
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithCache(cache Cache) Option { return func(c *Client) { c.cache = cache } }

func WithRecorder(r Recorder) Option { return func(c *Client) { c.stats = r } }

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:      baseURL,
		http:         sharedHTTPClient,
		meanMinutes:  DefaultMeanMinutes,
		maxRetries:   DefaultMaxRetries,
		initInterval: 500 * time.Millisecond,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		stats:        nopRecorder{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BinCenterOffset moves averaged samples from the start to the middle of their bin
func (c *Client) BinCenterOffset() time.Duration {
	return time.Duration(c.meanMinutes) * time.Minute / 2
}

// Settled reports whether every bin of w is closed at now.
// Windows still receiving data are neither read from nor written to the cache.
func (c *Client) Settled(w Mt.Window, now time.Time) bool {
	bin := time.Duration(c.meanMinutes) * time.Minute
	return w.End.Before(now.Add(-bin))
}

// PV is the channel expression sent to the archiver
func (c *Client) PV(channel string) string {
	if c.meanMinutes <= 0 {
		return channel
	}
	return fmt.Sprintf("mean_%d(%s)", 60*c.meanMinutes, channel)
}

// QueryURL builds the request URL for one channel. Times are sent in UTC.
func (c *Client) QueryURL(channel string, w Mt.Window) string {
	params := url.Values{}
	params.Add("pv", c.PV(channel))
	params.Add("from", w.Start.UTC().Format(isoMillis))
	params.Add("to", w.End.UTC().Format(isoMillis))
	return fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
}

// FetchChannel returns the samples of one channel, retrying transient failures.
// An empty slice is a valid answer; the caller decides what it means.
func (c *Client) FetchChannel(ctx context.Context, channel string, w Mt.Window) ([]Mt.Sample, error) {
	u := c.QueryURL(channel, w)
	key := cacheKey(c.PV(channel), w)
	cacheable := c.cache != nil && c.Settled(w, time.Now())

	if cacheable {
		samples, ok, err := c.cache.Get(key)
		if err != nil {
			slog.Warn("Archiver cache read failed", slog.String("channel", channel), slog.Any("error", err))
		}
		c.stats.RecCache(ok)
		if ok {
			return samples, nil
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	attempts := 0
	var samples []Mt.Sample
	start := time.Now()

	op := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		s, err := c.get(ctx, u)
		if err != nil {
			return err
		}
		samples = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.stats.RecRetry()
		slog.Warn("Archiver fetch retry",
			slog.String("channel", channel),
			slog.Int("attempt", attempts),
			slog.Duration("next", next),
			slog.Any("error", err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		c.stats.RecFetch("error", time.Since(start))
		slog.Error("Archiver fetch failed", slog.String("channel", channel), slog.Any("error", err))
		return nil, &Mt.UpstreamError{Op: "archiver fetch", Target: u, Attempts: attempts, Err: err}
	}
	c.stats.RecFetch("ok", time.Since(start))

	offset := c.BinCenterOffset()
	for i := range samples {
		samples[i].Time = samples[i].Time.Add(offset)
	}

	if cacheable && len(samples) > 0 {
		if err := c.cache.Put(key, samples); err != nil {
			slog.Warn("Archiver cache write failed", slog.String("channel", channel), slog.Any("error", err))
		}
	}
	return samples, nil
}

// ErrRejected marks 4xx answers, which are not retried
var ErrRejected = errors.New("archiver rejected request")

func (c *Client) get(ctx context.Context, u string) ([]Mt.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Close Error", slog.Any("error", err))
		}
	}()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("archiver returned status %d", resp.StatusCode)
	}

	var payload pvPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return samplesOf(payload), nil
}

// Fetch requests every channel concurrently and joins the answers by name.
// The first non-empty channel in request order defines the time index.
// Empty channels are zero-filled and reported; any other length mismatch
// aborts with the offending channel.
func (c *Client) Fetch(ctx context.Context, channels []string, w Mt.Window) (*Mt.Table, error) {
	if len(channels) == 0 {
		return nil, &Mt.ConfigError{Field: "channels", Message: "nothing to fetch"}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		samples []Mt.Sample
		err     error
	}
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]result, len(channels))
	)

	for _, ch := range channels {
		mu.Lock()
		_, dup := results[ch]
		results[ch] = result{}
		mu.Unlock()
		if dup {
			continue
		}

		wg.Add(1)
		go func(ch string) {
			defer wg.Done()
			s, err := c.FetchChannel(ctx, ch, w)
			if err != nil {
				cancel()
			}
			mu.Lock()
			results[ch] = result{samples: s, err: err}
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	// report the upstream failure, not the cancellations it caused
	var firstErr error
	for _, ch := range channels {
		err := results[ch].err
		if err == nil {
			continue
		}
		if firstErr == nil || (errors.Is(firstErr, context.Canceled) && !errors.Is(err, context.Canceled)) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var ref []Mt.Sample
	for _, ch := range channels {
		if s := results[ch].samples; len(s) > 0 {
			ref = s
			break
		}
	}
	if ref == nil {
		return nil, &Mt.InsufficientDataError{Channel: channels[0], Message: "no channel returned samples in the window"}
	}

	n := len(ref) - DropTrailingSamples
	if n <= 0 {
		return nil, &Mt.InsufficientDataError{Channel: channels[0], Want: DropTrailingSamples + 1, Got: len(ref), Message: "too few samples"}
	}

	index := make([]time.Time, n)
	for i := range index {
		index[i] = ref[i].Time
	}
	table, err := Mt.NewTable(index)
	if err != nil {
		return nil, err
	}

	zeroFilled := 0
	for _, ch := range channels {
		if table.Has(ch) {
			continue
		}
		s := results[ch].samples
		values := make([]float64, n)
		switch {
		case len(s) == 0:
			zeroFilled++
			c.stats.RecZeroFill(ch)
			slog.Warn("Archiver channel empty, zero-filled", slog.String("channel", ch), slog.Int("samples", n))
		case len(s) != len(ref):
			return nil, &Mt.InsufficientDataError{Channel: ch, Want: len(ref), Got: len(s), Message: "sample count differs from the other channels"}
		default:
			for i := range values {
				values[i] = s[i].Value
			}
		}
		if err := table.AddChannel(ch, values); err != nil {
			return nil, err
		}
	}

	slog.Info("Archiver fetch complete",
		slog.Int("channels", len(table.Names())),
		slog.Int("samples", n),
		slog.Int("zeroFilled", zeroFilled))
	return table, nil
}
