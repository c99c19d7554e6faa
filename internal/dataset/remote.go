package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used when a RemoteSource is built with a zero BackoffConfig.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

var (
	// ErrUpstream covers every failure to obtain a CSV from the remote source.
	ErrUpstream = errors.New("dataset upstream failure")
	// ErrTooLarge is returned when a remote response is over the size limit.
	ErrTooLarge = errors.New("dataset too large")

	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// RemoteSource downloads dataset CSVs over HTTP with retries, exponential
// backoff and a circuit breaker.
type RemoteSource struct {
	client  *http.Client
	backoff BackoffConfig
	cb      *gobreaker.CircuitBreaker
	maxSize int64
	log     *zap.Logger
}

// NewRemoteSource builds a RemoteSource. maxSize <= 0 means unlimited.
func NewRemoteSource(client *http.Client, backoff BackoffConfig, maxSize int64, log *zap.Logger) *RemoteSource {
	if backoff == (BackoffConfig{}) {
		backoff = DefaultBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}

	st := gobreaker.Settings{
		Name:        "dataset-remote",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &RemoteSource{
		client:  client,
		backoff: backoff,
		cb:      gobreaker.NewCircuitBreaker(st),
		maxSize: maxSize,
		log:     log,
	}
}

// Fetch downloads url and parses it as a dataset CSV.
func (r *RemoteSource) Fetch(ctx context.Context, url string, opts ParseOptions) ([]weather.Observation, error) {
	resp, err := r.doRequestWithResilience(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/csv")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := r.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	obs, err := Parse(bytes.NewReader(body), opts)
	if err != nil {
		return nil, err
	}
	r.log.Info("remote dataset fetched", zap.String("url", url), zap.Int("rows", len(obs)))
	return obs, nil
}

// readBody reads the whole response, failing when it is larger than maxSize.
func (r *RemoteSource) readBody(body io.Reader) ([]byte, error) {
	if r.maxSize <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(body, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("%w: %w: response exceeds %d bytes", ErrUpstream, ErrTooLarge, r.maxSize)
	}
	return data, nil
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker.
func (r *RemoteSource) doRequestWithResilience(
	ctx context.Context,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if r.client == nil {
		return nil, errNoHTTPClient
	}
	if r.backoff.MaxRetries < 0 || r.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := r.cb.Execute(func() (interface{}, error) {
			resp, execErr := r.client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		// Client errors other than 429 will not improve on retry.
		if errors.Is(err, errUnexpected) || attempt >= r.backoff.MaxRetries {
			return nil, err
		}

		delay := r.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > r.backoff.MaxInterval && r.backoff.MaxInterval > 0 {
			delay = r.backoff.MaxInterval
		}
		r.log.Debug("retrying dataset fetch",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}
