// Package transport performs the network side of a fetch.
package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/always-cache/fetchpipe"
	"github.com/always-cache/fetchpipe/rfc9111"
)

const DefaultUserAgent = "fetchpipe/1.0"

type Config struct {
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	RetryWaitMin time.Duration `yaml:"retryWaitMin"`
	RetryWaitMax time.Duration `yaml:"retryWaitMax"`
	// RateLimit is in requests per second, 0 means unlimited.
	RateLimit float64 `yaml:"rateLimit"`
	UserAgent string  `yaml:"userAgent"`
}

func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		Retries:      2,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		UserAgent:    DefaultUserAgent,
	}
}

// HTTP implements fetchpipe.Transport. Redirects are never followed, they
// are handed back to the pipeline.
type HTTP struct {
	resty   *resty.Client
	mu      sync.RWMutex
	limiter *rate.Limiter
}

func NewHTTP(config Config) *HTTP {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.Retries
	if config.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = config.RetryWaitMax
	}
	logger := clientLogger{log.Logger.With().Str("component", "transport").Logger()}
	retryClient.Logger = logger
	retryClient.CheckRetry = retryIdempotent
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.CheckRedirect = noRedirect

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	restyClient := resty.New()
	restyClient.
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.RedirectPolicyFunc(noRedirect)).
		SetHeader("User-Agent", userAgent).
		SetLogger(logger).
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	t := &HTTP{resty: restyClient}
	t.SetRateLimit(config.RateLimit)
	return t
}

// SetRateLimit configures rate limiting (requests per second)
func (t *HTTP) SetRateLimit(rps float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rps <= 0 {
		t.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		t.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

func (t *HTTP) Fetch(ctx context.Context, req *fetchpipe.Request) (*fetchpipe.Response, error) {
	t.mu.RLock()
	limiter := t.limiter
	t.mu.RUnlock()
	if err := limiter.Wait(ctx); err != nil {
		return nil, classify(errors.Wrap(err, "rate limit"))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if rfc9111.UnsafeMethod(method) {
		ctx = context.WithValue(ctx, noReplayKey{}, true)
	}

	r := t.resty.R().SetContext(ctx)
	for name, values := range req.Header {
		r.Header[name] = append([]string(nil), values...)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	res, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, classify(err)
	}
	return &fetchpipe.Response{
		Status:    res.StatusCode(),
		Header:    res.Header().Clone(),
		Body:      res.Body(),
		RequestID: req.RequestID,
		URL:       req.URL,
		Method:    method,
	}, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errors.Wrap(fetchpipe.ErrTimeout, err.Error())
	}
	return &fetchpipe.RequestFailedError{Message: err.Error()}
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// noReplayKey marks the context of a request that must be sent at most once.
type noReplayKey struct{}

// retryIdempotent retries connection errors and 5xx, but never replays a
// request that may have changed server state. The method is taken from the
// request context since resp is nil when the connection failed.
func retryIdempotent(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if noReplay, _ := ctx.Value(noReplayKey{}).(bool); noReplay {
		return false, nil
	}
	if resp != nil && resp.Request != nil && rfc9111.UnsafeMethod(resp.Request.Method) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// clientLogger adapts zerolog to retryablehttp.LeveledLogger and
// resty.Logger.
type clientLogger struct {
	log zerolog.Logger
}

func (l clientLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l clientLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l clientLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace().Fields(keysAndValues).Msg(msg)
}

func (l clientLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l clientLogger) Errorf(format string, v ...interface{}) {
	l.log.Error().Msgf(format, v...)
}

func (l clientLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

func (l clientLogger) Debugf(format string, v ...interface{}) {
	l.log.Trace().Msgf(format, v...)
}
