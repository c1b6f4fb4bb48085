package advisory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"PairPilot/internal/domain/service"
	"PairPilot/internal/service/metrics"
	"PairPilot/internal/service/ratelimit"
	"PairPilot/pkg/config"
	apphttp "PairPilot/pkg/http"
	applogger "PairPilot/pkg/logger"
)

// Provider kinds accepted in configuration.
const (
	KindClaude   = "claude"
	KindOpenAI   = "openai"
	KindDeepSeek = "deepseek"
	KindLocal    = "local"
)

const breakerTrip = 3

var (
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("advisory: empty response")
	// ErrUnknownKind is returned for an unsupported provider kind.
	ErrUnknownKind = errors.New("advisory: unknown provider kind")
)

type kindDefaults struct {
	baseURL string
	model   string
}

var defaults = map[string]kindDefaults{
	KindClaude:   {baseURL: "https://api.anthropic.com/v1", model: "claude-3-5-sonnet-latest"},
	KindOpenAI:   {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	KindDeepSeek: {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	KindLocal:    {baseURL: "http://localhost:11434/v1", model: "llama3"},
}

// NewProviders builds a guarded provider for every enabled entry.
func NewProviders(cfgs []config.ProviderConfig, log *applogger.Logger) ([]service.AdvisoryProvider, error) {
	if log == nil {
		log = applogger.NewNop()
	}
	limiter := ratelimit.New(0, 1)
	out := make([]service.AdvisoryProvider, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.Enabled {
			continue
		}
		p, err := NewProvider(c)
		if err != nil {
			return nil, err
		}
		limiter.Configure(c.Name, c.RPS, c.Burst)
		out = append(out, NewGuard(p, limiter, c.Timeout, log))
		log.Info("advisory provider enabled",
			applogger.String("provider", c.Name),
			applogger.String("kind", c.Kind))
	}
	return out, nil
}

// NewProvider builds the unguarded client for one provider entry.
func NewProvider(c config.ProviderConfig) (service.AdvisoryProvider, error) {
	d, ok := defaults[c.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if c.BaseURL == "" {
		c.BaseURL = d.baseURL
	}
	if c.Model == "" {
		c.Model = d.model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := apphttp.NewClient(apphttp.WithTimeout(timeout))

	if c.Kind == KindClaude {
		return NewClaude(c, client), nil
	}
	return NewOpenAI(c, client), nil
}

// Guard wraps a provider with a token bucket, a circuit breaker that opens
// after three consecutive failures, and latency/error metrics.
type Guard struct {
	inner   service.AdvisoryProvider
	cb      *gobreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	timeout time.Duration
	log     *applogger.Logger
}

// NewGuard wraps p. A nil limiter disables rate limiting.
func NewGuard(p service.AdvisoryProvider, limiter *ratelimit.Limiter, timeout time.Duration, log *applogger.Logger) *Guard {
	if log == nil {
		log = applogger.NewNop()
	}
	name := p.Name()
	st := gobreaker.Settings{Name: name}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= breakerTrip }
	st.Interval = 0
	st.Timeout = 5 * time.Minute
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		metrics.AdvisoryBreakerState.WithLabelValues(name).Set(float64(to))
		log.Warn("advisory breaker state changed",
			applogger.String("provider", name),
			applogger.String("from", from.String()),
			applogger.String("to", to.String()))
	}
	return &Guard{
		inner:   p,
		cb:      gobreaker.NewCircuitBreaker(st),
		limiter: limiter,
		timeout: timeout,
		log:     log,
	}
}

func (g *Guard) Name() string { return g.inner.Name() }

// State exposes the breaker state.
func (g *Guard) State() gobreaker.State { return g.cb.State() }

func (g *Guard) Query(ctx context.Context, prompt string) (string, error) {
	name := g.inner.Name()
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, name); err != nil {
			metrics.AdvisoryErrors.WithLabelValues(name, "rate_limit").Inc()
			return "", fmt.Errorf("%s rate limit: %w", name, err)
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Query(ctx, prompt)
	})
	metrics.AdvisoryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AdvisoryErrors.WithLabelValues(name, errorReason(ctx, err)).Inc()
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return out.(string), nil
}

func errorReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "request"
	}
}
