package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nexuslab/nexus/pkg/logger"
)

// ErrCircuitOpen is returned when the breaker rejects a request because the
// upstream model has been failing consecutively.
var ErrCircuitOpen = errors.New("model circuit breaker is open")

// GuardedClientParams configures the protection wrapped around a ModelClient.
type GuardedClientParams struct {
	// MaxFailures is the number of consecutive failures that trips the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before admitting
	// trial calls again.
	OpenTimeout time.Duration
	// HalfOpenMaxSuccesses is the number of half-open successes needed to close.
	HalfOpenMaxSuccesses uint32
	// RequestsPerSecond caps the steady-state request rate. Zero disables
	// rate limiting.
	RequestsPerSecond float64
	// Burst is the rate limiter burst size. Defaults to 1 when rate
	// limiting is enabled.
	Burst int
	// CallTimeout bounds every individual model call. A hung upstream
	// otherwise stalls the single-processor worker forever, since the
	// breaker only counts calls that return. Zero disables the bound.
	CallTimeout time.Duration
}

// GuardedClient wraps a ModelClient with a circuit breaker and an optional
// rate limiter. Every chat, completion, and embedding request waits for a
// limiter slot and then runs through the breaker, so a flapping upstream
// stops being hammered and queue retries get a chance to succeed later.
type GuardedClient struct {
	inner       ModelClient
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	callTimeout time.Duration
}

// NewGuardedClient wraps inner with breaker and limiter protection.
func NewGuardedClient(inner ModelClient, params GuardedClientParams) *GuardedClient {
	if params.MaxFailures == 0 {
		params.MaxFailures = 3
	}
	if params.OpenTimeout <= 0 {
		params.OpenTimeout = 30 * time.Second
	}
	if params.HalfOpenMaxSuccesses == 0 {
		params.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "ModelClient",
		MaxRequests: params.HalfOpenMaxSuccesses,
		Timeout:     params.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("[AI] Circuit state changed", "from", from.String(), "to", to.String())
		},
	}

	var limiter *rate.Limiter
	if params.RequestsPerSecond > 0 {
		burst := params.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(params.RequestsPerSecond), burst)
	}

	return &GuardedClient{
		inner:       inner,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		limiter:     limiter,
		callTimeout: params.CallTimeout,
	}
}

func (g *GuardedClient) execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}
	res, err := g.breaker.Execute(func() (any, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return res, err
}

// ChatTurn implements ModelClient.
func (g *GuardedClient) ChatTurn(
	ctx context.Context,
	messages []Message,
	tools []ToolDef,
	opts ...GenerateOption,
) (*Turn, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.ChatTurn(ctx, messages, tools, opts...)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Turn), nil
}

// GenerateCompletion implements ModelClient.
func (g *GuardedClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.GenerateCompletion(ctx, prompt, opts...)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// GenerateEmbedding implements ModelClient.
func (g *GuardedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	res, err := g.execute(ctx, func(ctx context.Context) (any, error) {
		return g.inner.GenerateEmbedding(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return res.([]float32), nil
}

// ResetMetrics implements ModelClient.
func (g *GuardedClient) ResetMetrics() {
	g.inner.ResetMetrics()
}

// GetMetrics implements ModelClient.
func (g *GuardedClient) GetMetrics() ModelMetrics {
	return g.inner.GetMetrics()
}
