package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/solwatch/soltrail/pkg/observability"
)

// ClientInterface defines the methods for issuing logical JSON-RPC calls
// against the endpoint pool
type ClientInterface interface {
	// Call issues one logical JSON-RPC request, rotating across endpoints
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	// GetSignaturesForAddress lists transaction signatures for an address
	GetSignaturesForAddress(ctx context.Context, address string, opts ListOptions) ([]SignatureInfo, error)
	// GetTransaction fetches the full payload for one signature
	GetTransaction(ctx context.Context, signature string) (json.RawMessage, error)
	// Health returns a snapshot of every endpoint's counters
	Health() []EndpointHealth
	// Start verifies connectivity
	Start(ctx context.Context) error
	// Stop closes idle connections
	Stop() error
}

// Pool is a multi-endpoint JSON-RPC client. One logical Call rotates over
// the configured endpoints, failing over on transient errors and failing
// fast on fatal ones. Rotation state is pool-wide so consecutive calls
// spread load across healthy endpoints.
type Pool struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	endpoints  []string
	health     *HealthTracker
	limiters   []*rate.Limiter

	maxAttempts    int
	requestTimeout time.Duration
	debug          bool

	// rotation cursor, shared across all calls
	mu     sync.Mutex
	cursor uint64

	reqID atomic.Uint64
}

// NewPool creates a pool over the configured endpoints with a fresh
// health tracker and per-endpoint rate limiters.
func NewPool(log logrus.FieldLogger, cfg *Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.SetDefaults()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.KeepAlive,
		DisableKeepAlives:   false,
	}

	limiters := make([]*rate.Limiter, len(cfg.Endpoints))
	for i := range limiters {
		limiters[i] = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burstFor(cfg.RequestsPerSecond))
	}

	return &Pool{
		log:            log.WithField("component", "solana-pool"),
		httpClient:     &http.Client{Transport: transport},
		endpoints:      cfg.Endpoints,
		health:         NewHealthTracker(cfg.Endpoints, cfg.CooldownThreshold, cfg.Cooldown),
		limiters:       limiters,
		maxAttempts:    cfg.EffectiveMaxAttempts(),
		requestTimeout: cfg.RequestTimeout,
		debug:          cfg.Debug,
	}, nil
}

func burstFor(rps float64) int {
	burst := int(rps)
	if float64(burst) < rps {
		burst++
	}

	if burst < 1 {
		burst = 1
	}

	return burst
}

// Start verifies at least one endpoint answers a getHealth probe.
func (p *Pool) Start(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	if _, err := p.Call(probeCtx, "getHealth"); err != nil {
		return fmt.Errorf("failed to reach any RPC endpoint: %w", err)
	}

	p.log.WithField("endpoints", len(p.endpoints)).Info("Connected to Solana RPC pool")

	return nil
}

// Stop closes idle connections toward the endpoints.
func (p *Pool) Stop() error {
	if p.httpClient != nil {
		p.httpClient.CloseIdleConnections()
	}

	p.log.Info("Closed Solana RPC pool")

	return nil
}

// Health returns a snapshot of every endpoint's counters.
func (p *Pool) Health() []EndpointHealth {
	return p.health.Snapshot()
}

// Call issues one logical JSON-RPC request. It tries endpoints in
// rotation until one succeeds, the attempt budget runs out, or a fatal
// request error is hit. The returned error is nil, a *FatalRequestError,
// or an *ExhaustedError.
func (p *Pool) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	attempts := make(map[string]int, len(p.endpoints))

	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx := p.nextEndpoint()
		url := p.endpoints[idx]

		if err := p.limiters[idx].Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		result, err := p.issue(ctx, url, method, params)
		latency := time.Since(start)
		attempts[url]++

		if err == nil {
			p.health.RecordOutcome(idx, true, latency)
			observability.RecordRPCRequest(url, method, "success", latency.Seconds())

			return result, nil
		}

		if IsFatal(err) {
			// The request is at fault, not the endpoint: the node
			// answered, so its health is unaffected and rotating
			// cannot help.
			p.health.RecordOutcome(idx, true, latency)
			observability.RecordRPCRequest(url, method, "fatal", latency.Seconds())

			return nil, err
		}

		p.health.RecordOutcome(idx, false, latency)
		observability.RecordRPCRequest(url, method, "transient", latency.Seconds())

		lastErr = err

		p.log.WithError(err).WithFields(logrus.Fields{
			"endpoint": url,
			"method":   method,
			"attempt":  attempt + 1,
		}).Debug("Endpoint attempt failed, rotating")
	}

	observability.RecordRPCExhausted(method)

	return nil, &ExhaustedError{Method: method, Attempts: attempts, LastErr: lastErr}
}

// nextEndpoint advances the pool-wide rotation cursor over the ranked
// endpoint list, skipping endpoints that are cooling down. If every
// endpoint is cooling down the next one in rotation is used anyway, so
// a call never spins without issuing a request.
func (p *Pool) nextEndpoint() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ranked := p.health.Rank()
	n := len(ranked)

	for i := 0; i < n; i++ {
		idx := ranked[int(p.cursor%uint64(n))] //nolint:gosec // cursor is non-negative
		p.cursor++

		if p.health.Eligible(idx) {
			return idx
		}
	}

	idx := ranked[int(p.cursor%uint64(n))] //nolint:gosec // cursor is non-negative
	p.cursor++

	return idx
}
