// Package dispatch maps wascc keyvalue operations onto a store.Store.
//
// Each inbound call names an operation and carries a JSON payload. Provider
// decodes the payload, makes exactly one store call, and encodes the result.
// Calls from the system actor manage per-actor configuration.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ewbankkit/wascc-keyvalue/algorithms"
	"github.com/ewbankkit/wascc-keyvalue/store"
)

const (
	CapabilityID = "wascc:keyvalue"
	SystemActor  = "system"
	providerName = "waSCC Key-Value Capability Provider"
)

var (
	// ErrBadDispatch is returned for unknown operations and for lifecycle
	// operations sent by an actor other than the system actor.
	ErrBadDispatch = errors.New("bad dispatch")
	// ErrBadPayload is returned when a request payload cannot be decoded.
	ErrBadPayload = errors.New("bad payload")
	// ErrRateLimited is returned when an actor has used up its call budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnboundActor is returned for store calls from an actor that was
	// never configured, when the provider only serves bound actors.
	ErrUnboundActor = errors.New("actor not bound")
)

// RateLimitError reports when the rejected actor may call again.
type RateLimitError struct {
	Actor      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: actor %q may retry after %s", e.Actor, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

type handlerFunc func(ctx context.Context, msg []byte) ([]byte, error)

// Provider dispatches calls to a store. Safe for concurrent use.
type Provider struct {
	store    store.Store
	limiter  algorithms.RateLimiter
	logger   *slog.Logger
	handlers map[string]handlerFunc
	bound    bool

	mu      sync.RWMutex
	configs map[string]map[string]string
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithRateLimiter throttles store calls per actor.
func WithRateLimiter(limiter algorithms.RateLimiter) Option {
	return func(p *Provider) {
		p.limiter = limiter
	}
}

// WithBoundActorsOnly serves store calls only from actors configured
// through OP_CONFIGURE.
func WithBoundActorsOnly() Option {
	return func(p *Provider) {
		p.bound = true
	}
}

func New(s store.Store, opts ...Option) *Provider {
	p := &Provider{
		store:   s,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		configs: make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[string]handlerFunc{
		OpAdd:             call(p.add),
		OpGet:             call(p.get),
		OpSet:             call(p.set),
		OpDel:             call(p.del),
		OpPush:            call(p.push),
		OpListDel:         call(p.listDel),
		OpRange:           call(p.listRange),
		OpClear:           call(p.clear),
		OpSetAdd:          call(p.setAdd),
		OpSetRemove:       call(p.setRemove),
		OpSetUnion:        call(p.setUnion),
		OpSetIntersection: call(p.setIntersection),
		OpSetQuery:        call(p.setQuery),
		OpKeyExists:       call(p.keyExists),
	}
	return p
}

func (p *Provider) CapabilityID() string {
	return CapabilityID
}

func (p *Provider) Name() string {
	return providerName
}

// HandleCall runs op on behalf of actor with the JSON payload msg and returns
// the JSON encoded response.
func (p *Provider) HandleCall(ctx context.Context, actor, op string, msg []byte) ([]byte, error) {
	logger := p.logger.With("actor", actor, "op", op, "call_id", uuid.NewString())
	logger.DebugContext(ctx, "received host call")

	resp, err := p.dispatch(ctx, actor, op, msg)
	if err != nil {
		logger.WarnContext(ctx, "host call failed", "error", err)
		return nil, err
	}
	return resp, nil
}

func (p *Provider) dispatch(ctx context.Context, actor, op string, msg []byte) ([]byte, error) {
	switch op {
	case OpConfigure, OpRemoveActor:
		if actor != SystemActor {
			return nil, fmt.Errorf("%w: %s from actor %q", ErrBadDispatch, op, actor)
		}
		var cfg CapabilityConfiguration
		if err := json.Unmarshal(msg, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if cfg.Module == "" {
			return nil, fmt.Errorf("%w: configuration without module", ErrBadPayload)
		}
		if op == OpConfigure {
			p.configure(ctx, cfg)
			return nil, nil
		}
		return nil, p.removeActor(ctx, cfg.Module)
	}

	h, ok := p.handlers[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrBadDispatch, op)
	}
	if p.bound && !p.isBound(actor) {
		return nil, fmt.Errorf("%w: %q", ErrUnboundActor, actor)
	}
	if err := p.throttle(ctx, actor); err != nil {
		return nil, err
	}
	return h(ctx, msg)
}

func (p *Provider) throttle(ctx context.Context, actor string) error {
	if p.limiter == nil {
		return nil
	}
	result, err := p.limiter.Allow(ctx, actor)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if !result.Allowed {
		return &RateLimitError{Actor: actor, RetryAfter: result.RetryAfter}
	}
	return nil
}

func (p *Provider) configure(ctx context.Context, cfg CapabilityConfiguration) {
	p.mu.Lock()
	p.configs[cfg.Module] = maps.Clone(cfg.Values)
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "actor configured", "module", cfg.Module, "values", len(cfg.Values))
}

func (p *Provider) removeActor(ctx context.Context, module string) error {
	p.mu.Lock()
	delete(p.configs, module)
	p.mu.Unlock()

	if p.limiter != nil {
		if err := p.limiter.Reset(ctx, module); err != nil && !errors.Is(err, algorithms.ErrNoBucket) {
			return fmt.Errorf("reset rate limit for %q: %w", module, err)
		}
	}
	p.logger.InfoContext(ctx, "actor removed", "module", module)
	return nil
}

func (p *Provider) isBound(actor string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.configs[actor]
	return ok
}

// Configuration returns a copy of the values an actor was configured with.
func (p *Provider) Configuration(actor string) (map[string]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	values, ok := p.configs[actor]
	if !ok {
		return nil, false
	}
	return maps.Clone(values), true
}

// call adapts a typed operation to the JSON wire form.
func call[Req, Resp any](fn func(context.Context, Req) (Resp, error)) handlerFunc {
	return func(ctx context.Context, msg []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(msg, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}
}
