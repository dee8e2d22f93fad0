// Package account obtains the active account address from the account provider
// and turns it into the session identity
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/spf13/viper"
)

type (
	environment interface {
		global.Logging
	}

	// Provider is the external wallet holding the account keys
	Provider interface {
		RequestActiveAddress(ctx context.Context) (string, error)
	}

	// FuncProvider adapts function to Provider
	FuncProvider func(ctx context.Context) (string, error)

	// StaticProvider always answers with the configured address
	StaticProvider string

	// RetryPolicy defines how many times the provider is asked and how long to wait between attempts.
	// Delay receives the number of the failed attempt, starting from 1
	RetryPolicy struct {
		MaxAttempts int
		Delay       func(attempt int) time.Duration
	}

	Gate struct {
		environment
		provider Provider
		policy   RetryPolicy
		sleep    func(ctx context.Context, d time.Duration) error

		// acquireMutex serializes acquisitions. mutex guards identity only, so
		// Identity and Reset do not wait for the provider or for the backoff
		acquireMutex sync.Mutex
		mutex        sync.Mutex
		identity     model.Identity
		resets       int
	}

	ConfigOption func(g *Gate)
)

const (
	TraceTag            = "account"
	DefaultMaxAttempts  = 3
	DefaultAttemptDelay = 1000 * time.Millisecond
)

// ErrDeclined is returned by providers when the user declines access to the account
var ErrDeclined = errors.New("account request declined")

func (f FuncProvider) RequestActiveAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

func (s StaticProvider) RequestActiveAddress(_ context.Context) (string, error) {
	return string(s), nil
}

func FixedDelay(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return d
	}
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       FixedDelay(DefaultAttemptDelay),
	}
}

// RetryPolicyFromConfig reads 'account.max_attempts' and 'account.backoff_ms'
func RetryPolicyFromConfig() RetryPolicy {
	ret := DefaultRetryPolicy()
	if n := viper.GetInt("account.max_attempts"); n > 0 {
		ret.MaxAttempts = n
	}
	if ms := viper.GetInt("account.backoff_ms"); ms > 0 {
		ret.Delay = FixedDelay(time.Duration(ms) * time.Millisecond)
	}
	return ret
}

func WithRetryPolicy(p RetryPolicy) ConfigOption {
	return func(g *Gate) {
		if p.MaxAttempts > 0 {
			g.policy.MaxAttempts = p.MaxAttempts
		}
		if p.Delay != nil {
			g.policy.Delay = p.Delay
		}
	}
}

// WithSleep replaces the wait between attempts. Used in tests
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ConfigOption {
	return func(g *Gate) {
		g.sleep = sleep
	}
}

func NewGate(env environment, provider Provider, opts ...ConfigOption) *Gate {
	ret := &Gate{
		environment: env,
		provider:    provider,
		policy:      DefaultRetryPolicy(),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire returns identity of the active account. The provider is asked up to MaxAttempts times.
// Once acquired, the identity is returned without asking the provider again until Reset
func (g *Gate) Acquire(ctx context.Context) (model.Identity, error) {
	g.acquireMutex.Lock()
	defer g.acquireMutex.Unlock()

	g.mutex.Lock()
	if !g.identity.IsEmpty() {
		defer g.mutex.Unlock()
		return g.identity, nil
	}
	resets := g.resets
	g.mutex.Unlock()

	var lastErr error
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		addr, err := g.provider.RequestActiveAddress(ctx)
		addr = strings.TrimSpace(addr)
		if err == nil && addr != "" {
			id := model.Identity{Address: addr}
			g.mutex.Lock()
			// Reset while asking the provider: the identity is returned but not kept
			if g.resets == resets {
				g.identity = id
			}
			g.mutex.Unlock()
			g.Infof1("[account] connected to %s after %d attempt(s)", addr, attempt)
			return id, nil
		}
		switch {
		case err != nil:
			lastErr = err
		default:
			lastErr = fmt.Errorf("provider returned no active address")
		}
		g.Tracef(TraceTag, "attempt %d/%d failed: %v", attempt, g.policy.MaxAttempts, lastErr)
		if attempt == g.policy.MaxAttempts {
			break
		}
		if err = g.sleep(ctx, g.policy.Delay(attempt)); err != nil {
			return model.Identity{}, global.NewError(global.KindConnectionFailed, "connect", err)
		}
	}
	g.Log().Warnf("[account] failed to connect after %d attempts: %v", g.policy.MaxAttempts, lastErr)
	return model.Identity{}, global.NewError(global.KindConnectionFailed, "connect",
		fmt.Errorf("no active account after %d attempts: %w", g.policy.MaxAttempts, lastErr))
}

// Identity returns acquired identity or empty one
func (g *Gate) Identity() model.Identity {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.identity
}

// Reset forgets the acquired identity. Next Acquire asks the provider again
func (g *Gate) Reset() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.identity = model.Identity{}
	g.resets++
}
