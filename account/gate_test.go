package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lunfardo314/ledgerchat/global"
	"github.com/lunfardo314/ledgerchat/model"
	"github.com/stretchr/testify/require"
)

const addr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type recordingSleep struct {
	total time.Duration
	n     int
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.n++
	r.total += d
	return ctx.Err()
}

func TestAcquireExhaustsAttempts(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		return "", ErrDeclined
	})
	rs := &recordingSleep{}
	g := NewGate(global.NewDefault(), provider, WithSleep(rs.sleep))

	_, err := g.Acquire(context.Background())
	require.True(t, errors.Is(err, global.ErrConnectionFailed))
	require.True(t, errors.Is(err, ErrDeclined))
	require.Equal(t, 3, calls)
	require.Equal(t, 2, rs.n)
	require.Equal(t, 2000*time.Millisecond, rs.total)
}

func TestAcquireSucceedsOnRetry(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", ErrDeclined
		}
		return addr, nil
	})
	rs := &recordingSleep{}
	g := NewGate(global.NewDefault(), provider, WithSleep(rs.sleep))

	id, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, id.Address)
	require.Equal(t, 3, calls)
	require.Equal(t, 2, rs.n)
	require.Equal(t, 2000*time.Millisecond, rs.total)

	// cached, provider is not asked again
	id, err = g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, id.Address)
	require.Equal(t, 3, calls)

	g.Reset()
	require.True(t, g.Identity().IsEmpty())
	_, err = g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, calls)
}

func TestBlankAddressIsRetried(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "  ", nil
		}
		return addr, nil
	})
	rs := &recordingSleep{}
	g := NewGate(global.NewDefault(), provider, WithSleep(rs.sleep))

	id, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, id.Address)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, rs.n)
}

func TestIdentityNotBlockedByBackoff(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", ErrDeclined
		}
		return addr, nil
	})
	sleeping := make(chan struct{})
	wakeUp := make(chan struct{})
	sleep := func(ctx context.Context, _ time.Duration) error {
		close(sleeping)
		<-wakeUp
		return ctx.Err()
	}
	g := NewGate(global.NewDefault(), provider, WithSleep(sleep))

	type result struct {
		id  model.Identity
		err error
	}
	acquired := make(chan result, 1)
	go func() {
		id, err := g.Acquire(context.Background())
		acquired <- result{id, err}
	}()
	<-sleeping

	done := make(chan bool, 1)
	go func() {
		empty := g.Identity().IsEmpty()
		g.Reset()
		done <- empty
	}()
	select {
	case empty := <-done:
		require.True(t, empty)
	case <-time.After(5 * time.Second):
		t.Fatal("Identity/Reset blocked during backoff")
	}
	close(wakeUp)

	res := <-acquired
	require.NoError(t, res.err)
	require.Equal(t, addr, res.id.Address)
	// reset during acquisition: the identity is not kept
	require.True(t, g.Identity().IsEmpty())

	_, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, g.Identity().Address)
	require.Equal(t, 3, calls)
}

func TestAcquireRespectsPolicy(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("wallet locked")
	})
	rs := &recordingSleep{}
	policy := RetryPolicy{
		MaxAttempts: 5,
		Delay: func(attempt int) time.Duration {
			return time.Duration(attempt) * 10 * time.Millisecond
		},
	}
	g := NewGate(global.NewDefault(), provider, WithSleep(rs.sleep), WithRetryPolicy(policy))

	_, err := g.Acquire(context.Background())
	require.Error(t, err)
	require.Equal(t, 5, calls)
	require.Equal(t, 100*time.Millisecond, rs.total)
}

func TestAcquireCanceled(t *testing.T) {
	calls := 0
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		calls++
		return "", nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGate(global.NewDefault(), provider)

	_, err := g.Acquire(ctx)
	require.True(t, errors.Is(err, global.ErrConnectionFailed))
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 1, calls)
}

func TestRealDelay(t *testing.T) {
	provider := FuncProvider(func(ctx context.Context) (string, error) {
		return "", nil
	})
	g := NewGate(global.NewDefault(), provider, WithRetryPolicy(RetryPolicy{MaxAttempts: 3, Delay: FixedDelay(20 * time.Millisecond)}))
	start := time.Now()
	_, err := g.Acquire(context.Background())
	require.Error(t, err)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestStaticProvider(t *testing.T) {
	g := NewGate(global.NewDefault(), StaticProvider(addr))
	id, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, addr, id.Address)
	require.False(t, id.Registered)
}
