package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	terminal := errors.New("terminal")
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(err error) bool { return !errors.Is(err, terminal) }, func() error {
		attempts++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(error) bool { return true }, func() error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastPolicy(), func(error) bool { return true }, func() error {
		return errors.New("flaky")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffPolicy_DelayCapped(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Cap: 4 * time.Second}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(10))
}

func TestBackoffPolicy_Jitter(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Cap: time.Second, JitterMax: time.Second}
	for i := 0; i < 50; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}
