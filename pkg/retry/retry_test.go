package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTimeout = errors.New("timeout")
	errFatal   = errors.New("fatal")
)

func isTimeout(err error) bool { return errors.Is(err, errTimeout) }

func TestLinearBackoff(t *testing.T) {
	b := Linear(time.Second)
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 2*time.Second, b(2))
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		MaxAttempts: 3,
		Backoff: func(n int) time.Duration {
			waits = append(waits, Linear(time.Second)(n))
			return time.Millisecond
		},
		Retryable: isTimeout,
	}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errTimeout
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestDoReturnsLastError(t *testing.T) {
	p := Policy{MaxAttempts: 3, Backoff: func(int) time.Duration { return 0 }, Retryable: isTimeout}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errTimeout
	})

	assert.ErrorIs(t, err, errTimeout)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := Default(isTimeout)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errFatal
	})

	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, Backoff: func(int) time.Duration { return time.Hour }, Retryable: isTimeout}

	err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return errTimeout
	})

	assert.ErrorIs(t, err, context.Canceled)
}
