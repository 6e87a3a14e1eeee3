package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleWithRetry(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), retryWait: time.Millisecond}

	attempts := 0
	handle := func(ctx context.Context, msgs []Message) error {
		attempts++
		if attempts < 3 {
			return errors.New("broker hiccup")
		}
		return nil
	}

	err := c.handleWithRetry(context.Background(), []Message{{ID: "a"}}, handle)
	require.NoError(t, err)

	// the same batch is retried in place until it succeeds
	assert.Equal(t, 3, attempts)
}

func TestHandleWithRetryStopsOnCancel(t *testing.T) {
	c := &Consumer{logger: zap.NewNop(), retryWait: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	handle := func(ctx context.Context, msgs []Message) error {
		cancel()
		return errors.New("still failing")
	}

	err := c.handleWithRetry(ctx, []Message{{ID: "a"}}, handle)
	assert.ErrorIs(t, err, context.Canceled)
}
