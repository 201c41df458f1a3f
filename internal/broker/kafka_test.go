package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestConsumer() *Consumer {
	return &Consumer{logger: zap.NewNop(), attempts: 3, backoff: time.Millisecond}
}

func TestHandleRetriesUntilHandlerSucceeds(t *testing.T) {
	c := newTestConsumer()
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}

	err := c.handle(context.Background(), kafka.Message{Key: []byte("SO-001")}, handler)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandleGivesUpAfterAttempts(t *testing.T) {
	c := newTestConsumer()
	failure := errors.New("malformed payload")
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		return failure
	}

	err := c.handle(context.Background(), kafka.Message{Key: []byte("SO-002")}, handler)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, calls)
}

func TestHandleStopsRetryingWhenCancelled(t *testing.T) {
	c := newTestConsumer()
	c.backoff = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		cancel()
		return errors.New("store unavailable")
	}

	err := c.handle(ctx, kafka.Message{}, handler)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestHandleRunsOnceWithoutRetryBudget(t *testing.T) {
	c := &Consumer{logger: zap.NewNop()}
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		return errors.New("boom")
	}

	assert.Error(t, c.handle(context.Background(), kafka.Message{}, handler))
	assert.Equal(t, 1, calls)
}
