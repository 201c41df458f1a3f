package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		prefix string
		n      int64
		want   string
	}{
		{"SO", 1, "SO-001"},
		{"INV", 42, "INV-042"},
		{"SO", 999, "SO-999"},
		{"SO", 1000, "SO-1000"},
		{"INV", 123456, "INV-123456"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatNumber(tt.prefix, tt.n))
		})
	}
}

func TestNextIsDistinctUnderConcurrency(t *testing.T) {
	st := newMemStore()
	gen := NewSequenceGenerator(st)

	const callers = 200
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := gen.Next(context.Background(), SeriesOrder, PrefixOrder)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[n], "duplicate number %s", n)
			seen[n] = true
		}()
	}
	wg.Wait()

	assert.Len(t, seen, callers)
	for i := int64(1); i <= callers; i++ {
		assert.True(t, seen[FormatNumber(PrefixOrder, i)], "gap at %d", i)
	}
}

func TestSeriesAreIndependent(t *testing.T) {
	gen := NewSequenceGenerator(newMemStore())
	ctx := context.Background()

	so, err := gen.Next(ctx, SeriesOrder, PrefixOrder)
	require.NoError(t, err)
	inv, err := gen.Next(ctx, SeriesInvoice, PrefixInvoice)
	require.NoError(t, err)

	assert.Equal(t, "SO-001", so)
	assert.Equal(t, "INV-001", inv)
}

func TestSyncFromHighWaterNeverReusesNumbers(t *testing.T) {
	gen := NewSequenceGenerator(newMemStore())
	ctx := context.Background()

	err := gen.SyncFromHighWater(ctx, SeriesOrder, PrefixOrder, func(_ context.Context, prefix string) (int64, error) {
		assert.Equal(t, PrefixOrder, prefix)
		return 41, nil
	})
	require.NoError(t, err)

	n, err := gen.Next(ctx, SeriesOrder, PrefixOrder)
	require.NoError(t, err)
	assert.Equal(t, "SO-042", n)

	// A lower floor never moves the counter back.
	require.NoError(t, gen.Sync(ctx, SeriesOrder, 3))
	n, err = gen.Next(ctx, SeriesOrder, PrefixOrder)
	require.NoError(t, err)
	assert.Equal(t, "SO-043", n)
}

func TestSyncFromHighWaterPropagatesLookupError(t *testing.T) {
	gen := NewSequenceGenerator(newMemStore())
	boom := errors.New("db down")

	err := gen.SyncFromHighWater(context.Background(), SeriesInvoice, PrefixInvoice,
		func(context.Context, string) (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
