package service

import (
	"context"
	"fmt"

	"erp-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Document series and their number prefixes.
const (
	SeriesOrder   = "order"
	PrefixOrder   = "SO"
	SeriesInvoice = "invoice"
	PrefixInvoice = "INV"
)

// SequenceGenerator allocates human-readable document numbers from an atomic counter
type SequenceGenerator struct {
	counter Counter
	logger  *zap.Logger
}

// NewSequenceGenerator creates a new sequence generator
func NewSequenceGenerator(counter Counter) *SequenceGenerator {
	return &SequenceGenerator{
		counter: counter,
		logger:  util.ComponentLogger("sequence"),
	}
}

// FormatNumber renders PREFIX-NNN, widening past 999 instead of wrapping.
func FormatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// Next returns the next number in series. Concurrent callers never receive
// the same value.
func (g *SequenceGenerator) Next(ctx context.Context, series, prefix string) (string, error) {
	ctx, span := util.StartSpan(ctx, "SequenceGenerator.Next", attribute.String("series", series))
	defer span.End()

	n, err := g.counter.IncrementSequence(ctx, series)
	if err != nil {
		return "", util.RecordError(span, fmt.Errorf("failed to allocate %s number: %w", series, err))
	}

	util.SequenceAllocationsTotal.WithLabelValues(series).Inc()
	return FormatNumber(prefix, n), nil
}

// Sync raises the series counter to at least floor.
func (g *SequenceGenerator) Sync(ctx context.Context, series string, floor int64) error {
	if err := g.counter.SyncSequence(ctx, series, floor); err != nil {
		return fmt.Errorf("failed to sync %s sequence: %w", series, err)
	}
	return nil
}

// SyncFromHighWater raises the counter past the largest number already
// stored for prefix, so existing documents are never renumbered over.
func (g *SequenceGenerator) SyncFromHighWater(
	ctx context.Context,
	series, prefix string,
	highWater func(ctx context.Context, prefix string) (int64, error),
) error {
	floor, err := highWater(ctx, prefix)
	if err != nil {
		return err
	}
	if err := g.Sync(ctx, series, floor); err != nil {
		return err
	}

	g.logger.Info("Sequence synced",
		zap.String("series", series),
		zap.Int64("floor", floor))
	return nil
}
