// Package metrics records checkout engine measurements on OpenTelemetry
// instruments.
package metrics

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storelink/checkout/internal/domain/checkout"
)

var _ checkout.Recorder = (*Recorder)(nil)

// Recorder implements checkout.Recorder on OTel instruments.
type Recorder struct {
	checkouts      metric.Int64Counter
	duration       metric.Float64Histogram
	stockConflicts metric.Int64Counter
	campaigns      metric.Int64Counter
}

// NewRecorder creates the checkout instruments on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	checkouts, err := meter.Int64Counter("checkout.requests",
		metric.WithDescription("Checkout attempts, by result."))
	if err != nil {
		return nil, errors.Wrap(err, "checkout.requests")
	}
	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, errors.Wrap(err, "checkout.duration")
	}
	stockConflicts, err := meter.Int64Counter("checkout.stock_conflicts",
		metric.WithDescription("Checkouts rejected for insufficient stock."))
	if err != nil {
		return nil, errors.Wrap(err, "checkout.stock_conflicts")
	}
	campaigns, err := meter.Int64Counter("checkout.campaigns_applied",
		metric.WithDescription("Campaigns applied to placed orders."))
	if err != nil {
		return nil, errors.Wrap(err, "checkout.campaigns_applied")
	}
	return &Recorder{
		checkouts:      checkouts,
		duration:       duration,
		stockConflicts: stockConflicts,
		campaigns:      campaigns,
	}, nil
}

// Checkout records one attempt and its latency, labeled by result.
func (r *Recorder) Checkout(ctx context.Context, result string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	r.checkouts.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// StockConflict counts a checkout rejected for insufficient stock.
func (r *Recorder) StockConflict(ctx context.Context) {
	r.stockConflicts.Add(ctx, 1)
}

// CampaignsApplied counts campaigns that made it onto placed orders.
func (r *Recorder) CampaignsApplied(ctx context.Context, count int) {
	r.campaigns.Add(ctx, int64(count))
}
