package worker

import (
	"context"

	"github.com/okian/ghostrelay/pkg/logger"
	"github.com/okian/ghostrelay/pkg/metrics"
)

// LogPublisher writes committed readings to the structured log. It is the
// sink used when no broker is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher returns a LogPublisher. A nil logger selects the global one.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.Get().Named("notifier")
	}
	return &LogPublisher{logger: l}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value
	p.logger.Info(ctx, "reading committed",
		logger.String("event_id", e.EventID),
		logger.String("device_address", e.DeviceAddress),
		logger.Uint64("token_id", e.TokenID),
		logger.String("grid_status", string(e.GridStatus)),
		logger.Int("old_health", e.OldHealth),
		logger.Int("health", e.Health),
		logger.String("appearance", e.Appearance),
		logger.String("tx_hash", e.TransactionHash),
		logger.Bool("integration_triggered", e.IntegrationTriggered),
	)
	metrics.RecordNotificationPublished("log")
	return nil
}
