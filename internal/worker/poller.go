package worker

import (
	"context"
	"log/slog"
	"time"

	"reservations/internal/domain/queue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	liveDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_live_depth",
		Help: "Messages on the live queue not yet acknowledged",
	})
	deadLetterDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_dead_letter_depth",
		Help: "Messages held in the dead-letter area",
	})
	pollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_depth_poll_errors_total",
		Help: "The total number of failed depth polls",
	})
)

type DepthInspector interface {
	Depths(ctx context.Context) (queue.Depths, error)
}

// DepthPoller samples transport depths into gauges so poison messages and
// storage trouble show up as separate signals.
type DepthPoller struct {
	inspector DepthInspector
	interval  time.Duration
	logger    *slog.Logger
}

func NewDepthPoller(inspector DepthInspector, interval time.Duration, logger *slog.Logger) *DepthPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepthPoller{
		inspector: inspector,
		interval:  interval,
		logger:    logger,
	}
}

func (p *DepthPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("depth poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.logger.Warn("failed to poll queue depths", "error", err)
			}
		}
	}
}

func (p *DepthPoller) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	d, err := p.inspector.Depths(pollCtx)
	if err != nil {
		pollErrors.Inc()
		return err
	}

	liveDepth.Set(float64(d.Live))
	deadLetterDepth.Set(float64(d.DeadLetter))
	return nil
}
