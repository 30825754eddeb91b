// Package healthcheck keeps the gRPC health status in line with the database.
package healthcheck

import (
	"context"
	"time"

	"github.com/triage-ai/icio-mcp/internal/metrics"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the tool server.
const ServiceName = "icio.mcp.v1.Tools"

const probeTimeout = 5 * time.Second

// Pinger checks that the data store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSetter is implemented by *health.Server.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Prober periodically pings the database and publishes the result.
type Prober struct {
	pinger   Pinger
	health   StatusSetter
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *zap.Logger
	lastUp   *bool
}

// NewProber creates a Prober. The metrics argument may be nil.
func NewProber(p Pinger, h StatusSetter, m *metrics.Metrics, interval time.Duration, logger *zap.Logger) *Prober {
	return &Prober{
		pinger:   p,
		health:   h,
		metrics:  m,
		interval: interval,
		logger:   logger,
	}
}

// Run probes immediately and then every interval until ctx is cancelled.
// On return the service is marked NOT_SERVING.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			p.set(healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe runs a single check and reports whether the database answered.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	up := err == nil

	if p.lastUp == nil || *p.lastUp != up {
		if up {
			p.logger.Info("database probe healthy")
		} else {
			p.logger.Warn("database probe failed", zap.Error(err))
		}
	}
	p.lastUp = &up

	p.metrics.SetDatabaseUp(up)
	if up {
		p.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		p.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return up
}

func (p *Prober) set(status healthpb.HealthCheckResponse_ServingStatus) {
	p.health.SetServingStatus("", status)
	p.health.SetServingStatus(ServiceName, status)
}
