package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StatusSetter is the part of *health.Server that Watch updates.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

var _ StatusSetter = (*health.Server)(nil)

// Watch runs Check every interval and mirrors the result into the gRPC health server
// under the empty (whole server) service name. It returns when ctx is done.
func (h *Checker) Watch(ctx context.Context, hs StatusSetter, interval time.Duration) {
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := h.Check(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			if last != status {
				log.Printf("health: not serving: %v", err)
			}
		}
		if status != last {
			hs.SetServingStatus("", status)
			last = status
		}
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			update()
		}
	}
}
