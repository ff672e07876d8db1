package assistant

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = 5 * time.Minute

// EvictCallback is called when a manager is evicted by the TTL worker.
type EvictCallback func(userID string)

// StartTTLWorker runs a background goroutine that periodically closes
// managers idle for longer than ttl. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, reg *Registry, ttl, interval time.Duration, onEvict EvictCallback) {
	if interval <= 0 {
		interval = ttlWorkerInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				evictIdle(reg, ttl, onEvict)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func evictIdle(reg *Registry, ttl time.Duration, onEvict EvictCallback) int {
	idle := reg.idleSince(ttl)
	if len(idle) == 0 {
		return 0
	}

	slog.Info("TTL worker found idle assistants", "count", len(idle))
	evicted := 0
	for _, userID := range idle {
		// Activity since the scan keeps the manager alive.
		if !reg.removeIdle(userID, ttl) {
			continue
		}
		evicted++
		slog.Info("TTL worker evicted assistant", "user_id", userID)
		if onEvict != nil {
			onEvict(userID)
		}
	}
	slog.Info("TTL worker cleanup completed", "evicted", evicted)
	return evicted
}
