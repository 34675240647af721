package store

import (
	"context"
	"time"
)

// DefaultGCDiscardRatio is the share of a value log file that must be garbage before
// it is rewritten.
const DefaultGCDiscardRatio = 0.5

// GarbageCollector is implemented by KV backends that reclaim space periodically.
type GarbageCollector interface {
	CollectGarbage(discardRatio float64) error
}

// RunGC collects garbage on the underlying KV every interval until ctx is done.
// It returns at once when the backend does not collect garbage or interval is not positive.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) error {
	gc, ok := s.kv.(GarbageCollector)
	if !ok || interval <= 0 {
		return nil
	}
	l := s.Conversations.logger
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := gc.CollectGarbage(DefaultGCDiscardRatio); err != nil {
				l.Warn("Value log GC failed", "error", err)
				continue
			}
			l.Debug("Value log GC pass completed")
		}
	}
}
