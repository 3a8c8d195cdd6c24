package debug

// Runtime stats logger, started only when config.Debug is true. Long
// capture sessions leak handles or goroutines before they leak anything
// else, so goroutine count and heap state are the first numbers to watch.

import (
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// StartRuntimeLogger launches a ticker that logs goroutine and memory
// stats at the given interval.
func StartRuntimeLogger(interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		for range t.C {
			metrics.Read(samples)
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			logger.Debug("runtime.stats",
				slog.Uint64("goroutines", samples[0].Value.Uint64()),
				slog.Uint64("heap_alloc", ms.HeapAlloc),
				slog.Uint64("heap_inuse", ms.HeapInuse),
				slog.Uint64("stack_inuse", uint64(ms.StackInuse)),
				slog.Uint64("rss", workingSet()),
				slog.Uint64("num_gc", uint64(ms.NumGC)),
			)
		}
	}()
}
