package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var perfMeter = otel.Meter("catalogsync.perf_stats")
var (
	cpuGauge, _       = perfMeter.Float64Gauge("cpu_usage_percent")
	rssGauge, _       = perfMeter.Int64Gauge("process_rss_mb")
	heapGauge, _      = perfMeter.Int64Gauge("heap_alloc_mb")
	goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")
)

type perfSample struct {
	cpuPercent float64
	rssMB      int64
	heapMB     int64
	goroutines int64
}

func samplePerf(ctx context.Context, self *process.Process) perfSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	sample := perfSample{
		heapMB:     int64(memStats.HeapAlloc / 1_000_000),
		goroutines: int64(runtime.NumGoroutine()),
	}

	usage, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		slog.DebugContext(ctx, "failed to read cpu usage", "err", err)
	} else if len(usage) > 0 {
		sample.cpuPercent = usage[0]
	}

	if self != nil {
		mem, err := self.MemoryInfoWithContext(ctx)
		if err != nil {
			slog.DebugContext(ctx, "failed to read process memory", "err", err)
		} else {
			sample.rssMB = int64(mem.RSS / 1_000_000)
		}
	}
	return sample
}

// InstrumentPerfStats records process gauges every interval until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		slog.DebugContext(ctx, "process stats unavailable", "err", err)
		self = nil
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sample := samplePerf(ctx, self)
				cpuGauge.Record(ctx, sample.cpuPercent)
				rssGauge.Record(ctx, sample.rssMB)
				heapGauge.Record(ctx, sample.heapMB)
				goroutineGauge.Record(ctx, sample.goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
