package metrics

import (
	"runtime"
	"time"
)

// RuntimeStats is a point-in-time view of the Go runtime
type RuntimeStats struct {
	Goroutines  int     `json:"goroutines"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	HeapSysMB   float64 `json:"heap_sys_mb"`
	NumGC       uint32  `json:"num_gc"`
	Uptime      string  `json:"uptime"`
}

var startedAt = time.Now()

// Snapshot reads current runtime statistics. ReadMemStats stops the world
// briefly; call it per health request, not per job.
func Snapshot() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: bytesToMB(m.HeapAlloc),
		HeapSysMB:   bytesToMB(m.HeapSys),
		NumGC:       m.NumGC,
		Uptime:      time.Since(startedAt).Round(time.Second).String(),
	}
}

func bytesToMB(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
