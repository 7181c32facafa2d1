package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application counters
type Metrics struct {
	RequestsTotal    uint64
	RequestsFailed   uint64
	AnalysesTotal    uint64
	AnalysesRunning  uint64
	AnalysesFailed   uint64
	FindingsReported uint64
	StartTime        time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementRequestsFailed increments failed request counter
func IncrementRequestsFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementAnalyses increments total analyses counter
func IncrementAnalyses() {
	atomic.AddUint64(&globalMetrics.AnalysesTotal, 1)
}

// IncrementAnalysesRunning increments running analyses counter
func IncrementAnalysesRunning() {
	atomic.AddUint64(&globalMetrics.AnalysesRunning, 1)
}

// DecrementAnalysesRunning decrements running analyses counter
func DecrementAnalysesRunning() {
	atomic.AddUint64(&globalMetrics.AnalysesRunning, ^uint64(0))
}

// IncrementAnalysesFailed increments failed analyses counter
func IncrementAnalysesFailed() {
	atomic.AddUint64(&globalMetrics.AnalysesFailed, 1)
}

// AddFindings adds to the reported findings counter
func AddFindings(n int) {
	if n > 0 {
		atomic.AddUint64(&globalMetrics.FindingsReported, uint64(n))
	}
}

// GetMetrics returns current counters plus runtime stats
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":    atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_failed":   atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"analyses_total":    atomic.LoadUint64(&globalMetrics.AnalysesTotal),
		"analyses_running":  atomic.LoadUint64(&globalMetrics.AnalysesRunning),
		"analyses_failed":   atomic.LoadUint64(&globalMetrics.AnalysesFailed),
		"findings_reported": atomic.LoadUint64(&globalMetrics.FindingsReported),
		"uptime_seconds":    int64(time.Since(globalMetrics.StartTime).Seconds()),
		"goroutines":        runtime.NumGoroutine(),
		"heap_alloc_bytes":  m.HeapAlloc,
	}
}

// MetricsHandler serves the counters as JSON
func MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(GetMetrics())
	}
}
