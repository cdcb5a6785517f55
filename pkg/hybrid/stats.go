package hybrid

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrenware/showcase/pkg/model"
)

// maxStats bounds the in-memory ring buffer.
const maxStats = 1000

// StatsRecorder keeps the last operation samples in memory for the
// dual-write status endpoint and mirrors them into prometheus counters.
// Samples are never persisted.
type StatsRecorder struct {
	mu   sync.Mutex
	buf  []model.OperationStat
	next int
	full bool

	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

// NewStatsRecorder registers the facade metrics on reg (may be nil to
// skip metrics entirely, e.g. in tests).
func NewStatsRecorder(reg prometheus.Registerer) *StatsRecorder {
	r := &StatsRecorder{buf: make([]model.OperationStat, maxStats)}
	r.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "showcase_hybrid_operations_total",
		Help: "Hybrid facade operations by source, type, entity and outcome",
	}, []string{"source", "operation", "entity", "success"})
	r.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "showcase_hybrid_operation_seconds",
		Help:    "Hybrid facade operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"source", "operation"})
	if reg != nil {
		reg.MustRegister(r.operations, r.latency)
	}
	return r
}

// Record appends one sample, overwriting the oldest once full.
func (r *StatsRecorder) Record(stat model.OperationStat) {
	if stat.Timestamp.IsZero() {
		stat.Timestamp = time.Now()
	}
	r.mu.Lock()
	r.buf[r.next] = stat
	r.next = (r.next + 1) % maxStats
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	r.operations.WithLabelValues(stat.Source, stat.OperationType,
		string(stat.EntityType), strconv.FormatBool(stat.Success)).Inc()
	r.latency.WithLabelValues(stat.Source, stat.OperationType).
		Observe(stat.Latency.Seconds())
}

// Snapshot returns the recorded samples oldest-first.
func (r *StatsRecorder) Snapshot() []model.OperationStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]model.OperationStat, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]model.OperationStat, 0, maxStats)
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Summary aggregates the buffer into per-source success/failure counts.
type Summary struct {
	Total    int            `json:"total"`
	Failures int            `json:"failures"`
	BySource map[string]int `json:"bySource"`
	ByOp     map[string]int `json:"byOperation"`
}

// Summarize folds the current buffer into a Summary.
func (r *StatsRecorder) Summarize() Summary {
	stats := r.Snapshot()
	s := Summary{BySource: map[string]int{}, ByOp: map[string]int{}}
	for i := range stats {
		s.Total++
		if !stats[i].Success {
			s.Failures++
		}
		s.BySource[stats[i].Source]++
		s.ByOp[stats[i].OperationType]++
	}
	return s
}
