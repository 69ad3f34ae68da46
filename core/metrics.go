package core

import (
	"context"
	"sync"
)

const (
	MetricEventsReceived    = "maid.events.received"
	MetricEventsDropped     = "maid.events.dropped"
	MetricHandlerFailures   = "maid.handlers.failed"
	MetricActionsReceived   = "maid.actions.received"
	MetricSnippetsPrompted  = "maid.snippets.prompted"
	MetricSnippetsExported  = "maid.snippets.exported"
	MetricSnippetsDiscarded = "maid.snippets.discarded"
	MetricSnippetsFailed    = "maid.snippets.failed"
)

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MemoryMetricsRecorder keeps counter totals in process. Tags are ignored.
type MemoryMetricsRecorder struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryMetricsRecorder() *MemoryMetricsRecorder {
	return &MemoryMetricsRecorder{counters: map[string]int64{}}
}

func (r *MemoryMetricsRecorder) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]int64{}
	}
	r.counters[name] += value
}

func (r *MemoryMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (r *MemoryMetricsRecorder) Counter(name string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*MemoryMetricsRecorder)(nil)
)
