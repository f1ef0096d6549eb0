package sweeper

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

type jobMetrics struct {
	SuccessCounter *metrics.Counter
	FailCounter    *metrics.Counter
	PanicCounter   *metrics.Counter

	SuccessDuration *metrics.Histogram
	FailDuration    *metrics.Histogram
}

func (s *Sweeper) jobMetricsFor(job string) *jobMetrics {
	// hot path, metrics are already registered, need only to return them
	// multiple goroutines may try to get metrics, so read lock is used
	s.jobMetricsMu.RLock()
	m, exists := s.jobMetrics[job]
	if exists {
		s.jobMetricsMu.RUnlock()
		return m
	}

	s.jobMetricsMu.RUnlock()

	// metrics are not registered, need to register and save them
	// need to write to map, so we need exclusive lock
	s.jobMetricsMu.Lock()
	defer s.jobMetricsMu.Unlock()

	// multiple goroutines may be here, so need to check are metrics registered
	// by another goroutine earlier
	m, exists = s.jobMetrics[job]
	if exists {
		return m
	}

	template := `%s{status=%q, job=%q}`
	m = &jobMetrics{
		SuccessCounter: metrics.GetOrCreateCounter(
			fmt.Sprintf(template, "sweep_items_total", "success", job),
		),
		FailCounter: metrics.GetOrCreateCounter(
			fmt.Sprintf(template, "sweep_items_total", "fail", job),
		),
		PanicCounter: metrics.GetOrCreateCounter(
			fmt.Sprintf(template, "sweep_items_total", "paniced", job),
		),

		SuccessDuration: metrics.GetOrCreateHistogram(
			fmt.Sprintf(template, "sweep_item_duration", "success", job),
		),
		FailDuration: metrics.GetOrCreateHistogram(
			fmt.Sprintf(template, "sweep_item_duration", "fail", job),
		),
	}

	s.jobMetrics[job] = m

	return m
}
