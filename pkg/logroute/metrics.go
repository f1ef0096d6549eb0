package logroute

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

const (
	dropReasonThrottled  = "throttled"
	dropReasonQueueFull  = "queue_full"
	dropReasonClosed     = "closed"
	dropReasonSendFailed = "send_failed"
	dropReasonEmitError  = "emit_error"
)

func countDelivered(handler string) {
	metrics.GetOrCreateCounter(
		fmt.Sprintf(`logwire_records_total{handler=%q}`, handler),
	).Inc()
}

func countDropped(handler, reason string) {
	metrics.GetOrCreateCounter(
		fmt.Sprintf(`logwire_records_dropped_total{handler=%q, reason=%q}`, handler, reason),
	).Inc()
}
