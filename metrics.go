package talsi

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"

	"github.com/akx/talsi/internal/core/kv"
)

// metricSet holds every metric this package records. It is process-wide, so
// counters from all open handles add up.
var metricSet = metrics.NewSet()

var (
	busyRetries  = metricSet.GetOrCreateCounter("talsi_busy_retries_total")
	sweptEntries = metricSet.GetOrCreateCounter("talsi_swept_entries_total")
	payloadBytes = metricSet.GetOrCreateHistogram("talsi_payload_bytes")
)

// WriteMetrics writes the package metrics to w in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metricSet.WritePrometheus(w)
}

func countOperation(op string) {
	metricSet.GetOrCreateCounter(fmt.Sprintf(`talsi_operations_total{op=%q}`, op)).Inc()
}

func countError(op string, err error) {
	class := kv.ErrorClass(err)
	if class == "" {
		class = "other"
	}
	metricSet.GetOrCreateCounter(fmt.Sprintf(`talsi_errors_total{op=%q,class=%q}`, op, class)).Inc()
}
