package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentLogAppendFailures counts payment log writes that failed after
// a verified payment. The verify path swallows the error, so this
// counter is the only signal of a lost audit entry.
var PaymentLogAppendFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "expertresume",
		Subsystem: "payment",
		Name:      "log_append_failures_total",
		Help:      "Payment log append failures on the verify path.",
	},
)
