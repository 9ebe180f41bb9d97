// Package stats collects the runtime metrics of the gateway. Counters,
// gauges and histograms are kept in the VictoriaMetrics default set and are
// exposed in the Prometheus text format. Latency timers are kept in a
// go-metrics registry that can be written to the log periodically.
package stats

import (
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

// Registry holds the latency timers of all components
var Registry = gometrics.NewRegistry()

// Timer returns the timer registered under name, creating it if needed
func Timer(name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer(name, Registry)
}

// Counter returns the Prometheus counter registered under name
func Counter(name string) *metrics.Counter {
	return metrics.GetOrCreateCounter(name)
}

// Gauge returns the Prometheus gauge registered under name. If the gauge
// already exists f is ignored.
func Gauge(name string, f func() float64) *metrics.Gauge {
	return metrics.GetOrCreateGauge(name, f)
}

// Histogram returns the Prometheus histogram registered under name
func Histogram(name string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(name)
}

// WritePrometheus writes all counters, gauges and histograms together with
// the process metrics in the Prometheus text format
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

// printfLogger adapts a dragonboat logger to the go-metrics logger interface
type printfLogger struct {
	l logger.ILogger
}

func (p printfLogger) Printf(format string, args ...interface{}) {
	p.l.Infof(format, args...)
}

// StartReporter logs a snapshot of all timers every interval, durations are
// reported in milliseconds. A non positive interval disables the reporter.
// The reporter runs for the lifetime of the process.
func StartReporter(interval time.Duration, l logger.ILogger) {
	if interval <= 0 {
		return
	}
	go gometrics.LogScaled(Registry, interval, time.Millisecond, printfLogger{l: l})
}
