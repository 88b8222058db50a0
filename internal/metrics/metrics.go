package metrics

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	terminationsRequested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "drainexit",
		Name:      "terminations_requested_total",
		Help:      "Number of drain-then-exit requests.",
	})

	streamsPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "drainexit",
		Name:      "streams_pending",
		Help:      "Streams still holding buffered bytes for the active termination.",
	})

	drainWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "drainexit",
		Name:      "drain_wait_seconds",
		Help:      "Time between a termination request and the last stream draining.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	exits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drainexit",
		Name:      "exits_total",
		Help:      "Exit primitive invocations by status.",
	}, []string{"status"})

	scenarioRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drainexit",
		Name:      "scenario_runs_total",
		Help:      "Harness scenario runs by outcome.",
	}, []string{"scenario", "outcome"})

	scenarioLines = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "drainexit",
		Name:      "scenario_lines",
		Help:      "Lines captured from the producer in the last run of a scenario.",
	}, []string{"scenario"})

	scenarioDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "drainexit",
		Name:      "scenario_duration_seconds",
		Help:      "Wall time of harness scenario runs.",
	}, []string{"scenario"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "drainexit",
		Name:      "build_info",
		Help:      "Build metadata for the running drainexit binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(
		terminationsRequested,
		streamsPending,
		drainWait,
		exits,
		scenarioRuns,
		scenarioLines,
		scenarioDuration,
		buildInfo,
	)
}

// Registry returns the Prometheus registry containing all drainexit metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveTerminationRequest records a termination request and the number of
// streams that were not yet drained when it was made.
func ObserveTerminationRequest(pending int) {
	terminationsRequested.Inc()
	streamsPending.Set(float64(pending))
}

// ObserveExit records the exit status and how long draining took.
func ObserveExit(status int, waited time.Duration) {
	streamsPending.Set(0)
	drainWait.Observe(waited.Seconds())
	exits.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveScenario records the outcome of a harness scenario run.
func ObserveScenario(name string, passed bool, lines int, d time.Duration) {
	if name == "" {
		name = "unnamed"
	}
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	scenarioRuns.WithLabelValues(name, outcome).Inc()
	scenarioLines.WithLabelValues(name).Set(float64(lines))
	scenarioDuration.WithLabelValues(name).Observe(d.Seconds())
}

// WriteTextfile exports the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
