// Package metrics exposes Prometheus counters and gauges for the
// receive pipeline: samples processed, frames demodulated and
// FEC-corrected by frame shape, tracked aircraft count, and purge
// activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the pipeline updates.
type Metrics struct {
	SamplesProcessed   prometheus.Counter
	BlocksProcessed    prometheus.Counter
	FramesDemodulated  *prometheus.CounterVec // labeled "downlink"/"uplink"
	FECSuccesses       *prometheus.CounterVec // labeled "downlink_short"/"downlink_long"/"uplink"
	FECFailures        *prometheus.CounterVec
	CorrectedSymbols   prometheus.Counter
	MessagesParsed     prometheus.Counter
	MessagesDiscarded  prometheus.Counter
	AircraftTracked    prometheus.Gauge
	AircraftPurged     prometheus.Counter
	SourceErrors       prometheus.Counter
}

// New registers and returns a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across parallel test runs.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "samples_processed_total",
			Help:      "Total number of I/Q samples converted to phase values.",
		}),
		BlocksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "blocks_processed_total",
			Help:      "Total number of raw sample blocks handled by the receiver.",
		}),
		FramesDemodulated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "frames_demodulated_total",
			Help:      "Total number of frames recovered by sync word match, by link direction.",
		}, []string{"direction"}),
		FECSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "fec_successes_total",
			Help:      "Total number of frames that passed FEC correction, by frame shape.",
		}, []string{"shape"}),
		FECFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "fec_failures_total",
			Help:      "Total number of frames that failed FEC correction, by frame shape.",
		}, []string{"shape"}),
		CorrectedSymbols: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "fec_corrected_symbols_total",
			Help:      "Total number of symbols corrected across all successful FEC decodes.",
		}),
		MessagesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "messages_parsed_total",
			Help:      "Total number of downlink messages successfully parsed.",
		}),
		MessagesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "messages_discarded_total",
			Help:      "Total number of raw messages discarded before parsing (e.g. uplink frames).",
		}),
		AircraftTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uat978",
			Name:      "aircraft_tracked",
			Help:      "Current number of aircraft held in the tracker.",
		}),
		AircraftPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "aircraft_purged_total",
			Help:      "Total number of aircraft removed by the tracker's purge cycle.",
		}),
		SourceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uat978",
			Name:      "source_errors_total",
			Help:      "Total number of hardware/IO errors reported by the sample source.",
		}),
	}

	reg.MustRegister(
		m.SamplesProcessed,
		m.BlocksProcessed,
		m.FramesDemodulated,
		m.FECSuccesses,
		m.FECFailures,
		m.CorrectedSymbols,
		m.MessagesParsed,
		m.MessagesDiscarded,
		m.AircraftTracked,
		m.AircraftPurged,
		m.SourceErrors,
	)

	return m
}
