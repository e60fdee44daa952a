// Package selfstat provides the relay's self-instrumentation, replacing
// the teacher's selfstat.Register/Incr/Set bookkeeping struct (which has
// no external exposition surface) with a github.com/prometheus/
// client_golang registry exposed over an HTTP /metrics endpoint.
package selfstat

import "github.com/prometheus/client_golang/prometheus"

// Stats groups every counter/gauge the relay exposes about its own
// operation.
type Stats struct {
	ParseErrors prometheus.Counter
	FlaggedKeys prometheus.Counter

	UDPPacketsReceived prometheus.Counter
	UDPBytesReceived   prometheus.Counter
	UDPPacketsDropped  prometheus.Counter

	TCPConnectionsTotal   prometheus.Counter
	TCPConnectionsCurrent prometheus.Gauge
	TCPConnectionsRefused prometheus.Counter

	LinesForwarded prometheus.Counter
	LinesAbsorbed  prometheus.Counter
	LinesElided    prometheus.Counter

	SamplerKeys prometheus.Gauge
	ElisionKeys prometheus.Gauge
}

// New builds Stats and registers every metric with reg.
func New(reg prometheus.Registerer) *Stats {
	const ns = "statsrelay"
	s := &Stats{
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "parse_errors_total", Help: "Lines dropped for failing grammar validation.",
		}),
		FlaggedKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "flagged_total", Help: "Observations rejected for exceeding the cardinality limit.",
		}),
		UDPPacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "udp_packets_received_total", Help: "UDP packets received on the ingest listener.",
		}),
		UDPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "udp_bytes_received_total", Help: "UDP bytes received on the ingest listener.",
		}),
		UDPPacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "udp_packets_dropped_total", Help: "Lines dropped because the ingest queue was full.",
		}),
		TCPConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tcp_connections_total", Help: "TCP connections accepted.",
		}),
		TCPConnectionsCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "tcp_connections_current", Help: "TCP connections currently open.",
		}),
		TCPConnectionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "tcp_connections_refused_total", Help: "TCP connections refused for exceeding max_tcp_connections.",
		}),
		LinesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "lines_forwarded_total", Help: "Lines written to the downstream forwarder.",
		}),
		LinesAbsorbed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "lines_absorbed_total", Help: "Observations absorbed into a sampling bucket instead of forwarded immediately.",
		}),
		LinesElided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "lines_elided_total", Help: "Zero-value observations suppressed by the elider instead of forwarded.",
		}),
		SamplerKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "sampler_keys", Help: "Distinct keys currently tracked by the sampler.",
		}),
		ElisionKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "elision_keys", Help: "Distinct keys currently tracked by the elider.",
		}),
	}
	reg.MustRegister(
		s.ParseErrors, s.FlaggedKeys,
		s.UDPPacketsReceived, s.UDPBytesReceived, s.UDPPacketsDropped,
		s.TCPConnectionsTotal, s.TCPConnectionsCurrent, s.TCPConnectionsRefused,
		s.LinesForwarded, s.LinesAbsorbed, s.LinesElided,
		s.SamplerKeys, s.ElisionKeys,
	)
	return s
}
