// Package config defines the TOML-loaded configuration surface, mirroring
// the teacher's Statsd plugin struct (toml-tagged fields, a custom
// Duration type with UnmarshalTOML so files can write "10s" instead of
// raw nanoseconds) and carrying every tunable spec.md's lifecycle
// functions name: sampler_init's threshold/window/cardinality/
// reservoir_size/flush_min_max/expiry_freq/ttl, and elide_init's
// skip/gc_frequency/gc_ttl, plus the ambient listener/forwarder/metrics
// settings the hard core treats as external collaborators.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration parses both bare integer seconds and Go duration strings
// ("10s", "1m30s"), matching the teacher's internal/config.Duration.
type Duration time.Duration

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case string:
		s := strings.Trim(v, `"`)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*d = Duration(time.Duration(n) * time.Second)
			return nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("statsrelay: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("statsrelay: invalid duration value %v (%T)", v, v)
	}
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is the top-level configuration for the relay daemon.
type Config struct {
	// Ingest listener.
	ListenProtocol         string `toml:"listen_protocol"`
	ListenAddress          string `toml:"listen_address"`
	NumberWorkerThreads    int    `toml:"number_worker_threads"`
	AllowedPendingMessages int    `toml:"allowed_pending_messages"`
	MaxTCPConnections      int    `toml:"max_tcp_connections"`
	ReadBufferSize         int    `toml:"read_buffer_size"`

	// Downstream forwarder.
	DownstreamAddress  string `toml:"downstream_address"`
	DownstreamCompress bool   `toml:"downstream_compress"`

	// Sampler (spec.md §6 sampler_init).
	Threshold       int64    `toml:"threshold"`
	Window          Duration `toml:"window"`
	Cardinality     int      `toml:"cardinality"`
	ReservoirSize   int      `toml:"reservoir_size"`
	FlushMinMax     bool     `toml:"flush_min_max"`
	ExpiryFrequency Duration `toml:"expiry_frequency"`
	TTL             Duration `toml:"ttl"`

	// Elider (spec.md §6 elide_init).
	ElideSkip        int      `toml:"elide_skip"`
	ElideGCFrequency Duration `toml:"elide_gc_frequency"`
	ElideGCTTL       Duration `toml:"elide_gc_ttl"`

	// CardinalityPolicy controls FLAGGED-verdict handling: "forward-raw"
	// relays the line untouched, "drop" discards it. Spec.md §7 leaves
	// this a caller decision.
	CardinalityPolicy string `toml:"cardinality_policy"`

	// Operational surface.
	MetricsAddress string `toml:"metrics_address"`
	LogLevel       string `toml:"log_level"`
}

// Default returns a Config with the same production-sane defaults the
// teacher's plugin ships (a bounded queue, a modest worker pool) adapted
// to this daemon's tunables.
func Default() Config {
	return Config{
		ListenProtocol:         "udp",
		ListenAddress:          ":8125",
		NumberWorkerThreads:    4,
		AllowedPendingMessages: 10000,
		MaxTCPConnections:      250,
		ReadBufferSize:         0,

		DownstreamAddress:  "127.0.0.1:8126",
		DownstreamCompress: false,

		Threshold:       100,
		Window:          Duration(10 * time.Second),
		Cardinality:     100000,
		ReservoirSize:   100,
		FlushMinMax:     true,
		ExpiryFrequency: Duration(60 * time.Second),
		TTL:             Duration(600 * time.Second),

		ElideSkip:        10,
		ElideGCFrequency: Duration(60 * time.Second),
		ElideGCTTL:       Duration(600 * time.Second),

		CardinalityPolicy: "drop",

		MetricsAddress: ":9125",
		LogLevel:       "info",
	}
}

// Load reads and parses a TOML config file, starting from Default() so an
// omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("statsrelay: loading config %s: %w", path, err)
	}
	return cfg, nil
}
