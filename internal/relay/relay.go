// Package relay wires the ingest listener, the decode workers, and the
// single-threaded sampler/elider core together (spec.md §5): multiple
// worker goroutines parse raw lines concurrently, but every consider_*,
// flush, expire, and GC call is funneled through one dispatch goroutine
// so the hard core never needs a lock.
package relay

import (
	"sync"
	"time"

	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/config"
	"github.com/theatrus/statsrelay/internal/elider"
	"github.com/theatrus/statsrelay/internal/forwarder"
	"github.com/theatrus/statsrelay/internal/listener"
	"github.com/theatrus/statsrelay/internal/parser"
	"github.com/theatrus/statsrelay/internal/rlog"
	"github.com/theatrus/statsrelay/internal/sampler"
	"github.com/theatrus/statsrelay/internal/selfstat"
)

type decodedLine struct {
	name   string
	parsed parser.ParsedLine
	raw    []byte
}

// Relay owns the whole running daemon: the listener, the decode worker
// pool, the dispatch goroutine, and the three periodic timers (flush,
// expiry, elider GC).
type Relay struct {
	cfg   config.Config
	log   rlog.Logger
	clock clock.Clock
	stats *selfstat.Stats

	sampler  *sampler.Sampler
	elider   *elider.Elider
	listener *listener.Listener
	sink     forwarder.Sink

	flushTimer  *clock.PeriodicTimer
	expiryTimer *clock.PeriodicTimer
	gcTimer     *clock.PeriodicTimer

	flushTicks  chan struct{}
	expiryTicks chan struct{}
	gcTicks     chan struct{}

	decoded chan decodedLine
	done    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Relay, wiring a fresh Sampler and Elider from cfg.
func New(cfg config.Config, log rlog.Logger, clk clock.Clock, stats *selfstat.Stats, sink forwarder.Sink) (*Relay, error) {
	smp, err := sampler.New(sampler.Config{
		Threshold:       cfg.Threshold,
		Window:          int64(cfg.Window.Duration() / time.Second),
		Cardinality:     cfg.Cardinality,
		ReservoirSize:   cfg.ReservoirSize,
		FlushMinMax:     cfg.FlushMinMax,
		ExpiryFrequency: int64(cfg.ExpiryFrequency.Duration() / time.Second),
		TTL:             int64(cfg.TTL.Duration() / time.Second),
	}, clk, log)
	if err != nil {
		return nil, err
	}

	eld := elider.New(elider.Config{
		Skip:        cfg.ElideSkip,
		GCFrequency: int64(cfg.ElideGCFrequency.Duration() / time.Second),
		GCTTL:       int64(cfg.ElideGCTTL.Duration() / time.Second),
	}, clk)

	lst := listener.New(listener.Config{
		Protocol:               cfg.ListenProtocol,
		Address:                cfg.ListenAddress,
		AllowedPendingMessages: cfg.AllowedPendingMessages,
		MaxTCPConnections:      cfg.MaxTCPConnections,
		ReadBufferSize:         cfg.ReadBufferSize,
	}, log, stats)

	r := &Relay{
		cfg:         cfg,
		log:         log,
		clock:       clk,
		stats:       stats,
		sampler:     smp,
		elider:      eld,
		listener:    lst,
		sink:        sink,
		flushTicks:  make(chan struct{}, 1),
		expiryTicks: make(chan struct{}, 1),
		gcTicks:     make(chan struct{}, 1),
		decoded:     make(chan decodedLine, cfg.AllowedPendingMessages),
		done:        make(chan struct{}),
	}
	r.flushTimer = clock.NewPeriodicTimer(clk, cfg.Window.Duration(), r.flushTicks)
	r.expiryTimer = clock.NewPeriodicTimer(clk, cfg.ExpiryFrequency.Duration(), r.expiryTicks)
	r.gcTimer = clock.NewPeriodicTimer(clk, cfg.ElideGCFrequency.Duration(), r.gcTicks)
	return r, nil
}

// Start binds the listener, launches the decode worker pool, arms the
// timers, and starts the dispatch goroutine.
func (r *Relay) Start() error {
	if err := r.listener.Start(); err != nil {
		return err
	}
	for i := 0; i < r.cfg.NumberWorkerThreads; i++ {
		r.wg.Add(1)
		go r.decodeWorker(i)
	}
	r.flushTimer.Start()
	r.expiryTimer.Start()
	r.gcTimer.Start()

	r.wg.Add(1)
	go r.dispatch()
	return nil
}

// Stop signals the dispatch and decode goroutines, stops the listener and
// the three timers, and blocks until every goroutine has exited.
func (r *Relay) Stop() {
	close(r.done)
	r.listener.Stop()
	r.flushTimer.Stop()
	r.expiryTimer.Stop()
	r.gcTimer.Stop()
	r.wg.Wait()
}

func (r *Relay) decodeWorker(id int) {
	defer r.wg.Done()
	log := rlog.WithFields(r.log, map[string]interface{}{"component": "decode_worker", "worker": id})
	for line := range r.listener.Lines {
		parsed, err := parser.Parse(line)
		if err != nil {
			if r.stats != nil {
				r.stats.ParseErrors.Inc()
			}
			log.Debugf("statsrelay: dropping invalid line %q: %v", line, err)
			continue
		}
		select {
		case r.decoded <- decodedLine{name: string(parsed.Key), parsed: parsed, raw: line}:
		case <-r.done:
			return
		}
	}
}

// dispatch is the single goroutine that owns the sampler and elider —
// no locks are needed inside the core because only this goroutine ever
// touches them (spec.md §5).
func (r *Relay) dispatch() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case d, ok := <-r.decoded:
			if !ok {
				return
			}
			r.consider(d)
		case <-r.flushTicks:
			r.sampler.Flush(r.sink)
			if f, ok := r.sink.(interface{ Flush() }); ok {
				f.Flush()
			}
			r.reportGauges()
		case <-r.expiryTicks:
			r.sampler.Expire()
		case <-r.gcTicks:
			r.elider.GCNow()
		}
	}
}

func (r *Relay) consider(d decodedLine) {
	var verdict sampler.Verdict
	switch d.parsed.Type {
	case parser.Counter:
		verdict = r.sampler.ConsiderCounter(d.name, d.parsed)
	case parser.Timer:
		verdict = r.sampler.ConsiderTimer(d.name, d.parsed)
	case parser.Gauge:
		verdict = r.sampler.ConsiderGauge(d.name, d.parsed)
	default:
		// KV/Hist/Set/Unknown are accepted by the parser but never acted
		// on by the sampler (spec.md §3: "only COUNTER/TIMER/GAUGE are
		// acted on"); forward them untouched.
		r.forward(d.name, d.raw, d.parsed.Value)
		return
	}

	switch verdict {
	case sampler.Flagged:
		if r.stats != nil {
			r.stats.FlaggedKeys.Inc()
		}
		if r.cfg.CardinalityPolicy == "forward-raw" {
			r.forward(d.name, d.raw, d.parsed.Value)
		}
	case sampler.NotSampling:
		r.forward(d.name, d.raw, d.parsed.Value)
	case sampler.Sampling:
		if r.stats != nil {
			r.stats.LinesAbsorbed.Inc()
		}
		// Absorbed into the bucket; reconstructed at the next flush.
	}
}

// forward runs value through the elider (spec.md §4.3) before emitting raw:
// a zero value marks the key, and while its returned generation count stays
// within the bounded skip window the line is suppressed rather than sent. A
// non-zero value unmarks any key previously under suppression, and a value
// that finally clears the window is forwarded and the window resets.
func (r *Relay) forward(name string, raw []byte, value float64) {
	if r.cfg.ElideSkip > 0 {
		if value == 0 {
			generations := r.elider.Mark(name)
			if generations < 2*r.cfg.ElideSkip {
				if r.stats != nil {
					r.stats.LinesElided.Inc()
				}
				return
			}
			r.elider.Unmark(name)
		} else if _, tracked := r.elider.Peek(name); tracked {
			r.elider.Unmark(name)
		}
	}
	if r.stats != nil {
		r.stats.LinesForwarded.Inc()
	}
	r.sink.Emit(name, raw)
}

func (r *Relay) reportGauges() {
	if r.stats == nil {
		return
	}
	r.stats.SamplerKeys.Set(float64(r.sampler.Size()))
	r.stats.ElisionKeys.Set(float64(r.elider.Size()))
}
