package relay

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theatrus/statsrelay/internal/clock"
	"github.com/theatrus/statsrelay/internal/config"
	"github.com/theatrus/statsrelay/internal/rlog"
)

type memSink struct {
	mu    sync.Mutex
	lines []string
}

func (m *memSink) Emit(key string, line []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, string(line))
}

func (m *memSink) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}

func testLogger() rlog.Logger {
	return rlog.New(io.Discard, logrus.PanicLevel)
}

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve udp port: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()
	return addr
}

func TestRelayForwardsNotSamplingObservations(t *testing.T) {
	cfg := config.Default()
	cfg.ListenProtocol = "udp"
	cfg.ListenAddress = freeUDPAddr(t)
	cfg.Threshold = 1000 // keep everything below threshold -> NOT_SAMPLING
	cfg.Window = config.Duration(time.Hour)
	cfg.ExpiryFrequency = config.Duration(-1)
	cfg.ElideGCFrequency = config.Duration(-1)

	sink := &memSink{}
	log := testLogger()

	r, err := New(cfg, log, clock.New(), nil, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	conn, err := net.Dial("udp", cfg.ListenAddress)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("hits:1|c\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.snapshot()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	lines := sink.snapshot()
	if len(lines) != 1 || lines[0] != "hits:1|c" {
		t.Fatalf("got lines %v, want [hits:1|c]", lines)
	}
}

func TestRelayElidesRepeatedZeroCounters(t *testing.T) {
	cfg := config.Default()
	cfg.ListenProtocol = "udp"
	cfg.ListenAddress = freeUDPAddr(t)
	cfg.Threshold = 1000 // keep everything below threshold -> NOT_SAMPLING
	cfg.Window = config.Duration(time.Hour)
	cfg.ExpiryFrequency = config.Duration(-1)
	cfg.ElideGCFrequency = config.Duration(-1)
	cfg.ElideSkip = 2
	cfg.NumberWorkerThreads = 1 // single decode worker: deterministic ordering

	sink := &memSink{}
	log := testLogger()

	r, err := New(cfg, log, clock.New(), nil, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	conn, err := net.Dial("udp", cfg.ListenAddress)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// With skip=2, the bounded window is 2*skip=4: the fresh key's first two
	// marks return 2 and 3 (both < 4, suppressed), the third returns 4 (not
	// < 4, forwarded, window resets). A following non-zero value is always
	// forwarded and clears any suppression state.
	lines := []string{"z:0|c\n", "z:0|c\n", "z:0|c\n", "z:0|c\n", "z:5|c\n"}
	for _, line := range lines {
		if _, err := conn.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.snapshot()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := sink.snapshot()
	want := []string{"z:0|c", "z:5|c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got lines %v, want %v", got, want)
	}
}
