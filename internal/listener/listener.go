// Package listener implements the UDP/TCP ingest listener spec.md §1
// treats as an external collaborator with a named interface only. Its
// shape — a pooled read buffer for UDP, a bounded accept-connection
// semaphore and uuid-tagged connection tracking for TCP, and a bounded
// ingest channel with a drop counter and a throttled "queue full" log
// line — is generalized from the teacher's udpListen/tcpListen/handler/
// refuser/remember/forget functions, swapping telegraf.Accumulator for a
// channel of raw lines feeding internal/relay's dispatch loop.
package listener

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/theatrus/statsrelay/internal/rlog"
	"github.com/theatrus/statsrelay/internal/selfstat"
)

// udpMaxPacketSize is generous headroom over MAX_UDP_LENGTH for a single
// datagram that may batch several lines.
const udpMaxPacketSize = 64 * 1024

// Config controls listener behavior.
type Config struct {
	Protocol               string // "udp" or "tcp"
	Address                string
	AllowedPendingMessages int
	MaxTCPConnections      int
	ReadBufferSize         int
}

// Listener owns the network socket(s) and feeds raw, newline-delimited
// lines into Lines. Each []byte sent on Lines is the listener's own copy;
// receivers may retain it without copying again.
type Listener struct {
	cfg   Config
	log   rlog.Logger
	stats *selfstat.Stats

	udpConn     *net.UDPConn
	tcpListener *net.TCPListener

	Lines chan []byte

	accept  chan struct{}
	conns   map[string]*net.TCPConn
	connsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	drops int
}

// New constructs a Listener. Call Start to begin accepting traffic.
func New(cfg Config, log rlog.Logger, stats *selfstat.Stats) *Listener {
	return &Listener{
		cfg:   cfg,
		log:   log,
		stats: stats,
		Lines: make(chan []byte, cfg.AllowedPendingMessages),
		accept: func() chan struct{} {
			ch := make(chan struct{}, cfg.MaxTCPConnections)
			for i := 0; i < cfg.MaxTCPConnections; i++ {
				ch <- struct{}{}
			}
			return ch
		}(),
		conns: make(map[string]*net.TCPConn),
		done:  make(chan struct{}),
	}
}

// Start binds the configured socket and begins reading.
func (l *Listener) Start() error {
	switch l.cfg.Protocol {
	case "udp":
		addr, err := net.ResolveUDPAddr("udp", l.cfg.Address)
		if err != nil {
			return fmt.Errorf("statsrelay: resolve udp address %s: %w", l.cfg.Address, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("statsrelay: listen udp %s: %w", l.cfg.Address, err)
		}
		l.udpConn = conn
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.udpListen(conn)
		}()
	case "tcp":
		addr, err := net.ResolveTCPAddr("tcp", l.cfg.Address)
		if err != nil {
			return fmt.Errorf("statsrelay: resolve tcp address %s: %w", l.cfg.Address, err)
		}
		ln, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return fmt.Errorf("statsrelay: listen tcp %s: %w", l.cfg.Address, err)
		}
		l.tcpListener = ln
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.tcpListen(ln)
		}()
	default:
		return fmt.Errorf("statsrelay: unknown listener protocol %q", l.cfg.Protocol)
	}
	return nil
}

func (l *Listener) udpListen(conn *net.UDPConn) {
	if l.cfg.ReadBufferSize > 0 {
		_ = conn.SetReadBuffer(l.cfg.ReadBufferSize)
	}
	buf := make([]byte, udpMaxPacketSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isClosedConnError(err) {
				return
			}
			l.log.Errorf("statsrelay: udp read error: %v", err)
			continue
		}
		if l.stats != nil {
			l.stats.UDPPacketsReceived.Inc()
			l.stats.UDPBytesReceived.Add(float64(n))
		}
		l.splitAndSend(buf[:n])
	}
}

func (l *Listener) splitAndSend(packet []byte) {
	for _, line := range bytes.Split(packet, []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		l.send(line)
	}
}

func (l *Listener) send(line []byte) {
	owned := append([]byte(nil), line...)
	select {
	case l.Lines <- owned:
	case <-l.done:
	default:
		l.drops++
		if l.stats != nil {
			l.stats.UDPPacketsDropped.Inc()
		}
		if l.drops == 1 || l.drops%l.cfg.AllowedPendingMessages == 0 {
			l.log.Errorf("statsrelay: ingest queue full, dropped %d lines so far", l.drops)
		}
	}
}

func (l *Listener) tcpListen(ln *net.TCPListener) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if isClosedConnError(err) {
				return
			}
			l.log.Errorf("statsrelay: tcp accept error: %v", err)
			continue
		}
		select {
		case <-l.accept:
			id := uuid.NewString()
			l.remember(id, conn)
			if l.stats != nil {
				l.stats.TCPConnectionsTotal.Inc()
				l.stats.TCPConnectionsCurrent.Inc()
			}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.handle(conn, id)
			}()
		default:
			l.refuse(conn)
		}
	}
}

func (l *Listener) handle(conn *net.TCPConn, id string) {
	log := rlog.WithFields(l.log, map[string]interface{}{"component": "listener", "conn_id": id})
	defer func() {
		conn.Close()
		l.forget(id)
		if l.stats != nil {
			l.stats.TCPConnectionsCurrent.Dec()
		}
		select {
		case l.accept <- struct{}{}:
		default:
		}
	}()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), udpMaxPacketSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		l.send(line)
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("statsrelay: tcp connection %s read error: %v", conn.RemoteAddr(), err)
	}
}

func (l *Listener) refuse(conn *net.TCPConn) {
	conn.Close()
	if l.stats != nil {
		l.stats.TCPConnectionsRefused.Inc()
	}
	l.log.Warnf("statsrelay: refused tcp connection from %s, max_tcp_connections reached", conn.RemoteAddr())
}

func (l *Listener) remember(id string, conn *net.TCPConn) {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	l.conns[id] = conn
}

func (l *Listener) forget(id string) {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	delete(l.conns, id)
}

// Stop closes the listening socket(s) and any open connections, then waits
// for every goroutine to exit before closing Lines.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
		if l.udpConn != nil {
			l.udpConn.Close()
		}
		if l.tcpListener != nil {
			l.tcpListener.Close()
			l.connsMu.Lock()
			for _, c := range l.conns {
				c.Close()
			}
			l.connsMu.Unlock()
		}
		l.wg.Wait()
		close(l.Lines)
	})
}

func isClosedConnError(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}
