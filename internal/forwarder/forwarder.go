// Package forwarder implements the downstream forwarding transport
// spec.md §6 names only as an abstract "keyed sink callback". Sink is
// that callback reified as an interface; UDPForwarder is the concrete
// implementation, batching reconstructed lines into MAX_UDP_LENGTH-bounded
// packets and optionally snappy-compressing them before the final write —
// the literal "compressed stream" spec.md §1 describes.
package forwarder

import (
	"fmt"
	"net"

	"github.com/golang/snappy"

	"github.com/theatrus/statsrelay/internal/rlog"
)

// MaxUDPLength bounds a single outbound packet (spec.md §6).
const MaxUDPLength = 1432

// Sink is the flush-time destination for reconstructed lines. Emit must
// fully consume line before returning: per spec.md §5, the caller's
// backing buffer may be reused or overwritten on the next call.
type Sink interface {
	Emit(key string, line []byte)
}

// UDPForwarder batches Emit calls into newline-joined packets no larger
// than MaxUDPLength, flushing early whenever the next line would overflow
// the current packet. Call Flush after a Sampler.Flush pass to send any
// partially-filled trailing packet.
type UDPForwarder struct {
	conn     net.Conn
	log      rlog.Logger
	compress bool
	buf      []byte
}

// NewUDP dials addr over UDP. compress enables snappy framing of each
// outbound packet.
func NewUDP(addr string, compress bool, log rlog.Logger) (*UDPForwarder, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsrelay: dial downstream %s: %w", addr, err)
	}
	return &UDPForwarder{
		conn:     conn,
		log:      log,
		compress: compress,
		buf:      make([]byte, 0, MaxUDPLength),
	}, nil
}

// Emit implements Sink.
func (f *UDPForwarder) Emit(key string, line []byte) {
	needed := len(line)
	if len(f.buf) > 0 {
		needed++ // separating newline
	}
	if len(f.buf)+needed > MaxUDPLength {
		f.flushBuf()
	}
	if len(f.buf) > 0 {
		f.buf = append(f.buf, '\n')
	}
	f.buf = append(f.buf, line...)
}

// Flush sends any buffered, not-yet-full packet.
func (f *UDPForwarder) Flush() { f.flushBuf() }

func (f *UDPForwarder) flushBuf() {
	if len(f.buf) == 0 {
		return
	}
	payload := f.buf
	if f.compress {
		payload = snappy.Encode(nil, f.buf)
	}
	if _, err := f.conn.Write(payload); err != nil {
		f.log.Errorf("statsrelay: forwarding to downstream failed: %v", err)
	}
	f.buf = f.buf[:0]
}

// Close releases the underlying connection.
func (f *UDPForwarder) Close() error { return f.conn.Close() }
