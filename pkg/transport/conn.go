// Package transport owns the byte-level side of a chat connection: one
// socket, reassembly of length-prefixed frames out of the read stream, and
// synchronized writes. Both the server and the client build on Conn.
package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/mwhitney/parley/pkg/protocol"
)

const (
	// DefaultReadTimeout bounds one Receive call. A timeout is a normal
	// return, not an error: it hands control back so the owner can service
	// the message queue between reads.
	DefaultReadTimeout = 1 * time.Second

	// DefaultWriteTimeout bounds one Send call.
	DefaultWriteTimeout = 5 * time.Second

	// HistoryLength is the number of history entries kept per connection
	// before the oldest is evicted.
	HistoryLength = 64

	readBufferSize = 4096
)

// Conn represents one live socket session. It is exclusively owned by the
// goroutine handling its socket I/O; the server registry holds a non-owning
// reference for routing. Writes from other goroutines (broadcasts) are
// serialized by an internal mutex so concurrent frames never interleave on
// the wire.
type Conn struct {
	conn  net.Conn
	codec *protocol.Codec

	// Queue holds decoded inbound messages in receipt order.
	Queue *protocol.MessageQueue

	writeMu sync.Mutex

	mu            sync.Mutex
	name          string
	loggedIn      bool
	closing       bool
	timeConnected time.Time
	timeLogin     time.Time
	timeLastRecv  time.Time
	history       []string

	closeOnce sync.Once

	readTimeout  time.Duration
	writeTimeout time.Duration

	buf []byte // partial-frame accumulation
}

// New wraps an established socket. name is the initial display name (a
// generated placeholder on the server side).
func New(conn net.Conn, codec *protocol.Codec, name string) *Conn {
	return &Conn{
		conn:          conn,
		codec:         codec,
		Queue:         protocol.NewMessageQueue(),
		name:          name,
		timeConnected: time.Now(),
		readTimeout:   DefaultReadTimeout,
		writeTimeout:  DefaultWriteTimeout,
	}
}

// SetTimeouts overrides the read/write deadlines. Zero values keep the
// current setting.
func (c *Conn) SetTimeouts(read, write time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if read > 0 {
		c.readTimeout = read
	}
	if write > 0 {
		c.writeTimeout = write
	}
}

// Name returns the current display name.
func (c *Conn) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName replaces the display name. The server registry key must be
// renamed in the same critical section; see server.Registry.Rename.
func (c *Conn) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// LoggedIn reports whether this session is authenticated.
func (c *Conn) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// SetLoggedIn flips the authenticated flag, stamping the login time on the
// way up.
func (c *Conn) SetLoggedIn(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = v
	if v {
		c.timeLogin = time.Now()
	}
}

// Closing reports whether the connection has entered teardown. Once set it
// never clears; the owning worker exits its loop on observing it.
func (c *Conn) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Conn) markClosing() {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
}

// RemoteAddr returns the peer address as a string.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// TimeConnected returns when the socket was established.
func (c *Conn) TimeConnected() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeConnected
}

// TimeLastReceive returns when bytes last arrived.
func (c *Conn) TimeLastReceive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLastRecv
}

// LogHistory appends an entry to the bounded per-connection history,
// evicting the oldest entry beyond HistoryLength.
func (c *Conn) LogHistory(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, entry)
	if len(c.history) > HistoryLength {
		c.history = c.history[len(c.history)-HistoryLength:]
	}
}

// History returns a copy of the history entries, oldest first.
func (c *Conn) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}

// ClearHistory empties the history log.
func (c *Conn) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Receive reads from the socket until the read deadline passes, decoding
// every complete frame into the queue. The declared length field is
// authoritative for frame boundaries, so a logical frame may span many
// reads and one read may carry several frames. Returns the number of
// frames queued.
//
// A deadline timeout returns (n, nil): the caller services the queue and
// calls Receive again. Reset/EOF-class errors mark the connection closing
// and return the error; any partial frame bytes stay buffered and must not
// be trusted as a complete frame.
func (c *Conn) Receive() (int, error) {
	deadline := time.Now().Add(c.readTimeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.markClosing()
		return 0, err
	}

	frames := 0
	tmp := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
			c.mu.Lock()
			c.timeLastRecv = time.Now()
			c.mu.Unlock()
			frames += c.extractFrames()
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return frames, nil
			}
			c.markClosing()
			if errors.Is(err, io.EOF) {
				return frames, io.EOF
			}
			return frames, err
		}
	}
}

// extractFrames pops every complete frame off the accumulation buffer and
// pushes the decoded messages onto the queue.
func (c *Conn) extractFrames() int {
	frames := 0
	for {
		total, ok := protocol.DeclaredLength(c.buf)
		if !ok {
			return frames
		}
		// A declared length below the header size can never complete;
		// consume a header's worth so decode surfaces it as malformed
		// instead of stalling the stream.
		if total < protocol.HeaderLength {
			total = protocol.HeaderLength
		}
		if len(c.buf) < total {
			return frames
		}

		msg, err := protocol.Decode(c.buf[:total])
		c.buf = c.buf[total:]
		if err != nil {
			// Unreachable with total >= HeaderLength; drop the bytes.
			continue
		}
		c.Queue.Push(msg)
		frames++
	}
}

// Send writes the full buffer to the socket. Send failures all mean the
// same thing to callers (stop treating the connection as usable), so the
// low-level error is collapsed into a bool and the connection is marked
// closing on failure.
func (c *Conn) Send(data []byte) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.markClosing()
		return false
	}
	if _, err := c.conn.Write(data); err != nil {
		c.markClosing()
		return false
	}
	return true
}

// Close tears the connection down: marks it closing, best-effort sends a
// disconnect notice (the peer is going away regardless, so the send result
// is ignored), and releases the socket. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.markClosing()
		if data, err := c.codec.RequestDisconnect(); err == nil {
			c.Send(data)
		}
		c.conn.Close()
	})
}
