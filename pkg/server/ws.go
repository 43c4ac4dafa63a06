package server

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The wire protocol carries its own framing and auth; the HTTP layer
	// is just a tunnel.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebSocket upgrades an HTTP request and runs the chat protocol over
// the socket, through the same session path as a raw TCP client.
//
// The session does not read the websocket directly: an expired read
// deadline poisons a gorilla connection for good, which would break the
// receive tick. Instead two pump goroutines shuttle bytes between the
// websocket and an in-process pipe, and the session owns the pipe end,
// where deadlines behave like any net.Conn.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		errorLog.Printf("websocket upgrade: %v", err)
		return
	}
	debugLog.Printf("websocket client from %s", ws.RemoteAddr())

	sessionSide, pumpSide := net.Pipe()
	wsc := newWSConn(ws)
	go func() {
		io.Copy(pumpSide, wsc)
		pumpSide.Close()
	}()
	go func() {
		io.Copy(wsc, pumpSide)
		wsc.Close()
	}()
	s.startSession(sessionSide)
}

// wsConn adapts a websocket connection to net.Conn so the transport layer
// can treat it as a byte stream. Binary messages are concatenated on read;
// each Write goes out as one binary message.
type wsConn struct {
	ws *websocket.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
	reader  io.Reader
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			// Message exhausted; surface the bytes now and pull the next
			// message on the following call.
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
