// Package client implements the chat client core: one connection, the
// inbound dispatcher and the state the UI renders (peer list and message
// buffer). The UI layer lives in cmd/parley and consumes this package
// through Events.
package client

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/mwhitney/parley/pkg/protocol"
	"github.com/mwhitney/parley/pkg/security"
	"github.com/mwhitney/parley/pkg/transport"
)

// ErrClosed is returned by request methods after the connection ended.
var ErrClosed = errors.New("connection closed")

// EventKind classifies dispatcher events for the UI.
type EventKind int

const (
	// EventLine means a new line was appended to the message buffer.
	EventLine EventKind = iota
	// EventPeers means the peer list changed.
	EventPeers
	// EventIdentity means the client's own name or login state changed.
	EventIdentity
	// EventWhisper means a whisper arrived (also appended as a line).
	EventWhisper
	// EventClosed means the connection ended; no further events follow.
	EventClosed
)

// Event is one dispatcher notification.
type Event struct {
	Kind   EventKind
	Line   string
	Sender string
}

// Client is one chat session. All exported methods are safe for
// concurrent use; the dispatcher runs on its own goroutine.
type Client struct {
	conn  *transport.Conn
	codec *protocol.Codec

	mu       sync.Mutex
	name     string
	loggedIn bool
	peers    []string
	buffer   []string

	events    chan Event
	closeOnce sync.Once
}

// Dial connects to a server and starts the receive/dispatch loop.
func Dial(addr string) (*Client, error) {
	netConn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	codec := protocol.NewCodec()
	c := &Client{
		conn:   transport.New(netConn, codec, ""),
		codec:  codec,
		events: make(chan Event, 256),
	}
	go c.run()
	return c, nil
}

// Events returns the dispatcher's notification channel. It is closed
// after EventClosed is delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Name returns the display name the server currently knows us by.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// LoggedIn reports whether the session is authenticated.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Peers returns a copy of the known peer names, sorted ascending.
func (c *Client) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.peers))
	copy(out, c.peers)
	return out
}

// Buffer returns a copy of the message buffer, oldest first.
func (c *Client) Buffer() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// CreateUser validates and digests the credentials locally, then requests
// account creation. Plaintext never goes on the wire.
func (c *Client) CreateUser(name, password string) error {
	name, digest, err := security.Credentials(name, password)
	if err != nil {
		return err
	}
	return c.request(c.codec.RequestCreateUser(name, digest))
}

// Login validates and digests the credentials locally, then requests a
// login.
func (c *Client) Login(name, password string) error {
	name, digest, err := security.Credentials(name, password)
	if err != nil {
		return err
	}
	return c.request(c.codec.RequestLogin(name, digest))
}

// Logout requests a logout; the server answers with a fresh placeholder
// name.
func (c *Client) Logout() error {
	return c.request(c.codec.RequestLogout())
}

// Say sends a chat line to everyone.
func (c *Client) Say(text string) error {
	return c.request(c.codec.RequestSay(text))
}

// Whisper sends a private line to one user.
func (c *Client) Whisper(target, text string) error {
	return c.request(c.codec.RequestWhisper(target, text))
}

// Close tears the session down. Idempotent.
func (c *Client) Close() {
	c.conn.Close()
}

func (c *Client) request(data []byte, err error) error {
	if err != nil {
		return err
	}
	if c.conn.Closing() {
		return ErrClosed
	}
	if !c.conn.Send(data) {
		return ErrClosed
	}
	return nil
}

// run is the receive/dispatch loop.
func (c *Client) run() {
	for !c.conn.Closing() {
		c.conn.Receive()
		for {
			msg := c.conn.Queue.Pop()
			if msg == nil {
				break
			}
			c.dispatch(msg)
		}
	}
	c.closeOnce.Do(func() {
		c.emit(Event{Kind: EventClosed})
		close(c.events)
	})
}

// dispatch applies one server message to the client state. A malformed or
// field-short message is answered with a malformed-data error and
// otherwise ignored.
func (c *Client) dispatch(msg *protocol.Message) {
	if msg.IsMalformed || msg.FieldCount() < minFields(msg.Type) {
		if data, err := c.codec.ErrorMalformedData(""); err == nil {
			c.conn.Send(data)
		}
		return
	}

	switch msg.Type {
	case protocol.TypeConnectOK:
		c.setName(msg.Fields[0])
		c.appendLine(fmt.Sprintf("Connected as %s", msg.Fields[0]))

	case protocol.TypeLoginOK:
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		c.emit(Event{Kind: EventIdentity})
		c.appendLine(msg.Fields[0])

	case protocol.TypeLogoutOK:
		c.mu.Lock()
		c.name = msg.Fields[0]
		c.loggedIn = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventIdentity})
		c.appendLine(fmt.Sprintf("Logged out; you are now %s", msg.Fields[0]))

	case protocol.TypeUserCreated, protocol.TypeSuccess:
		c.appendLine(msg.Fields[0])

	case protocol.TypeError, protocol.TypeLoginError, protocol.TypeMalformedData,
		protocol.TypeUserExists, protocol.TypeUserOffline:
		c.appendLine(fmt.Sprintf("Error: %s", msg.Fields[0]))

	case protocol.TypeServerNotice:
		c.appendLine(fmt.Sprintf("[SERVER] %s", msg.Fields[0]))

	case protocol.TypeSayFrom:
		c.appendLine(fmt.Sprintf("%s says: %s", msg.Fields[0], msg.Fields[1]))

	case protocol.TypeWhisperFrom:
		line := fmt.Sprintf("%s whispers: %s", msg.Fields[0], msg.Fields[1])
		c.appendBufferLine(line)
		c.emit(Event{Kind: EventWhisper, Line: line, Sender: msg.Fields[0]})

	case protocol.TypePeerList:
		c.setPeers(msg.Fields)

	case protocol.TypePeerConnected:
		c.addPeer(msg.Fields[0])
		c.appendLine(fmt.Sprintf("%s connected", msg.Fields[0]))

	case protocol.TypePeerDisconnected:
		c.removePeer(msg.Fields[0])
		c.appendLine(fmt.Sprintf("%s disconnected", msg.Fields[0]))

	case protocol.TypePeerRenamed:
		c.removePeer(msg.Fields[0])
		c.addPeer(msg.Fields[1])
		c.appendLine(fmt.Sprintf("%s is now known as %s", msg.Fields[0], msg.Fields[1]))

	case protocol.TypeDisconnect:
		c.conn.Close()

	default:
		// Unknown server message; ignore.
	}
}

// minFields is the number of fields a server message must carry before
// the dispatcher will touch it.
func minFields(t protocol.MessageType) int {
	switch t {
	case protocol.TypeDisconnect, protocol.TypePeerList:
		return 0
	case protocol.TypePeerRenamed, protocol.TypeSayFrom, protocol.TypeWhisperFrom:
		return 2
	default:
		return 1
	}
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	c.emit(Event{Kind: EventIdentity})
}

// appendLine appends to the buffer and notifies the UI.
func (c *Client) appendLine(line string) {
	c.appendBufferLine(line)
	c.emit(Event{Kind: EventLine, Line: line})
}

func (c *Client) appendBufferLine(line string) {
	c.mu.Lock()
	c.buffer = append(c.buffer, line)
	c.mu.Unlock()
}

func (c *Client) addPeer(name string) {
	c.mu.Lock()
	i := sort.SearchStrings(c.peers, name)
	if i == len(c.peers) || c.peers[i] != name {
		c.peers = append(c.peers, "")
		copy(c.peers[i+1:], c.peers[i:])
		c.peers[i] = name
	}
	c.mu.Unlock()
	c.emit(Event{Kind: EventPeers})
}

func (c *Client) removePeer(name string) {
	c.mu.Lock()
	i := sort.SearchStrings(c.peers, name)
	if i < len(c.peers) && c.peers[i] == name {
		c.peers = append(c.peers[:i], c.peers[i+1:]...)
	}
	c.mu.Unlock()
	c.emit(Event{Kind: EventPeers})
}

// setPeers replaces the peer list with a sorted, deduplicated copy.
func (c *Client) setPeers(names []string) {
	sorted := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	c.mu.Lock()
	c.peers = sorted
	c.mu.Unlock()
	c.emit(Event{Kind: EventPeers})
}

// emit delivers an event without ever blocking the dispatcher; a UI that
// stopped draining loses notifications, not messages (the buffer keeps
// everything).
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
