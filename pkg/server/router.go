package server

import (
	"fmt"

	"github.com/mwhitney/parley/pkg/database"
	"github.com/mwhitney/parley/pkg/protocol"
	"github.com/mwhitney/parley/pkg/security"
	"github.com/mwhitney/parley/pkg/transport"
)

// AccountStore is the persisted account/log dependency. The router only
// performs synchronous lookups and inserts against it.
type AccountStore interface {
	GetUserByName(name string) (*database.User, error)
	CreateUser(name, passwordDigest string) error
	GetUserIDByName(name string) int64
	AddLog(t database.LogType, message string) error
	AddHistory(fromID, toID int64, message string) error
}

// Router dispatches decoded client requests to their handlers and emits
// the responses and broadcasts they produce. Every per-message failure is
// local: the offending sender gets exactly one typed error response and no
// other connection is affected.
type Router struct {
	codec    *protocol.Codec
	registry *Registry
	store    AccountStore
	metrics  *Metrics
	names    *nameGenerator
}

// NewRouter wires a router over the shared registry, store and codec.
func NewRouter(codec *protocol.Codec, registry *Registry, store AccountStore, metrics *Metrics, names *nameGenerator) *Router {
	return &Router{
		codec:    codec,
		registry: registry,
		store:    store,
		metrics:  metrics,
		names:    names,
	}
}

// DrainQueue pops every queued message on conn and handles it in receipt
// order.
func (rt *Router) DrainQueue(conn *transport.Conn) {
	for {
		msg := conn.Queue.Pop()
		if msg == nil {
			return
		}
		rt.Handle(conn, msg)
	}
}

// Handle routes one decoded message. Malformed messages are answered
// uniformly without reading any field.
func (rt *Router) Handle(conn *transport.Conn, msg *protocol.Message) {
	if msg.IsMalformed {
		rt.metrics.RecordMalformed()
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}

	rt.metrics.RecordReceived(fmt.Sprintf("0x%02X", byte(msg.Type)))

	switch msg.Type {
	case protocol.TypeCreateUser:
		rt.handleCreateUser(conn, msg)
	case protocol.TypeLogin:
		rt.handleLogin(conn, msg)
	case protocol.TypeLogout:
		rt.handleLogout(conn)
	case protocol.TypeDisconnect:
		rt.handleDisconnect(conn)
	case protocol.TypeSay:
		rt.handleSay(conn, msg)
	case protocol.TypeWhisper:
		rt.handleWhisper(conn, msg)
	default:
		rt.reply(conn, rt.encode(rt.codec.ErrorGeneric("Unsupported message type.")))
	}
}

// OnConnect announces a fresh session: the other clients learn the new
// placeholder name, the new client learns its name, the message of the
// day, and a sorted snapshot of everyone else. The registry insert itself
// happens in the accept path before the worker starts.
func (rt *Router) OnConnect(conn *transport.Conn, motd string) {
	name := conn.Name()

	rt.broadcast(rt.encode(rt.codec.PeerConnected(name)), name)

	rt.reply(conn, rt.encode(rt.codec.SuccessConnect(name)))
	if motd != "" {
		rt.reply(conn, rt.encode(rt.codec.ServerNotice(motd)))
	}

	if peers := rt.registry.Names(name); len(peers) > 0 {
		rt.reply(conn, rt.encode(rt.codec.PeerList(peers...)))
	}
}

// OnDisconnect removes a departing session. The registry entry goes away
// before the socket closes so no broadcast can route to a half-torn-down
// connection.
func (rt *Router) OnDisconnect(conn *transport.Conn) {
	name := conn.Name()
	rt.registry.Remove(name)
	rt.broadcast(rt.encode(rt.codec.PeerDisconnected(name)), name)
	conn.Close()

	rt.store.AddLog(database.LogInfo, fmt.Sprintf("%s (%s) disconnected", name, conn.RemoteAddr()))
}

func (rt *Router) handleCreateUser(conn *transport.Conn, msg *protocol.Message) {
	if msg.FieldCount() < 2 {
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}
	name, digest := msg.Fields[0], msg.Fields[1]

	existing, err := rt.store.GetUserByName(name)
	if err != nil {
		errorLog.Printf("user lookup failed: %v", err)
		rt.reply(conn, rt.encode(rt.codec.ErrorGeneric("User not created.")))
		return
	}
	if existing != nil {
		rt.reply(conn, rt.encode(rt.codec.ErrorUserExists("")))
		return
	}

	if len(digest) != security.HashLength {
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}

	if err := rt.store.CreateUser(name, digest); err != nil {
		if err == database.ErrUserExists {
			rt.reply(conn, rt.encode(rt.codec.ErrorUserExists("")))
			return
		}
		errorLog.Printf("user create failed: %v", err)
		rt.reply(conn, rt.encode(rt.codec.ErrorGeneric("User not created.")))
		return
	}

	rt.store.AddLog(database.LogSuccess, fmt.Sprintf("user %s created", name))
	rt.reply(conn, rt.encode(rt.codec.SuccessUserCreated(fmt.Sprintf("Successfully created user %s", name))))
}

func (rt *Router) handleLogin(conn *transport.Conn, msg *protocol.Message) {
	if msg.FieldCount() < 2 {
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}
	name, digest := msg.Fields[0], msg.Fields[1]

	user, err := rt.store.GetUserByName(name)
	if err != nil {
		errorLog.Printf("user lookup failed: %v", err)
		rt.reply(conn, rt.encode(rt.codec.ErrorLogin("")))
		return
	}
	if user == nil {
		rt.reply(conn, rt.encode(rt.codec.ErrorLogin(fmt.Sprintf("No account for %s exists.", name))))
		return
	}

	if user.PasswordDigest != digest {
		rt.reply(conn, rt.encode(rt.codec.ErrorLogin("")))
		return
	}

	oldName := conn.Name()
	if !rt.registry.Rename(oldName, name) {
		// Another live session already holds this account name.
		rt.reply(conn, rt.encode(rt.codec.ErrorLogin(fmt.Sprintf("%s is already logged in.", name))))
		return
	}

	conn.SetName(name)
	conn.SetLoggedIn(true)
	rt.store.AddLog(database.LogInfo, fmt.Sprintf("%s logged in as %s", oldName, name))

	rt.broadcast(rt.encode(rt.codec.PeerRenamed(oldName, name)), name)
	rt.reply(conn, rt.encode(rt.codec.SuccessLogin("")))
}

func (rt *Router) handleLogout(conn *transport.Conn) {
	oldName := conn.Name()
	newName := rt.names.Next()

	// Placeholder names come off a monotonic counter, so this rename
	// cannot collide.
	rt.registry.Rename(oldName, newName)
	conn.SetName(newName)
	conn.SetLoggedIn(false)

	rt.broadcast(rt.encode(rt.codec.PeerRenamed(oldName, newName)), newName)
	rt.reply(conn, rt.encode(rt.codec.SuccessLogout(newName)))
}

func (rt *Router) handleDisconnect(conn *transport.Conn) {
	// The client told us it is going away; the worker loop observes the
	// closing flag and runs the disconnect path.
	conn.Close()
}

func (rt *Router) handleSay(conn *transport.Conn, msg *protocol.Message) {
	if msg.FieldCount() < 1 {
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}
	text := msg.Fields[0]
	name := conn.Name()

	rt.broadcast(rt.encode(rt.codec.SayFrom(name, text)), name)

	conn.LogHistory(fmt.Sprintf("[SAY] %s", text))
	if conn.LoggedIn() {
		rt.store.AddHistory(rt.store.GetUserIDByName(name), 0, text)
	}
}

func (rt *Router) handleWhisper(conn *transport.Conn, msg *protocol.Message) {
	if msg.FieldCount() < 2 {
		rt.reply(conn, rt.encode(rt.codec.ErrorMalformedData("")))
		return
	}
	target, text := msg.Fields[0], msg.Fields[1]
	name := conn.Name()

	targetConn, ok := rt.registry.Get(target)
	if !ok {
		rt.reply(conn, rt.encode(rt.codec.ErrorUserOffline("")))
		return
	}

	rt.reply(targetConn, rt.encode(rt.codec.WhisperFrom(name, text)))

	conn.LogHistory(fmt.Sprintf("[WHISPER](%s) %s", target, text))
	if conn.LoggedIn() {
		rt.store.AddHistory(rt.store.GetUserIDByName(name), rt.store.GetUserIDByName(target), text)
	}

	rt.reply(conn, rt.encode(rt.codec.SuccessGeneric("Whisper received.")))
}

// encode collapses a builder result to a byte slice, logging and dropping
// on encode failure (which would mean a programming error in a builder).
func (rt *Router) encode(data []byte, err error) []byte {
	if err != nil {
		errorLog.Printf("failed to encode message: %v", err)
		return nil
	}
	return data
}

// reply sends an encoded response to one connection.
func (rt *Router) reply(conn *transport.Conn, data []byte) {
	if data == nil {
		return
	}
	if conn.Send(data) {
		rt.metrics.RecordSent()
	}
}

// broadcast fans encoded data out to every registered connection except
// the excluded names.
func (rt *Router) broadcast(data []byte, exclude ...string) {
	if data == nil {
		return
	}
	rt.registry.Broadcast(data, exclude...)
	rt.metrics.RecordBroadcast()
}
