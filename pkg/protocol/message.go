package protocol

import "time"

// MessageType identifies how a message should be handled and how many
// fields it is expected to carry.
//
// The byte codes are part of the wire protocol and are shared between
// client and server builds. Never renumber or reorder them; append new
// types at the end with the next free code.
type MessageType uint8

// Client → Server requests
const (
	TypeCreateUser MessageType = 0x80 // fields: name, password digest
	TypeDisconnect MessageType = 0x81 // no fields
	TypeLogin      MessageType = 0x82 // fields: name, password digest
	TypeLogout     MessageType = 0x83 // no fields
	TypeSay        MessageType = 0x84 // fields: text
	TypeWhisper    MessageType = 0x85 // fields: target name, text
)

// Server → Client notifications
const (
	TypePeerConnected    MessageType = 0x86 // fields: name
	TypePeerDisconnected MessageType = 0x87 // fields: name
	TypePeerRenamed      MessageType = 0x88 // fields: old name, new name
	TypePeerList         MessageType = 0x89 // fields: one per peer name
	TypeSuccess          MessageType = 0x8A // fields: text
	TypeConnectOK        MessageType = 0x8B // fields: assigned placeholder name
	TypeLoginOK          MessageType = 0x8C // fields: text
	TypeLogoutOK         MessageType = 0x8D // fields: new placeholder name
	TypeUserCreated      MessageType = 0x8E // fields: text
	TypeError            MessageType = 0x8F // fields: text
	TypeLoginError       MessageType = 0x90 // fields: text
	TypeMalformedData    MessageType = 0x91 // fields: text
	TypeUserExists       MessageType = 0x92 // fields: text
	TypeUserOffline      MessageType = 0x93 // fields: text
	TypeServerNotice     MessageType = 0x94 // fields: text
	TypeWhisperFrom      MessageType = 0x95 // fields: sender name, text
	TypeSayFrom          MessageType = 0x96 // fields: sender name, text
)

// Wire layout constants. The header is fixed at 13 bytes:
// [1B type][2B big-endian total length][8B little-endian float64 send
// time][2B big-endian sequence id], followed by null-terminated UTF-8
// fields and null padding.
const (
	typeFieldLen = 1
	sizeFieldLen = 2
	timeFieldLen = 8
	seqFieldLen  = 2

	// HeaderLength is the fixed size of the frame header in bytes.
	HeaderLength = typeFieldLen + sizeFieldLen + timeFieldLen + seqFieldLen

	// BufferGranularity is the padding granularity. Encoded frames are
	// always padded with null bytes to the next multiple of this value,
	// and a frame whose unpadded length is already a multiple receives a
	// full extra granularity of padding. Receivers rely on the declared
	// length field, not the granularity, to find frame boundaries.
	BufferGranularity = 4

	// MaxFrameLength is the largest encodable frame, bounded by the
	// 2-byte length field.
	MaxFrameLength = 0xFFFF

	// SequenceMask wraps the sequence counter to a uint16.
	SequenceMask = 0xFFFF
)

// Message is the decoded form of one wire frame.
type Message struct {
	Type         MessageType
	Length       int // declared total frame length, header included
	SequenceID   uint16
	TimeSent     time.Time
	TimeReceived time.Time
	Fields       []string

	// IsMalformed is set when the bytes actually present did not match
	// the declared length. A malformed message must never be interpreted
	// by field meaning; handlers answer it with a malformed-data error
	// without reading Fields.
	IsMalformed bool
}

// FieldCount returns the number of fields present. Handlers compare this
// against the count their message type requires before reading any field.
func (m *Message) FieldCount() int {
	return len(m.Fields)
}

// Latency returns the transit time as observed by the receiver. Clocks on
// both ends are assumed loosely synchronized; this is accounting data, not
// a protocol input.
func (m *Message) Latency() time.Duration {
	return m.TimeReceived.Sub(m.TimeSent)
}

// defaultTexts holds the human-readable fallback for each server-originated
// notification type, used when no custom text is supplied.
var defaultTexts = map[MessageType]string{
	TypeSuccess:       "Unhelpful success message.",
	TypeLoginOK:       "Logged in successfully.",
	TypeUserCreated:   "User created successfully.",
	TypeError:         "Unhelpful error message.",
	TypeLoginError:    "Incorrect user name or password.",
	TypeMalformedData: "Malformed data received.",
	TypeUserExists:    "User name already exists.",
	TypeUserOffline:   "That user is not logged in.",
}

// DefaultText returns the default notification text for a message type, or
// the empty string if the type has none.
func DefaultText(t MessageType) string {
	return defaultTexts[t]
}
