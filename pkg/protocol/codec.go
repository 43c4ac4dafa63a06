package protocol

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrIncompleteHeader indicates fewer bytes than a full header were
	// supplied. This is a short read, not a malformed frame: the caller
	// buffers more bytes and retries.
	ErrIncompleteHeader = errors.New("incomplete frame header")

	// ErrFieldTooLong indicates the encoded fields would push the total
	// frame length past the 2-byte length field's range.
	ErrFieldTooLong = errors.New("fields exceed maximum frame length")
)

// Codec builds and parses wire frames. It owns the sequence counter shared
// by every encode call on one side of a connection; construct one per
// process and inject it at all encode call sites.
type Codec struct {
	seq atomic.Uint32
}

// NewCodec returns a Codec with the sequence counter at zero.
func NewCodec() *Codec {
	return &Codec{}
}

// nextSequence claims the current counter value and advances it. The
// counter wraps modulo 65536; ids are not unique across reconnects.
func (c *Codec) nextSequence() uint16 {
	return uint16(c.seq.Add(1)-1) & SequenceMask
}

// Encode builds one frame: header, null-terminated fields, null padding.
// Zero-length fields are omitted entirely. Returns ErrFieldTooLong when the
// padded total would not fit the 2-byte length field.
func (c *Codec) Encode(t MessageType, fields ...string) ([]byte, error) {
	total := HeaderLength
	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		total += len(f) + 1
	}

	// Pad to the next multiple of the granularity. When the total is
	// already a multiple a full extra granularity is appended; padding is
	// never zero bytes.
	padding := BufferGranularity - total%BufferGranularity
	total += padding

	if total > MaxFrameLength {
		return nil, ErrFieldTooLong
	}

	buf := make([]byte, 0, total)
	buf = append(buf, byte(t))
	buf = binary.BigEndian.AppendUint16(buf, uint16(total))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(unixSeconds(time.Now())))
	buf = binary.BigEndian.AppendUint16(buf, c.nextSequence())

	for _, f := range fields {
		if len(f) == 0 {
			continue
		}
		buf = append(buf, f...)
		buf = append(buf, 0x00)
	}
	for i := 0; i < padding; i++ {
		buf = append(buf, 0x00)
	}

	return buf, nil
}

// Decode parses one frame. The caller passes exactly the bytes it
// accumulated for the frame (the declared length field is authoritative for
// how many that should be). A buffer shorter than the header fails with
// ErrIncompleteHeader. Once the header is present decode always succeeds
// structurally; a length/content mismatch sets IsMalformed on the result
// instead of failing, so the recipient can answer with a protocol error
// rather than silently dropping bytes.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderLength {
		return nil, ErrIncompleteHeader
	}

	m := &Message{
		Type:         MessageType(data[0]),
		Length:       int(binary.BigEndian.Uint16(data[typeFieldLen:])),
		TimeSent:     fromUnixSeconds(math.Float64frombits(binary.LittleEndian.Uint64(data[typeFieldLen+sizeFieldLen:]))),
		SequenceID:   binary.BigEndian.Uint16(data[typeFieldLen+sizeFieldLen+timeFieldLen:]),
		TimeReceived: time.Now(),
	}

	// Split the payload on null bytes, counting down from the declared
	// length. Runs of nulls (field terminator plus padding) never produce
	// empty fields.
	remaining := m.Length - HeaderLength
	var field []byte
	for _, b := range data[HeaderLength:] {
		remaining--
		if b == 0x00 {
			if len(field) > 0 {
				m.Fields = append(m.Fields, string(field))
				field = field[:0]
			}
			continue
		}
		field = append(field, b)
	}

	m.IsMalformed = remaining != 0

	return m, nil
}

// DeclaredLength reads the total frame length from a partial buffer. At
// least the type and length fields (3 bytes) must be present.
func DeclaredLength(data []byte) (int, bool) {
	if len(data) < typeFieldLen+sizeFieldLen {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(data[typeFieldLen:])), true
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
