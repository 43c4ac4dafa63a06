package protocol

import (
	"testing"

	"pgregory.net/rapid"
)

// fieldGen draws printable field strings with no embedded nulls. The wire
// format cannot represent a null byte inside a field.
func fieldGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[ -~]{1,64}`)
}

// TestMessageRoundTrip checks that any valid (type, fields) pair encodes
// and decodes back to itself, unmalformed.
func TestMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msgType := MessageType(rapid.ByteRange(0x80, 0x96).Draw(t, "type"))
		fields := rapid.SliceOfN(fieldGen(), 0, 8).Draw(t, "fields")

		codec := NewCodec()
		data, err := codec.Encode(msgType, fields...)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}

		if msg.Type != msgType {
			t.Fatalf("type mismatch: got 0x%02X, want 0x%02X", byte(msg.Type), byte(msgType))
		}
		if msg.IsMalformed {
			t.Fatalf("well-formed frame decoded as malformed")
		}
		if len(msg.Fields) != len(fields) {
			t.Fatalf("field count mismatch: got %d, want %d", len(msg.Fields), len(fields))
		}
		for i := range fields {
			if msg.Fields[i] != fields[i] {
				t.Fatalf("field %d mismatch: got %q, want %q", i, msg.Fields[i], fields[i])
			}
		}
	})
}

// TestPaddingRule checks the frame is always padded to a positive multiple
// of the granularity strictly greater than the unpadded length.
func TestPaddingRule(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.SliceOfN(fieldGen(), 0, 8).Draw(t, "fields")

		unpadded := HeaderLength
		for _, f := range fields {
			unpadded += len(f) + 1
		}

		codec := NewCodec()
		data, err := codec.Encode(TypeSay, fields...)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		if len(data)%BufferGranularity != 0 {
			t.Fatalf("frame length %d not a multiple of %d", len(data), BufferGranularity)
		}
		pad := len(data) - unpadded
		if pad < 1 || pad > BufferGranularity {
			t.Fatalf("padding = %d, want 1..%d", pad, BufferGranularity)
		}
	})
}

// TestTruncationIsMalformed checks that removing trailing bytes without
// adjusting the declared length always surfaces as a malformed message.
func TestTruncationIsMalformed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.SliceOfN(fieldGen(), 1, 4).Draw(t, "fields")

		codec := NewCodec()
		data, err := codec.Encode(TypeSay, fields...)
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		cut := rapid.IntRange(1, len(data)-HeaderLength).Draw(t, "cut")
		msg, err := Decode(data[:len(data)-cut])
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !msg.IsMalformed {
			t.Fatalf("frame cut by %d bytes not flagged malformed", cut)
		}
	})
}
