package transport

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitney/parley/pkg/protocol"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	c := New(server, protocol.NewCodec(), "user_00000")
	c.SetTimeouts(100*time.Millisecond, 100*time.Millisecond)
	return c, client
}

func TestReceiveFrameAcrossPartialWrites(t *testing.T) {
	conn, peer := pipeConn(t)

	codec := protocol.NewCodec()
	frame, err := codec.RequestSay("split me")
	require.NoError(t, err)

	go func() {
		// Dribble the frame out in 3-byte chunks to force reassembly.
		for i := 0; i < len(frame); i += 3 {
			end := i + 3
			if end > len(frame) {
				end = len(frame)
			}
			peer.Write(frame[i:end])
			time.Sleep(time.Millisecond)
		}
	}()

	frames, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, 1, frames)

	msg := conn.Queue.Pop()
	require.NotNil(t, msg)
	assert.Equal(t, protocol.TypeSay, msg.Type)
	assert.Equal(t, []string{"split me"}, msg.Fields)
	assert.False(t, msg.IsMalformed)
}

func TestReceiveMultipleFramesInOneWrite(t *testing.T) {
	conn, peer := pipeConn(t)

	codec := protocol.NewCodec()
	var batch []byte
	for i := 0; i < 3; i++ {
		frame, err := codec.RequestSay(fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		batch = append(batch, frame...)
	}

	go peer.Write(batch)

	frames, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, 3, frames)

	for i := 0; i < 3; i++ {
		msg := conn.Queue.Pop()
		require.NotNil(t, msg)
		assert.Equal(t, []string{fmt.Sprintf("message %d", i)}, msg.Fields, "frames must stay in receipt order")
	}
}

func TestReceiveTimeoutIsNotAnError(t *testing.T) {
	conn, _ := pipeConn(t)

	frames, err := conn.Receive()
	assert.NoError(t, err)
	assert.Zero(t, frames)
	assert.False(t, conn.Closing())
}

func TestReceivePeerCloseMarksClosing(t *testing.T) {
	conn, peer := pipeConn(t)

	codec := protocol.NewCodec()
	frame, err := codec.RequestSay("half a frame")
	require.NoError(t, err)

	go func() {
		peer.Write(frame[:len(frame)/2])
		time.Sleep(5 * time.Millisecond)
		peer.Close()
	}()

	frames, err := conn.Receive()
	assert.Error(t, err)
	assert.Zero(t, frames, "partial bytes must not surface as a frame")
	assert.True(t, conn.Closing())
}

func TestSendFailureMarksClosing(t *testing.T) {
	conn, peer := pipeConn(t)
	peer.Close()

	ok := conn.Send([]byte{0x00})
	assert.False(t, ok)
	assert.True(t, conn.Closing())
}

func TestSendDelivers(t *testing.T) {
	conn, peer := pipeConn(t)

	payload := []byte("raw bytes")
	got := make([]byte, len(payload))
	done := make(chan struct{})
	go func() {
		defer close(done)
		peer.Read(got)
	}()

	require.True(t, conn.Send(payload))
	<-done
	assert.Equal(t, payload, got)
}

func TestCloseIsIdempotentAndSendsDisconnect(t *testing.T) {
	conn, peer := pipeConn(t)

	received := make(chan *protocol.Message, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := peer.Read(buf)
		if err != nil {
			close(received)
			return
		}
		msg, err := protocol.Decode(buf[:n])
		if err != nil {
			close(received)
			return
		}
		received <- msg
	}()

	conn.Close()
	conn.Close()

	assert.True(t, conn.Closing())
	msg := <-received
	require.NotNil(t, msg)
	assert.Equal(t, protocol.TypeDisconnect, msg.Type)
}

func TestHistoryEvictsOldest(t *testing.T) {
	conn, _ := pipeConn(t)

	for i := 0; i < HistoryLength+10; i++ {
		conn.LogHistory(fmt.Sprintf("entry %d", i))
	}

	hist := conn.History()
	require.Len(t, hist, HistoryLength)
	assert.Equal(t, "entry 10", hist[0])
	assert.Equal(t, fmt.Sprintf("entry %d", HistoryLength+9), hist[len(hist)-1])

	conn.ClearHistory()
	assert.Empty(t, conn.History())
}
