package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitney/parley/pkg/protocol"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.Port = 0
	cfg.ManagementPort = 0
	cfg.MetricsPort = 0
	cfg.DatabasePath = filepath.Join(t.TempDir(), "parley.db")
	cfg.MOTD = "integration test server"
	cfg.ShutdownGraceSeconds = 3
	return cfg
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

// testClient drives one client session over a real socket, draining
// inbound frames into a channel.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	codec  *protocol.Codec
	frames chan *protocol.Message
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()
	c := &testClient{
		t:      t,
		conn:   conn,
		codec:  protocol.NewCodec(),
		frames: make(chan *protocol.Message, 64),
	}
	go func() {
		var buf []byte
		tmp := make([]byte, 4096)
		for {
			for {
				total, ok := protocol.DeclaredLength(buf)
				if !ok || len(buf) < total {
					break
				}
				if msg, err := protocol.Decode(buf[:total]); err == nil {
					c.frames <- msg
				}
				buf = buf[total:]
			}
			n, err := conn.Read(tmp)
			if err != nil {
				close(c.frames)
				return
			}
			buf = append(buf, tmp[:n]...)
		}
	}()
	t.Cleanup(func() { conn.Close() })
	return c
}

func dialTestClient(t *testing.T, s *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	return newTestClient(t, conn)
}

// send writes an encoded frame, taking the builder's two results directly.
func (c *testClient) send(data []byte, err error) {
	c.t.Helper()
	require.NoError(c.t, err)
	_, err = c.conn.Write(data)
	require.NoError(c.t, err)
}

func (c *testClient) expect(t *testing.T, want protocol.MessageType) *protocol.Message {
	t.Helper()
	for {
		select {
		case msg, ok := <-c.frames:
			if !ok {
				t.Fatalf("connection closed waiting for frame type 0x%02X", byte(want))
			}
			require.Equal(t, want, msg.Type, "unexpected frame type")
			return msg
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for frame type 0x%02X", byte(want))
		}
	}
}

// greet consumes the connect handshake and returns the assigned
// placeholder name.
func (c *testClient) greet(t *testing.T, expectPeers ...string) string {
	t.Helper()
	hello := c.expect(t, protocol.TypeConnectOK)
	require.Len(t, hello.Fields, 1)

	notice := c.expect(t, protocol.TypeServerNotice)
	assert.Equal(t, []string{"integration test server"}, notice.Fields)

	if len(expectPeers) > 0 {
		list := c.expect(t, protocol.TypePeerList)
		assert.Equal(t, expectPeers, list.Fields)
	}
	return hello.Fields[0]
}

func TestServerSessionLifecycle(t *testing.T) {
	s := startTestServer(t)

	first := dialTestClient(t, s)
	firstName := first.greet(t)
	assert.True(t, strings.HasPrefix(firstName, "user_"))

	second := dialTestClient(t, s)
	secondName := second.greet(t, firstName)
	assert.NotEqual(t, firstName, secondName)

	joined := first.expect(t, protocol.TypePeerConnected)
	assert.Equal(t, []string{secondName}, joined.Fields)

	second.send(second.codec.RequestSay("hi"))
	said := first.expect(t, protocol.TypeSayFrom)
	assert.Equal(t, []string{secondName, "hi"}, said.Fields)

	second.send(second.codec.RequestDisconnect())
	left := first.expect(t, protocol.TypePeerDisconnected)
	assert.Equal(t, []string{secondName}, left.Fields)
}

func TestServerLoginJourney(t *testing.T) {
	s := startTestServer(t)

	alice := dialTestClient(t, s)
	aliceName := alice.greet(t)

	bob := dialTestClient(t, s)
	bob.greet(t, aliceName)
	alice.expect(t, protocol.TypePeerConnected)

	// Logging in before the account exists fails.
	digest := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	alice.send(alice.codec.RequestLogin("alice", digest))
	alice.expect(t, protocol.TypeLoginError)

	alice.send(alice.codec.RequestCreateUser("alice", digest))
	alice.expect(t, protocol.TypeUserCreated)

	alice.send(alice.codec.RequestLogin("alice", digest))
	alice.expect(t, protocol.TypeLoginOK)

	renamed := bob.expect(t, protocol.TypePeerRenamed)
	assert.Equal(t, []string{aliceName, "alice"}, renamed.Fields)

	alice.send(alice.codec.RequestSay("hi"))
	said := bob.expect(t, protocol.TypeSayFrom)
	assert.Equal(t, []string{"alice", "hi"}, said.Fields)
}

func TestServerConcurrentSaysAllDelivered(t *testing.T) {
	s := startTestServer(t)

	const n = 4
	clients := make([]*testClient, n)
	names := make([]string, n)
	for i := range clients {
		clients[i] = dialTestClient(t, s)
		names[i] = clients[i].greet(t)
		// Everyone already connected hears about the newcomer.
		for j := 0; j < i; j++ {
			clients[j].expect(t, protocol.TypePeerConnected)
		}
	}

	for i, c := range clients {
		c.send(c.codec.RequestSay(names[i]))
	}

	// Each client receives exactly one say from every other client, tagged
	// with the sender's name.
	for i, c := range clients {
		got := map[string]bool{}
		for j := 0; j < n-1; j++ {
			msg := c.expect(t, protocol.TypeSayFrom)
			require.Len(t, msg.Fields, 2)
			assert.Equal(t, msg.Fields[0], msg.Fields[1])
			got[msg.Fields[0]] = true
		}
		assert.Len(t, got, n-1)
		assert.False(t, got[names[i]], "client %d must not hear its own say", i)
	}
}

func TestServerMalformedFrameAnswered(t *testing.T) {
	s := startTestServer(t)

	c := dialTestClient(t, s)
	c.greet(t)

	// A header declaring fewer bytes than a header even occupies can never
	// reconcile with its own length field.
	raw := make([]byte, protocol.HeaderLength)
	raw[0] = byte(protocol.TypeSay)
	raw[2] = 4
	_, err := c.conn.Write(raw)
	require.NoError(t, err)

	msg := c.expect(t, protocol.TypeMalformedData)
	assert.Equal(t, []string{protocol.DefaultText(protocol.TypeMalformedData)}, msg.Fields)
}

func TestServerWebSocketBridge(t *testing.T) {
	cfg := testConfig(t)
	s, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	httpSrv := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	tcpPeer := dialTestClient(t, s)
	tcpName := tcpPeer.greet(t)

	wsClient := newTestClient(t, newWSConn(ws))
	wsName := wsClient.greet(t, tcpName)

	tcpPeer.expect(t, protocol.TypePeerConnected)

	wsClient.send(wsClient.codec.RequestSay("over websocket"))
	said := tcpPeer.expect(t, protocol.TypeSayFrom)
	assert.Equal(t, []string{wsName, "over websocket"}, said.Fields)
}
