package client

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitney/parley/pkg/server"
)

func startJourneyServer(t *testing.T) string {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.BindAddr = "127.0.0.1"
	cfg.Port = 0
	cfg.ManagementPort = 0
	cfg.MetricsPort = 0
	cfg.DatabasePath = filepath.Join(t.TempDir(), "parley.db")
	cfg.MOTD = "journey"

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv.Addr().String()
}

func dialJourneyClient(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Eventually(t, func() bool {
		return c.Name() != ""
	}, 3*time.Second, 10*time.Millisecond, "client never received its assigned name")
	return c
}

// Two clients against a real server: a login for an unregistered account
// is answered with a specific error, and a say from one client lands in
// the other's buffer under the sender's current display name.
func TestJourneyLoginErrorThenSay(t *testing.T) {
	addr := startJourneyServer(t)

	a := dialJourneyClient(t, addr)
	b := dialJourneyClient(t, addr)

	require.NoError(t, a.Login("zelda", "Secret1!"))
	assert.Eventually(t, func() bool {
		return contains(a.Buffer(), "Error: No account for zelda exists.")
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, a.LoggedIn())

	require.NoError(t, b.Say("hi"))
	want := fmt.Sprintf("%s says: hi", b.Name())
	assert.Eventually(t, func() bool {
		return contains(a.Buffer(), want)
	}, 3*time.Second, 10*time.Millisecond)
}

// Register, log in, whisper by account name, log out: the whole account
// lifecycle through the public client surface.
func TestJourneyAccountLifecycle(t *testing.T) {
	addr := startJourneyServer(t)

	a := dialJourneyClient(t, addr)
	b := dialJourneyClient(t, addr)

	require.NoError(t, a.CreateUser("alice", "Secret1!"))
	require.NoError(t, a.Login("alice", "Secret1!"))
	assert.Eventually(t, a.LoggedIn, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return contains(b.Peers(), "alice")
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Whisper("alice", "psst"))
	want := fmt.Sprintf("%s whispers: psst", b.Name())
	assert.Eventually(t, func() bool {
		return contains(a.Buffer(), want)
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Logout())
	assert.Eventually(t, func() bool {
		return !a.LoggedIn() && a.Name() != "alice"
	}, 3*time.Second, 10*time.Millisecond)
}
