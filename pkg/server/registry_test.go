package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitney/parley/pkg/protocol"
	"github.com/mwhitney/parley/pkg/transport"
)

func registryConn(t *testing.T, name string) *transport.Conn {
	t.Helper()
	srvSide, cliSide := net.Pipe()
	t.Cleanup(func() {
		srvSide.Close()
		cliSide.Close()
	})
	return transport.New(srvSide, protocol.NewCodec(), name)
}

func TestRegistryAddRejectsDuplicate(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Add("alice", registryConn(t, "alice")))
	assert.False(t, r.Add("alice", registryConn(t, "alice")))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRename(t *testing.T) {
	r := NewRegistry()
	conn := registryConn(t, "user_00000")
	require.True(t, r.Add("user_00000", conn))

	require.True(t, r.Rename("user_00000", "alice"))

	_, ok := r.Get("user_00000")
	assert.False(t, ok)
	got, ok := r.Get("alice")
	require.True(t, ok)
	assert.Same(t, conn, got)
}

func TestRegistryRenameCollisionLeavesStateUnchanged(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Add("user_00000", registryConn(t, "user_00000")))
	require.True(t, r.Add("alice", registryConn(t, "alice")))

	assert.False(t, r.Rename("user_00000", "alice"))

	_, ok := r.Get("user_00000")
	assert.True(t, ok, "failed rename must keep the old entry")
	assert.Equal(t, 2, r.Len())
}

func TestRegistryRenameMissingOldName(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Rename("ghost", "alice"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryNamesSortedWithExclusion(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		require.True(t, r.Add(name, registryConn(t, name)))
	}

	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Names(""))
	assert.Equal(t, []string{"alice", "carol"}, r.Names("bob"))
}

func TestRegistryRemoveAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.Add("alice", registryConn(t, "alice")))

	r.Remove("ghost")
	r.Remove("alice")
	r.Remove("alice")

	assert.Equal(t, 0, r.Len())
}
