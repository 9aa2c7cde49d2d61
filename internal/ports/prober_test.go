package ports

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreePortIsBindable(t *testing.T) {
	port, err := NewProber().FreePort(nil)
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.True(t, IsAvailable(port))
}

func TestFreePortSkipsExcluded(t *testing.T) {
	p := NewProber()
	exclude := map[int]struct{}{}
	for i := 0; i < 5; i++ {
		port, err := p.FreePort(exclude)
		require.NoError(t, err)
		_, dup := exclude[port]
		require.False(t, dup, "port %d handed out twice", port)
		exclude[port] = struct{}{}
	}
}

func TestIsAvailableFalseWhenBound(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	assert.False(t, IsAvailable(port))
}

func TestFreePortNeverReturnsHeldPort(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()
	held := l.Addr().(*net.TCPAddr).Port

	for i := 0; i < 10; i++ {
		port, err := NewProber().FreePort(nil)
		require.NoError(t, err)
		assert.NotEqual(t, held, port)
	}
}
