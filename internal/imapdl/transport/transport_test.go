package transport

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnTalliesBytesRead(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		server.Write([]byte("hello"))
	}()

	c := &Conn{Conn: client}
	buf := make([]byte, 5)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), c.BytesRead())
}

func TestIsBenignCloseRequiresLoggedOutState(t *testing.T) {
	assert.True(t, IsBenignClose(io.EOF, true))
	assert.False(t, IsBenignClose(io.EOF, false))
	assert.True(t, IsBenignClose(nil, false))
}

func TestIsBenignCloseRejectsNonCloseErrors(t *testing.T) {
	assert.False(t, IsBenignClose(assert.AnError, true))
}
