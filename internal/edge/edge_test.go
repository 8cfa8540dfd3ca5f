package edge

import (
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newLoopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func portOf(t *testing.T, conn *net.UDPConn) int {
	t.Helper()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)
	return addr.Port
}
