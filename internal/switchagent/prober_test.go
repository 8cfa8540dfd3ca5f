package switchagent

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheo12/trustfabric/internal/wire"
)

func TestNeighborProber_RecordResponseKeepsLowerRTT(t *testing.T) {
	p := NewNeighborProber(0, newLoopbackConn(t), func() map[uint32][]string { return nil }, testLogger())

	now := time.Now().UnixMicro()
	p.recordResponse(1, "10.0.1.1", now-50_000) // ~50ms RTT
	ip, rtt, ok := p.Nearest(1)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.1", ip)
	assert.Greater(t, rtt, time.Duration(0))

	firstRTT := rtt
	p.recordResponse(1, "10.0.1.2", now-5_000_000) // much larger RTT, must not replace
	ip, rtt, ok = p.Nearest(1)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.1", ip)
	assert.Equal(t, firstRTT, rtt)
}

func TestNeighborProber_RecordResponseReplacesOnLowerRTT(t *testing.T) {
	p := NewNeighborProber(0, newLoopbackConn(t), func() map[uint32][]string { return nil }, testLogger())

	now := time.Now().UnixMicro()
	p.recordResponse(1, "10.0.1.1", now-5_000_000)
	p.recordResponse(1, "10.0.1.2", now-1_000)

	ip, _, ok := p.Nearest(1)
	require.True(t, ok)
	assert.Equal(t, "10.0.1.2", ip)
}

func TestNeighborProber_NearestUnknownTD(t *testing.T) {
	p := NewNeighborProber(0, newLoopbackConn(t), func() map[uint32][]string { return nil }, testLogger())
	_, _, ok := p.Nearest(42)
	assert.False(t, ok)
}

func TestNeighborProber_ListenAndServeRepliesToEchoRequest(t *testing.T) {
	serverConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { serverConn.Close() })

	p := NewNeighborProber(7, serverConn, func() map[uint32][]string { return nil }, testLogger())
	go p.ListenAndServe()

	clientConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	sendUs := time.Now().UnixMicro()
	req := wire.EncodeEchoRequest(sendUs)
	_, err = clientConn.WriteToUDP(req, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	require.NoError(t, clientConn.SetReadDeadline(timeInFuture()))
	buf := make([]byte, 2048)
	n, _, err := clientConn.ReadFromUDP(buf)
	require.NoError(t, err)

	gotSendUs, localTD, ok := wire.DecodeEchoResponse(buf[:n])
	require.True(t, ok)
	assert.Equal(t, sendUs, gotSendUs)
	assert.Equal(t, int32(7), localTD)
}
