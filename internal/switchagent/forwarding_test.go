package switchagent

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheo12/trustfabric/internal/wire"
)

func timeInFuture() time.Time {
	return time.Now().Add(2 * time.Second)
}

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

func TestParseGivePeers(t *testing.T) {
	reply := "AS0 10.0.0.1\nAS1 10.0.0.2\n"
	peers := parseGivePeers(reply)
	assert.Equal(t, map[uint32]string{0: "10.0.0.1", 1: "10.0.0.2"}, peers)
}

func TestParseGivePeers_IgnoresMalformedLines(t *testing.T) {
	reply := "AS0 10.0.0.1\nbogus\nAS2 10.0.0.3\n"
	peers := parseGivePeers(reply)
	assert.Equal(t, map[uint32]string{0: "10.0.0.1", 2: "10.0.0.3"}, peers)
}

func TestParseGiveSwitches_StopsAtSentinel(t *testing.T) {
	reply := "10.0.1.1 10.0.1.2 0.0.0.0 10.0.1.3"
	got := parseGiveSwitches(reply)
	assert.Equal(t, []string{"10.0.1.1", "10.0.1.2"}, got)
}

func TestParseGiveSwitches_Empty(t *testing.T) {
	got := parseGiveSwitches(wire.NoSwitchesSentinel)
	assert.Empty(t, got)
}

func TestForwardingEngine_NextPeerSwitchRoundRobin(t *testing.T) {
	f := NewForwardingEngine(0, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	f.peerSwitches[1] = []string{"10.0.1.1", "10.0.1.2", "10.0.1.3"}

	var got []string
	for i := 0; i < 6; i++ {
		addr, ok := f.nextPeerSwitch(1)
		require.True(t, ok)
		got = append(got, addr)
	}
	assert.Equal(t, []string{
		"10.0.1.1", "10.0.1.2", "10.0.1.3",
		"10.0.1.1", "10.0.1.2", "10.0.1.3",
	}, got)
}

func TestForwardingEngine_NextPeerSwitchUnknownTD(t *testing.T) {
	f := NewForwardingEngine(0, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	_, ok := f.nextPeerSwitch(99)
	assert.False(t, ok)
}

func TestForwardingEngine_HandleDatagram_UnknownMagicDropped(t *testing.T) {
	f := NewForwardingEngine(0, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	buf := make([]byte, 32+64)
	buf[0] = 0xAA // neither MagicUp nor MagicDown
	f.HandleDatagram(buf) // must not panic
}

func TestForwardingEngine_HandleDatagram_TruncatedDropped(t *testing.T) {
	f := NewForwardingEngine(0, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	f.HandleDatagram([]byte{1, 2, 3}) // shorter than fixed header, must not panic
}

// buildUp constructs an UP datagram whose hop vector is hops, with
// currentHop pointing at the hop this switch should act on.
func buildUp(hops []uint32, currentHop uint32, dstIP net.IP, dstPort uint32) *wire.Datagram {
	return &wire.Datagram{
		Magic:      wire.MagicUp,
		HopCount:   uint32(len(hops)),
		CurrentHop: currentHop,
		SrcIP:      wire.IPv4ToUint32(net.ParseIP("10.0.0.5")),
		SrcPort:    5000,
		DstIP:      wire.IPv4ToUint32(dstIP),
		DstPort:    dstPort,
		Hops:       hops,
		Payload:    []byte("hello"),
	}
}

func TestForwardingEngine_HandleUp_LastHopDeliversLastMile(t *testing.T) {
	// Single-hop path: this switch (td=1) is the last hop, so the UP
	// datagram should be delivered to the destination IP:port rather
	// than forwarded onward.
	dst, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer dst.Close()
	dstPort := uint32(dst.LocalAddr().(*net.UDPAddr).Port)

	f := NewForwardingEngine(1, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	d := buildUp([]uint32{1}, 0, net.ParseIP("127.0.0.1"), dstPort)

	f.handleUp(d)

	buf := make([]byte, 2048)
	dst.SetReadDeadline(timeInFuture())
	n, _, err := dst.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.CurrentHop)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestForwardingEngine_HandleUp_HopCountZeroDeliversLastMile(t *testing.T) {
	// spec §8 boundary behaviour: an UP datagram with H=0, I=0 is
	// delivered immediately to (dst_ip,dst_port) on arrival at any switch,
	// rather than dropped as a hop mismatch.
	dst, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer dst.Close()
	dstPort := uint32(dst.LocalAddr().(*net.UDPAddr).Port)

	f := NewForwardingEngine(1, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	d := buildUp(nil, 0, net.ParseIP("127.0.0.1"), dstPort)

	f.handleUp(d)

	buf := make([]byte, 2048)
	dst.SetReadDeadline(timeInFuture())
	n, _, err := dst.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got.HopCount)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestForwardingEngine_HandleDown_HopCountZeroDeliversLastMile(t *testing.T) {
	// Symmetric DOWN-direction boundary case: H=0, I=0 delivers to
	// (src_ip,src_port) rather than being dropped.
	src, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer src.Close()
	srcPort := uint32(src.LocalAddr().(*net.UDPAddr).Port)

	f := NewForwardingEngine(1, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	d := &wire.Datagram{
		Magic:      wire.MagicDown,
		HopCount:   0,
		CurrentHop: 0,
		SrcIP:      wire.IPv4ToUint32(net.ParseIP("127.0.0.1")),
		SrcPort:    srcPort,
		DstIP:      wire.IPv4ToUint32(net.ParseIP("10.0.0.9")),
		DstPort:    4000,
		Hops:       nil,
		Payload:    []byte("reply"),
	}

	f.handleDown(d)

	buf := make([]byte, 2048)
	src.SetReadDeadline(timeInFuture())
	n, _, err := src.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got.HopCount)
	assert.Equal(t, []byte("reply"), got.Payload)
}

func TestForwardingEngine_HandleUp_NotAddressedToThisHop(t *testing.T) {
	f := NewForwardingEngine(2, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	d := buildUp([]uint32{1}, 0, net.ParseIP("127.0.0.1"), 9999)
	f.handleUp(d) // hop[0] == 1, this switch is td 2: must be ignored, not panic
	assert.Equal(t, uint32(0), d.CurrentHop)
}

func TestForwardingEngine_HandleDown_FirstHopDeliversLastMile(t *testing.T) {
	src, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer src.Close()
	srcPort := uint32(src.LocalAddr().(*net.UDPAddr).Port)

	f := NewForwardingEngine(1, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	d := &wire.Datagram{
		Magic:      wire.MagicDown,
		HopCount:   1,
		CurrentHop: 0,
		SrcIP:      wire.IPv4ToUint32(net.ParseIP("127.0.0.1")),
		SrcPort:    srcPort,
		DstIP:      wire.IPv4ToUint32(net.ParseIP("10.0.0.9")),
		DstPort:    4000,
		Hops:       []uint32{1},
		Payload:    []byte("reply"),
	}

	f.handleDown(d)

	buf := make([]byte, 2048)
	src.SetReadDeadline(timeInFuture())
	n, _, err := src.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, []byte("reply"), got.Payload)
}

func TestForwardingEngine_PeerSwitchesReturnsSortedCopy(t *testing.T) {
	f := NewForwardingEngine(0, newLoopbackConn(t), &net.UDPAddr{}, testLogger())
	f.peerSwitches[1] = []string{"10.0.1.3", "10.0.1.1", "10.0.1.2"}

	got := f.PeerSwitches()
	assert.Equal(t, []string{"10.0.1.1", "10.0.1.2", "10.0.1.3"}, got[1])

	// mutating the returned copy must not affect internal state
	got[1][0] = "mutated"
	assert.Equal(t, "10.0.1.3", f.peerSwitches[1][0])
}
