package edge

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grapheo12/trustfabric/internal/wire"
)

func TestParseSwitchList(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, parseSwitchList("10.0.0.1 10.0.0.2\n"))
	assert.Empty(t, parseSwitchList(wire.NoSwitchesSentinel))
}

func TestClient_NearestSwitch_FallsBackToFirstKnown(t *testing.T) {
	c := &Client{switches: []string{"10.0.0.9", "10.0.0.2"}, nearest: map[string]time.Duration{}}
	ip, ok := c.NearestSwitch()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip) // sorted fallback, not insertion order
}

func TestClient_NearestSwitch_PrefersLowestRTT(t *testing.T) {
	c := &Client{
		switches: []string{"10.0.0.1", "10.0.0.2"},
		nearest: map[string]time.Duration{
			"10.0.0.1": 50 * time.Millisecond,
			"10.0.0.2": 5 * time.Millisecond,
		},
	}
	ip, ok := c.NearestSwitch()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", ip)
}

func TestClient_NearestSwitch_NoneKnown(t *testing.T) {
	c := &Client{nearest: map[string]time.Duration{}}
	_, ok := c.NearestSwitch()
	assert.False(t, ok)
}

func TestClient_Inject_SendsUpDatagramThroughNearestSwitch(t *testing.T) {
	switchConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: wire.PortForwarding})
	require.NoError(t, err)
	t.Cleanup(func() { switchConn.Close() })

	replyConn := newLoopbackConn(t)

	c := &Client{
		Name:      "user:alice",
		replyConn: replyConn,
		switches:  []string{"127.0.0.1"},
		nearest:   map[string]time.Duration{},
		log:       testLogger(),
	}

	c.Inject([]string{"AS0", "AS1"}, "10.0.0.9")

	buf := make([]byte, 2048)
	switchConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := switchConn.ReadFromUDP(buf)
	require.NoError(t, err)

	d, err := wire.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, wire.MagicUp, d.Magic)
	assert.Equal(t, []uint32{0, 1}, d.Hops)
	assert.Equal(t, wire.IPv4ToUint32(net.ParseIP("10.0.0.9")), d.DstIP)
	assert.Len(t, d.Payload, 8)
}

func TestClient_ListenAndServeReply_ComputesRTT(t *testing.T) {
	replyConn := newLoopbackConn(t)
	sender := newLoopbackConn(t)

	c := &Client{replyConn: replyConn, log: testLogger()}
	rtts := make(chan time.Duration, 1)
	go c.ListenAndServeReply(rtts)

	sendUs := time.Now().Add(-10 * time.Millisecond).UnixMicro()
	payload := make([]byte, 8)
	for i := 0; i < 8; i++ {
		payload[i] = byte(sendUs >> (8 * i))
	}
	d := &wire.Datagram{Magic: wire.MagicDown, Payload: payload}

	replyAddr := replyConn.LocalAddr().(*net.UDPAddr)
	_, err := sender.WriteToUDP(d.Encode(), replyAddr)
	require.NoError(t, err)

	select {
	case rtt := <-rtts:
		assert.Greater(t, rtt, time.Duration(0))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RTT measurement")
	}
}

func TestClient_RequestPath_EmptyPathSentinel(t *testing.T) {
	pathConn := newLoopbackConn(t)
	switchConn := newLoopbackConn(t)

	c := &Client{
		Name:       "user:alice",
		switchConn: switchConn,
		ribPath:    &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: portOf(t, pathConn)},
		log:        testLogger(),
	}

	go func() {
		buf := make([]byte, 2048)
		n, addr, err := pathConn.ReadFromUDP(buf)
		require.NoError(t, err)
		_ = n
		pathConn.WriteToUDP([]byte(wire.EncodePathResponse(nil, "")), addr)
	}()

	tdTags, destIP, ok := c.RequestPath("library")
	assert.False(t, ok)
	assert.Nil(t, tdTags)
	assert.Equal(t, "", destIP)
}
