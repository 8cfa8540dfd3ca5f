package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagram_RoundTrip(t *testing.T) {
	d := &Datagram{
		Magic:      MagicUp,
		CurrentHop: 0,
		SrcIP:      IPv4ToUint32(net.ParseIP("10.0.0.1")),
		SrcPort:    5000,
		DstIP:      IPv4ToUint32(net.ParseIP("11.0.0.2")),
		DstPort:    6000,
		Hops:       []uint32{0, 1, 2},
		Payload:    []byte("hello"),
	}

	buf := d.Encode()
	got, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, d.Magic, got.Magic)
	assert.Equal(t, uint32(len(d.Hops)), got.HopCount)
	assert.Equal(t, d.CurrentHop, got.CurrentHop)
	assert.Equal(t, d.SrcIP, got.SrcIP)
	assert.Equal(t, d.SrcPort, got.SrcPort)
	assert.Equal(t, d.DstIP, got.DstIP)
	assert.Equal(t, d.DstPort, got.DstPort)
	assert.Equal(t, d.Hops, got.Hops)
	assert.Equal(t, d.Payload, got.Payload)
}

func TestDatagram_ZeroHopZeroPayload(t *testing.T) {
	d := &Datagram{Magic: MagicUp, Hops: nil, Payload: nil}
	buf := d.Encode()
	assert.Len(t, buf, fixedHeaderSize+sigAreaSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got.HopCount)
	assert.Empty(t, got.Payload)
}

func TestDecode_ShortDatagram(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortDatagram)
}

func TestDecode_UnknownMagic(t *testing.T) {
	d := &Datagram{Magic: 0x12345678}
	buf := d.Encode()
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrUnknownMagic)
}

func TestDecode_Truncated(t *testing.T) {
	d := &Datagram{Magic: MagicUp, Hops: []uint32{0, 1, 2}, Payload: []byte("x")}
	buf := d.Encode()
	_, err := Decode(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrTruncatedDatagram)
}

func TestIPv4RoundTrip(t *testing.T) {
	ip := net.ParseIP("192.168.1.42")
	v := IPv4ToUint32(ip)
	assert.True(t, Uint32ToIPv4(v).Equal(ip))
}
