package wire

import (
	"encoding/binary"
	"errors"
	"net"
)

// Overlay datagram magic values, placed at offset 0 (spec §3).
const (
	MagicUp   uint32 = 0xDEADFACE
	MagicDown uint32 = 0xCAFEBABE
)

// sigAreaSize is the reserved, zero-filled signature area. Certificate
// verification is explicitly a non-goal (spec §1); the area is carried
// on the wire for format compatibility and never inspected.
const sigAreaSize = 64

// fixedHeaderSize is the size of the datagram up to (not including) the
// hop vector: magic, hop_count, current_hop, content_size, src_ip,
// src_port, dst_ip, dst_port — 8 uint32 fields.
const fixedHeaderSize = 32

// ErrShortDatagram is returned when a buffer is too small to hold even
// the fixed header (spec §7: malformed inputs are dropped silently by
// callers, but Decode still reports why for logging/tests).
var ErrShortDatagram = errors.New("wire: datagram shorter than fixed header")

// ErrTruncatedDatagram is returned when the declared hop count / content
// size does not fit in the buffer actually received.
var ErrTruncatedDatagram = errors.New("wire: datagram truncated relative to declared sizes")

// ErrUnknownMagic is returned when the magic field is neither MagicUp nor
// MagicDown.
var ErrUnknownMagic = errors.New("wire: unrecognized magic")

// Datagram is the decoded form of an overlay datagram (spec §3).
type Datagram struct {
	Magic       uint32
	HopCount    uint32
	CurrentHop  uint32
	SrcIP       uint32
	SrcPort     uint32
	DstIP       uint32
	DstPort     uint32
	Hops       []uint32 // length == HopCount, element 0 is the first hop
	Payload    []byte
}

// Decode parses buf into a Datagram. It enforces the length checks from
// spec §4.6 step 1-3 and returns a sentinel error for each distinct
// malformed-input case so that callers can log-and-drop per spec §7.
func Decode(buf []byte) (*Datagram, error) {
	if len(buf) < fixedHeaderSize {
		return nil, ErrShortDatagram
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MagicUp && magic != MagicDown {
		return nil, ErrUnknownMagic
	}

	hopCount := binary.LittleEndian.Uint32(buf[4:8])
	currentHop := binary.LittleEndian.Uint32(buf[8:12])
	contentSize := binary.LittleEndian.Uint32(buf[12:16])
	srcIP := binary.LittleEndian.Uint32(buf[16:20])
	srcPort := binary.LittleEndian.Uint32(buf[20:24])
	dstIP := binary.LittleEndian.Uint32(buf[24:28])
	dstPort := binary.LittleEndian.Uint32(buf[28:32])

	need := fixedHeaderSize + 4*uint64(hopCount) + sigAreaSize + uint64(contentSize)
	if uint64(len(buf)) < need {
		return nil, ErrTruncatedDatagram
	}

	hops := make([]uint32, hopCount)
	off := fixedHeaderSize
	for i := range hops {
		hops[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	sigStart := off
	payloadStart := sigStart + sigAreaSize
	payload := make([]byte, contentSize)
	copy(payload, buf[payloadStart:payloadStart+int(contentSize)])

	return &Datagram{
		Magic:      magic,
		HopCount:   hopCount,
		CurrentHop: currentHop,
		SrcIP:      srcIP,
		SrcPort:    srcPort,
		DstIP:      dstIP,
		DstPort:    dstPort,
		Hops:       hops,
		Payload:    payload,
	}, nil
}

// Encode serializes d into the on-wire byte layout described in spec §3.
// The signature area is written as all zeros (non-goal: no certificate
// verification, spec §1).
func (d *Datagram) Encode() []byte {
	hopCount := uint32(len(d.Hops))
	total := fixedHeaderSize + 4*int(hopCount) + sigAreaSize + len(d.Payload)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], d.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], hopCount)
	binary.LittleEndian.PutUint32(buf[8:12], d.CurrentHop)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(d.Payload)))
	binary.LittleEndian.PutUint32(buf[16:20], d.SrcIP)
	binary.LittleEndian.PutUint32(buf[20:24], d.SrcPort)
	binary.LittleEndian.PutUint32(buf[24:28], d.DstIP)
	binary.LittleEndian.PutUint32(buf[28:32], d.DstPort)

	off := fixedHeaderSize
	for _, h := range d.Hops {
		binary.LittleEndian.PutUint32(buf[off:off+4], h)
		off += 4
	}
	// signature area left zero-filled
	payloadStart := off + sigAreaSize
	copy(buf[payloadStart:], d.Payload)

	return buf
}

// IPv4ToUint32 converts a dotted-quad (or any 4-byte) net.IP into the
// little-endian-native uint32 used by the wire format.
func IPv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v4)
}

// Uint32ToIPv4 is the inverse of IPv4ToUint32.
func Uint32ToIPv4(v uint32) net.IP {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return net.IP(b)
}
