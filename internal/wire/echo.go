package wire

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedEcho is returned when an ECHO{REQUEST,RESPONSE} payload
// does not carry the expected literal-prefix-plus-binary-timestamp shape.
var ErrMalformedEcho = errors.New("wire: malformed echo payload")

// encodeEchoRequest and encodeEchoResponse build fixed-size payloads:
// the literal ASCII command, a single space, and one or two
// little-endian integers (spec §4.7, §6).
func encodeEchoRequest(cmd string, sendUs int64) []byte {
	buf := make([]byte, len(cmd)+1+8)
	copy(buf, cmd)
	buf[len(cmd)] = ' '
	binary.LittleEndian.PutUint64(buf[len(cmd)+1:], uint64(sendUs))
	return buf
}

// EncodeEchoRequest builds an "ECHOREQUEST <send_time_us>" datagram for
// switch-to-switch RTT probing.
func EncodeEchoRequest(sendUs int64) []byte {
	return encodeEchoRequest(EchoRequest, sendUs)
}

// EncodeEchoRequestClient builds the client-variant request.
func EncodeEchoRequestClient(sendUs int64) []byte {
	return encodeEchoRequest(EchoRequestClient, sendUs)
}

func decodeEchoRequest(cmd string, buf []byte) (sendUs int64, ok bool) {
	prefix := cmd + " "
	if len(buf) != len(prefix)+8 || string(buf[:len(prefix)]) != prefix {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(buf[len(prefix):])), true
}

// DecodeEchoRequest parses an ECHOREQUEST payload.
func DecodeEchoRequest(buf []byte) (sendUs int64, ok bool) {
	return decodeEchoRequest(EchoRequest, buf)
}

// DecodeEchoRequestClient parses an ECHOREQUESTCLIENT payload.
func DecodeEchoRequestClient(buf []byte) (sendUs int64, ok bool) {
	return decodeEchoRequest(EchoRequestClient, buf)
}

func encodeEchoResponse(cmd string, sendUs int64, localTD int32) []byte {
	buf := make([]byte, len(cmd)+1+8+4)
	copy(buf, cmd)
	buf[len(cmd)] = ' '
	binary.LittleEndian.PutUint64(buf[len(cmd)+1:], uint64(sendUs))
	binary.LittleEndian.PutUint32(buf[len(cmd)+1+8:], uint32(localTD))
	return buf
}

// EncodeEchoResponse builds an "ECHORESPONSE <send_time_us> <local_td>"
// reply, echoing the probe's timestamp byte-exact (spec §4.7).
func EncodeEchoResponse(sendUs int64, localTD int32) []byte {
	return encodeEchoResponse(EchoResponse, sendUs, localTD)
}

// EncodeEchoResponseClient builds the client-variant reply.
func EncodeEchoResponseClient(sendUs int64, localTD int32) []byte {
	return encodeEchoResponse(EchoResponseClient, sendUs, localTD)
}

func decodeEchoResponse(cmd string, buf []byte) (sendUs int64, localTD int32, ok bool) {
	prefix := cmd + " "
	if len(buf) != len(prefix)+8+4 || string(buf[:len(prefix)]) != prefix {
		return 0, 0, false
	}
	sendUs = int64(binary.LittleEndian.Uint64(buf[len(prefix) : len(prefix)+8]))
	localTD = int32(binary.LittleEndian.Uint32(buf[len(prefix)+8:]))
	return sendUs, localTD, true
}

// DecodeEchoResponse parses an ECHORESPONSE payload.
func DecodeEchoResponse(buf []byte) (sendUs int64, localTD int32, ok bool) {
	return decodeEchoResponse(EchoResponse, buf)
}

// DecodeEchoResponseClient parses an ECHORESPONSECLIENT payload.
func DecodeEchoResponseClient(buf []byte) (sendUs int64, localTD int32, ok bool) {
	return decodeEchoResponse(EchoResponseClient, buf)
}
