// Package wire defines the on-the-wire formats shared by every agent in
// the fabric: the well-known UDP ports, the binary overlay datagram, and
// the line-oriented control commands and JSON payloads carried over UDP.
package wire

import "strconv"

// Well-known UDP ports, fixed so they match across every node (spec §6).
const (
	PortAdStore        = 3001 // RIB AdStore: advertisements, GIVESWITCHES, GIVEADS
	PortLinkState      = 3002 // RIB LinkStateManager: pings, GIVEPEERS
	PortPinger         = 3003 // Switch Pinger (outbound only)
	PortForwarding     = 3004 // Overlay ForwardingEngine
	PortCertStore      = 3005 // RIB CertStore
	PortPathComputer   = 3006 // RIB PathComputer (GIVEPATH)
	PortDCServer       = 3007 // DCServer echo
	PortClient         = 3008 // Client reply
	PortNeighborProber = 3009 // Overlay prober
	PortClientProber   = 3010 // Client prober
)

// Text commands (spec §6). GIVEADS and GIVEPATH carry a trailing argument.
const (
	CmdGiveSwitches = "GIVESWITCHES"
	CmdGivePeers    = "GIVEPEERS"
	CmdGiveAds      = "GIVEADS"
	CmdGivePath     = "GIVEPATH"

	AdResponsePrefix   = "ad:"
	PathResponsePrefix = "path:"

	EchoRequest        = "ECHOREQUEST"
	EchoResponse       = "ECHORESPONSE"
	EchoRequestClient  = "ECHOREQUESTCLIENT"
	EchoResponseClient = "ECHORESPONSECLIENT"
)

// NoSwitchesSentinel terminates a GIVESWITCHES reply when the live set is
// empty (spec §6: "empty or terminator 0.0.0.0 signals end").
const NoSwitchesSentinel = "0.0.0.0"

// TDTag formats a numeric TD identifier as the "AS<n>" tag used
// everywhere outside the binary overlay datagram: trust/distrust
// issuer and entity strings, GIVEPEERS lines, and GIVEPATH replies
// (spec §3, §6). The overlay datagram's hop vector is the one place the
// bare integer travels on the wire; TDNum converts back from a tag.
func TDTag(td uint32) string {
	return "AS" + strconv.FormatUint(uint64(td), 10)
}

// TDNum parses an "AS<n>" tag back into its numeric TD id.
func TDNum(tag string) (uint32, bool) {
	if len(tag) < 3 || tag[0] != 'A' || tag[1] != 'S' {
		return 0, false
	}
	n, err := strconv.ParseUint(tag[2:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
