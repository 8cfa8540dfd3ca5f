package switchagent

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// peerCalcDelay is the wait before a ForwardingEngine starts trusting
// trace-based peer discovery to have converged (spec §4.6 step 1).
const peerCalcDelay = 15 * time.Second

// requestTimeout bounds how long a GIVEPEERS/GIVESWITCHES bootstrap
// request waits for a reply.
const requestTimeout = 5 * time.Second

// ForwardingEngine forwards source-routed overlay datagrams hop-by-hop
// and performs last-mile IP delivery at path endpoints (spec §4.6).
type ForwardingEngine struct {
	localTD uint32
	ribLink *net.UDPAddr // home RIB's LinkStateManager (GIVEPEERS)
	conn    *net.UDPConn // bound to the overlay forwarding port

	mu           sync.RWMutex
	peerRIB      map[uint32]string   // td_num -> peer RIB address
	peerSwitches map[uint32][]string // td_num -> known switch addresses
	cursor       map[uint32]int      // round-robin cursor per td, for the peer-switch set

	lastMileMu sync.Mutex
	lastMile   map[string]*net.UDPConn

	log *slog.Logger
}

// NewForwardingEngine constructs an engine for localTD, bound to conn
// for overlay traffic and talking to ribLink for peer discovery.
func NewForwardingEngine(localTD uint32, conn *net.UDPConn, ribLink *net.UDPAddr, log *slog.Logger) *ForwardingEngine {
	return &ForwardingEngine{
		localTD:      localTD,
		ribLink:      ribLink,
		conn:         conn,
		peerRIB:      make(map[uint32]string),
		peerSwitches: make(map[uint32][]string),
		cursor:       make(map[uint32]int),
		lastMile:     make(map[string]*net.UDPConn),
		log:          log,
	}
}

// Bootstrap runs the startup sequence of spec §4.6: wait peerCalcDelay,
// ask the home RIB for peers, then ask each peer RIB for its switches.
func (f *ForwardingEngine) Bootstrap() {
	time.Sleep(peerCalcDelay)

	reply, err := udpRequest(f.conn, f.ribLink, []byte(wire.CmdGivePeers), requestTimeout)
	if err != nil {
		f.log.Warn("forwarding: GIVEPEERS request failed", "error", err)
		return
	}
	peers := parseGivePeers(string(reply))
	f.mu.Lock()
	f.peerRIB = peers
	f.mu.Unlock()

	for td, ribAddr := range peers {
		addr, err := resolveForwardingPeer(ribAddr, wire.PortAdStore)
		if err != nil {
			f.log.Warn("forwarding: resolve peer RIB failed", "rib_addr", ribAddr, "error", err)
			continue
		}
		reply, err := udpRequest(f.conn, addr, []byte(wire.CmdGiveSwitches), requestTimeout)
		if err != nil {
			f.log.Warn("forwarding: GIVESWITCHES request failed", "td", wire.TDTag(td), "error", err)
			continue
		}
		switches := parseGiveSwitches(string(reply))
		f.mu.Lock()
		f.peerSwitches[td] = switches
		f.mu.Unlock()
		f.log.Info("forwarding: learned peer switches", "td", wire.TDTag(td), "count", len(switches))
	}
}

func resolveForwardingPeer(ip string, port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
}

// parseGivePeers parses the "<tag> <rib_ip>\n" lines of a GIVEPEERS
// reply (spec §6).
func parseGivePeers(reply string) map[uint32]string {
	out := make(map[uint32]string)
	for _, line := range strings.Split(strings.TrimSpace(reply), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		td, ok := wire.TDNum(parts[0])
		if !ok {
			continue
		}
		out[td] = parts[1]
	}
	return out
}

// parseGiveSwitches parses the space-separated IP list of a
// GIVESWITCHES reply, stopping at the sentinel (spec §6).
func parseGiveSwitches(reply string) []string {
	var out []string
	for _, ip := range strings.Fields(reply) {
		if ip == wire.NoSwitchesSentinel {
			break
		}
		out = append(out, ip)
	}
	return out
}

// nextPeerSwitch returns the next address in td's switch set using a
// per-destination round-robin cursor (spec §9 Open question, resolved
// as round-robin over the documented "first element" behaviour).
func (f *ForwardingEngine) nextPeerSwitch(td uint32) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switches := f.peerSwitches[td]
	if len(switches) == 0 {
		return "", false
	}
	i := f.cursor[td] % len(switches)
	f.cursor[td] = (i + 1) % len(switches)
	return switches[i], true
}

// HandleDatagram runs the per-packet state machine of spec §4.6 steps
// 1-5 against one received overlay datagram. buf is the raw UDP
// payload exactly as received.
func (f *ForwardingEngine) HandleDatagram(buf []byte) {
	d, err := wire.Decode(buf)
	if err != nil {
		f.log.Debug("forwarding: dropping malformed datagram", "error", err)
		metrics.ForwardingDroppedTotal.WithLabelValues("malformed").Inc()
		return
	}

	switch d.Magic {
	case wire.MagicUp:
		f.handleUp(d)
	case wire.MagicDown:
		f.handleDown(d)
	}
}

func (f *ForwardingEngine) handleUp(d *wire.Datagram) {
	if d.HopCount == 0 {
		metrics.ForwardedTotal.WithLabelValues("up_last_mile").Inc()
		f.deliverLastMile(wire.Uint32ToIPv4(d.DstIP).String(), int(d.DstPort), d)
		return
	}
	if d.CurrentHop >= d.HopCount || d.Hops[d.CurrentHop] != f.localTD {
		f.log.Debug("forwarding: UP datagram not addressed to this hop", "current_hop", d.CurrentHop)
		metrics.ForwardingDroppedTotal.WithLabelValues("hop_mismatch").Inc()
		return
	}
	d.CurrentHop++
	if d.CurrentHop == d.HopCount {
		metrics.ForwardedTotal.WithLabelValues("up_last_mile").Inc()
		f.deliverLastMile(wire.Uint32ToIPv4(d.DstIP).String(), int(d.DstPort), d)
		return
	}
	next := d.Hops[d.CurrentHop]
	addr, ok := f.nextPeerSwitch(next)
	if !ok {
		f.log.Debug("forwarding: no known switch for next hop", "td", wire.TDTag(next))
		metrics.ForwardingDroppedTotal.WithLabelValues("no_peer_switch").Inc()
		return
	}
	metrics.ForwardedTotal.WithLabelValues("up").Inc()
	f.forwardTo(addr, d)
}

func (f *ForwardingEngine) handleDown(d *wire.Datagram) {
	if d.HopCount == 0 {
		metrics.ForwardedTotal.WithLabelValues("down_last_mile").Inc()
		f.deliverLastMile(wire.Uint32ToIPv4(d.SrcIP).String(), int(d.SrcPort), d)
		return
	}
	if d.CurrentHop >= d.HopCount || d.Hops[d.CurrentHop] != f.localTD {
		f.log.Debug("forwarding: DOWN datagram not addressed to this hop", "current_hop", d.CurrentHop)
		metrics.ForwardingDroppedTotal.WithLabelValues("hop_mismatch").Inc()
		return
	}
	if d.CurrentHop == 0 {
		metrics.ForwardedTotal.WithLabelValues("down_last_mile").Inc()
		f.deliverLastMile(wire.Uint32ToIPv4(d.SrcIP).String(), int(d.SrcPort), d)
		return
	}
	d.CurrentHop--
	prev := d.Hops[d.CurrentHop]
	addr, ok := f.nextPeerSwitch(prev)
	if !ok {
		f.log.Debug("forwarding: no known switch for previous hop", "td", wire.TDTag(prev))
		metrics.ForwardingDroppedTotal.WithLabelValues("no_peer_switch").Inc()
		return
	}
	metrics.ForwardedTotal.WithLabelValues("down").Inc()
	f.forwardTo(addr, d)
}

// forwardTo re-encodes d (with its updated CurrentHop) and sends it to
// another overlay switch on the forwarding port.
func (f *ForwardingEngine) forwardTo(ip string, d *wire.Datagram) {
	addr, err := resolveForwardingPeer(ip, wire.PortForwarding)
	if err != nil {
		f.log.Debug("forwarding: resolve next switch failed", "ip", ip, "error", err)
		return
	}
	if _, err := f.conn.WriteToUDP(d.Encode(), addr); err != nil {
		f.log.Debug("forwarding: send to next switch failed", "ip", ip, "error", err)
	}
}

// deliverLastMile performs the final IP delivery step using a
// cached-by-destination socket so per-packet socket setup is amortised
// (spec §4.6 "Last-mile delivery").
func (f *ForwardingEngine) deliverLastMile(ip string, port int, d *wire.Datagram) {
	conn, err := f.lastMileConn(ip, port)
	if err != nil {
		f.log.Debug("forwarding: last-mile dial failed", "ip", ip, "port", port, "error", err)
		return
	}
	if _, err := conn.Write(d.Encode()); err != nil {
		f.log.Debug("forwarding: last-mile send failed", "ip", ip, "port", port, "error", err)
	}
}

func (f *ForwardingEngine) lastMileConn(ip string, port int) (*net.UDPConn, error) {
	key := fmt.Sprintf("%s:%d", ip, port)

	f.lastMileMu.Lock()
	defer f.lastMileMu.Unlock()
	if conn, ok := f.lastMile[key]; ok {
		return conn, nil
	}
	addr, err := net.ResolveUDPAddr("udp4", key)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	f.lastMile[key] = conn
	return conn, nil
}

// ListenAndServe reads overlay datagrams from conn until it is closed.
func (f *ForwardingEngine) ListenAndServe() {
	buf := make([]byte, 65536)
	for {
		n, _, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		go f.HandleDatagram(cp)
	}
}

// PeerSwitches returns a defensive copy of td's known switch set, used
// by NeighborProber to enumerate probe targets.
func (f *ForwardingEngine) PeerSwitches() map[uint32][]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[uint32][]string, len(f.peerSwitches))
	for td, ips := range f.peerSwitches {
		cp := append([]string(nil), ips...)
		sort.Strings(cp)
		out[td] = cp
	}
	return out
}

// udpRequest sends req on conn to addr and waits up to timeout for one
// reply, the synchronous request/response idiom used by every
// ForwardingEngine bootstrap step (spec §4.6, §9 "Callback-chained
// I/O").
func udpRequest(conn *net.UDPConn, addr *net.UDPAddr, req []byte, timeout time.Duration) ([]byte, error) {
	if _, err := conn.WriteToUDP(req, addr); err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 65536)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
