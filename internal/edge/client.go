package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// pathRetryCadence governs how often the client re-issues a GIVEPATH
// request while it has no usable path to dcName (spec §7: "client
// retries on the next path request cadence").
const pathRetryCadence = 5 * time.Second

// clientProbeTimeout bounds how long the client waits for home-RIB
// replies (GIVESWITCHES) during startup.
const clientProbeTimeout = 5 * time.Second

// Client requests a path from its home RIB, injects an UP overlay
// datagram through the nearest local switch, and measures round-trip
// time on the DOWN reply (spec §2, §4.6, §4.7, grounded on
// dummy_client2.cc in original_source/).
type Client struct {
	Name    string // e.g. "user:alice", the issuer tag pledged to the home RIB
	LocalTD string

	ribAdStore *net.UDPAddr
	ribPath    *net.UDPAddr

	switchConn *net.UDPConn // bound to wire.PortClientProber, used for ECHOREQUESTCLIENT
	replyConn  *net.UDPConn // bound to wire.PortClient, receives DOWN replies

	mu       sync.RWMutex
	switches []string
	nearest  map[string]time.Duration // switch ip -> rtt

	log *slog.Logger
}

// NewClient constructs a Client pledged to ribIP, with the two UDP
// sockets the driver bound for it already open.
func NewClient(name, localTD, ribIP string, switchConn, replyConn *net.UDPConn, log *slog.Logger) (*Client, error) {
	adStoreAddr, err := resolveAddr(ribIP, wire.PortAdStore)
	if err != nil {
		return nil, fmt.Errorf("edge: resolve home RIB AdStore: %w", err)
	}
	pathAddr, err := resolveAddr(ribIP, wire.PortPathComputer)
	if err != nil {
		return nil, fmt.Errorf("edge: resolve home RIB PathComputer: %w", err)
	}
	return &Client{
		Name:       name,
		LocalTD:    localTD,
		ribAdStore: adStoreAddr,
		ribPath:    pathAddr,
		switchConn: switchConn,
		replyConn:  replyConn,
		nearest:    make(map[string]time.Duration),
		log:        log,
	}, nil
}

// Bootstrap asks the home RIB for its local switches and probes each
// with ECHOREQUESTCLIENT to find the nearest one (spec §4.7 "Clients
// run an analogous routine... to choose the nearest local switch").
func (c *Client) Bootstrap() {
	reply, err := udpRequest(c.switchConn, c.ribAdStore, []byte(wire.CmdGiveSwitches), clientProbeTimeout)
	if err != nil {
		c.log.Warn("client: GIVESWITCHES request failed", "error", err)
		return
	}
	switches := parseSwitchList(string(reply))
	c.mu.Lock()
	c.switches = switches
	c.mu.Unlock()

	for _, ip := range switches {
		c.probeOne(ip)
	}
}

func (c *Client) probeOne(ip string) {
	addr, err := resolveAddr(ip, wire.PortNeighborProber)
	if err != nil {
		c.log.Debug("client: resolve probe target failed", "ip", ip, "error", err)
		return
	}
	sendUs := time.Now().UnixMicro()
	if _, err := c.switchConn.WriteToUDP(wire.EncodeEchoRequestClient(sendUs), addr); err != nil {
		c.log.Debug("client: send ECHOREQUESTCLIENT failed", "ip", ip, "error", err)
	}
}

// ListenAndServeProbe reads ECHORESPONSECLIENT replies on switchConn
// and records the RTT for each switch, keeping only the lowest per
// switch (mirrors NeighborProber.recordResponse; spec §4.7).
func (c *Client) ListenAndServeProbe() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := c.switchConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		sendUs, _, ok := wire.DecodeEchoResponseClient(buf[:n])
		if !ok {
			continue
		}
		rtt := time.Duration(time.Now().UnixMicro()-sendUs) * time.Microsecond
		metrics.ProbeRTT.WithLabelValues("client").Observe(rtt.Seconds())
		ip := addr.IP.String()
		c.mu.Lock()
		if existing, ok := c.nearest[ip]; !ok || rtt < existing {
			c.nearest[ip] = rtt
		}
		c.mu.Unlock()
	}
}

// NearestSwitch returns the local switch with the lowest recorded RTT,
// falling back to the lexicographically smallest known switch IP if no
// probe has completed yet
// (spec §8 scenario 6).
func (c *Client) NearestSwitch() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	best := ""
	bestRTT := time.Duration(1<<63 - 1)
	for ip, rtt := range c.nearest {
		if rtt < bestRTT {
			best, bestRTT = ip, rtt
		}
	}
	if best != "" {
		return best, true
	}
	if len(c.switches) > 0 {
		cp := append([]string(nil), c.switches...)
		sort.Strings(cp)
		return cp[0], true
	}
	return "", false
}

// RequestPath sends a GIVEPATH request for dcName to the home RIB and
// parses the reply. ok is false for the empty-path sentinel "path:,"
// (spec §4.3 step 5, §8 boundary behaviour).
func (c *Client) RequestPath(dcName string) (tdTags []string, destIP string, ok bool) {
	body, err := json.Marshal(wire.PathRequest{ClientName: c.Name, DCName: dcName})
	if err != nil {
		c.log.Warn("client: encode GIVEPATH request failed", "error", err)
		return nil, "", false
	}
	req := append([]byte(wire.CmdGivePath+" "), body...)
	reqID := uuid.NewString()
	c.log.Debug("client: sending GIVEPATH request", "request_id", reqID, "dc_name", dcName)
	reply, err := udpRequest(c.switchConn, c.ribPath, req, clientProbeTimeout)
	if err != nil {
		c.log.Warn("client: GIVEPATH request failed", "request_id", reqID, "dc_name", dcName, "error", err)
		return nil, "", false
	}
	return wire.DecodePathResponse(string(reply))
}

// RunPathAndInjectLoop retries RequestPath on pathRetryCadence until a
// non-empty path is found, injects one UP datagram through the nearest
// switch, and returns. Callers that want to keep requesting (e.g. a
// long-running client harness) should call this in their own loop.
func (c *Client) RunPathAndInjectLoop(ctx context.Context, dcName string) {
	ticker := time.NewTicker(pathRetryCadence)
	defer ticker.Stop()
	for {
		tdTags, destIP, ok := c.RequestPath(dcName)
		if ok {
			c.Inject(tdTags, destIP)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Inject builds and sends an UP overlay datagram for the given TD-tag
// path and destination server IP through the nearest local switch,
// embedding the send time at payload offset 0 (spec §3, §4.6, §8
// scenario 1).
func (c *Client) Inject(tdTags []string, destIP string) {
	hops := make([]uint32, 0, len(tdTags))
	for _, tag := range tdTags {
		td, ok := wire.TDNum(tag)
		if !ok {
			c.log.Warn("client: malformed TD tag in path", "tag", tag)
			return
		}
		hops = append(hops, td)
	}

	switchIP, ok := c.NearestSwitch()
	if !ok {
		c.log.Warn("client: no known local switch, cannot inject")
		return
	}

	localAddr, ok := c.replyConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		c.log.Warn("client: reply socket has no resolved local address")
		return
	}

	payload := make([]byte, 8)
	sendUs := time.Now().UnixMicro()
	for i := 0; i < 8; i++ {
		payload[i] = byte(sendUs >> (8 * i))
	}

	d := &wire.Datagram{
		Magic:      wire.MagicUp,
		HopCount:   uint32(len(hops)),
		CurrentHop: 0,
		SrcIP:      wire.IPv4ToUint32(localAddr.IP),
		SrcPort:    uint32(wire.PortClient),
		DstIP:      wire.IPv4ToUint32(net.ParseIP(destIP)),
		DstPort:    uint32(wire.PortDCServer),
		Hops:       hops,
		Payload:    payload,
	}

	addr, err := resolveAddr(switchIP, wire.PortForwarding)
	if err != nil {
		c.log.Warn("client: resolve local switch failed", "ip", switchIP, "error", err)
		return
	}
	if _, err := c.replyConn.WriteToUDP(d.Encode(), addr); err != nil {
		c.log.Warn("client: inject send failed", "error", err)
	}
}

// ListenAndServeReply reads the DOWN-direction reply on replyConn and
// computes RTT from the embedded send-time, until the socket is closed
// (spec §2, §3, §8 scenario 1). rtts receives one measurement per reply
// for the caller to observe (tests, or a latency-reporting loop); it may
// be nil.
func (c *Client) ListenAndServeReply(rtts chan<- time.Duration) {
	buf := make([]byte, 65536)
	for {
		n, _, err := c.replyConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		d, err := wire.Decode(buf[:n])
		if err != nil {
			c.log.Debug("client: dropping malformed reply", "error", err)
			continue
		}
		if d.Magic != wire.MagicDown || len(d.Payload) < 8 {
			continue
		}
		var sendUs int64
		for i := 0; i < 8; i++ {
			sendUs |= int64(d.Payload[i]) << (8 * i)
		}
		rtt := time.Duration(time.Now().UnixMicro()-sendUs) * time.Microsecond
		c.log.Info("client: measured round trip", "rtt", rtt)
		if rtts != nil {
			rtts <- rtt
		}
	}
}

func parseSwitchList(reply string) []string {
	var out []string
	for _, ip := range splitFields(reply) {
		if ip == wire.NoSwitchesSentinel {
			break
		}
		out = append(out, ip)
	}
	return out
}

func splitFields(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

// udpRequest sends req on conn to addr and waits up to timeout for one
// reply, the same synchronous bootstrap idiom used by
// switchagent.ForwardingEngine (spec §9 "Callback-chained I/O").
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
