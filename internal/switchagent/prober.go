package switchagent

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// proberInterval and proberFirstDelay fix the cadence of spec §4.7:
// "every ~100s, with the first probe at t≈50s".
const (
	proberInterval   = 100 * time.Second
	proberFirstDelay = 50 * time.Second
)

// nearestEntry is the (source_ip_only, rtt) pair recorded per peer TD
// (spec §4.7).
type nearestEntry struct {
	IP  string
	RTT time.Duration
}

// NeighborProber probes overlay switches in peer TDs for RTT and
// maintains a nearest-peer table (spec §4.7).
type NeighborProber struct {
	localTD uint32
	conn    *net.UDPConn
	peers   func() map[uint32][]string // supplied by ForwardingEngine.PeerSwitches

	mu      sync.RWMutex
	nearest map[uint32]nearestEntry

	log *slog.Logger
}

// NewNeighborProber constructs a prober bound to conn (the well-known
// prober port) using peers to enumerate current peer-switch targets.
func NewNeighborProber(localTD uint32, conn *net.UDPConn, peers func() map[uint32][]string, log *slog.Logger) *NeighborProber {
	return &NeighborProber{
		localTD: localTD,
		conn:    conn,
		peers:   peers,
		nearest: make(map[uint32]nearestEntry),
		log:     log,
	}
}

// Nearest returns the best known (ip, rtt) for peer TD td, if any.
func (p *NeighborProber) Nearest(td uint32) (string, time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.nearest[td]
	return e.IP, e.RTT, ok
}

// RunLoop sends one round of probes at t≈proberFirstDelay and every
// proberInterval thereafter, until ctx is cancelled.
func (p *NeighborProber) RunLoop(ctx context.Context) {
	timer := time.NewTimer(proberFirstDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.probeAll()
			timer.Reset(proberInterval)
		}
	}
}

func (p *NeighborProber) probeAll() {
	for td, ips := range p.peers() {
		for _, ip := range ips {
			p.probeOne(td, ip)
		}
	}
}

func (p *NeighborProber) probeOne(td uint32, ip string) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(wire.PortNeighborProber)))
	if err != nil {
		p.log.Debug("prober: resolve target failed", "ip", ip, "error", err)
		return
	}
	sendUs := time.Now().UnixMicro()
	if _, err := p.conn.WriteToUDP(wire.EncodeEchoRequest(sendUs), addr); err != nil {
		p.log.Debug("prober: send ECHOREQUEST failed", "ip", ip, "error", err)
	}
}

// ListenAndServe handles inbound ECHOREQUEST probes from peer switches
// (replying with ECHORESPONSE), inbound ECHOREQUESTCLIENT probes from
// local clients choosing a nearest switch (replying with
// ECHORESPONSECLIENT), and inbound ECHORESPONSE replies (updating the
// nearest table) on the same prober socket (spec §4.7).
func (p *NeighborProber) ListenAndServe() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := buf[:n]

		if sendUs, ok := wire.DecodeEchoRequest(msg); ok {
			reply := wire.EncodeEchoResponse(sendUs, int32(p.localTD))
			if _, err := p.conn.WriteToUDP(reply, addr); err != nil {
				p.log.Debug("prober: write ECHORESPONSE failed", "error", err)
			}
			continue
		}
		if sendUs, ok := wire.DecodeEchoRequestClient(msg); ok {
			reply := wire.EncodeEchoResponseClient(sendUs, int32(p.localTD))
			if _, err := p.conn.WriteToUDP(reply, addr); err != nil {
				p.log.Debug("prober: write ECHORESPONSECLIENT failed", "error", err)
			}
			continue
		}
		if sendUs, remoteTD, ok := wire.DecodeEchoResponse(msg); ok {
			p.recordResponse(uint32(remoteTD), addr.IP.String(), sendUs)
		}
	}
}

func (p *NeighborProber) recordResponse(remoteTD uint32, ip string, sendUs int64) {
	rtt := time.Duration(time.Now().UnixMicro()-sendUs) * time.Microsecond
	metrics.ProbeRTT.WithLabelValues("switch").Observe(rtt.Seconds())

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.nearest[remoteTD]; !ok || rtt < existing.RTT {
		p.nearest[remoteTD] = nearestEntry{IP: ip, RTT: rtt}
	}
}
