package rib

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/grapheo12/trustfabric/internal/fact"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// Numeric semantics fixed by spec §4.8.
const (
	probesPerHop = 3
	maxTTL       = 30
	probeTimeout = 5 * time.Second
	traceStagger = 1 * time.Second
)

// TraceProbe is the sole mechanism for inter-TD peer discovery (spec
// §4.8): it traceroutes every other RIB address and records a direct
// peer relationship when exactly two distinct TDs appear on the trace.
type TraceProbe struct {
	localTD string
	facts   *fact.Table
	link    *LinkStateManager
	certs   *CertStore
	log     *slog.Logger

	// dialICMP is swapped out in tests to avoid requiring raw-socket
	// privilege; production wiring sets it to openICMPConn.
	dialICMP func() (*icmp.PacketConn, error)
}

// NewTraceProbe constructs a probe for the local TD against the given
// fact table and link-state manager. Discovered peers are recorded both
// in link (the td->rib_addr map used for GIVEPEERS) and in certs as a
// structural, infinite-transitivity trust edge: spec §3 names "TD-to-TD
// peering" as exactly the kind of fact an r=∞ edge represents, and
// without it a RIB's own graph would have no edge out of "me" at all.
func NewTraceProbe(localTD string, facts *fact.Table, link *LinkStateManager, certs *CertStore, log *slog.Logger) *TraceProbe {
	return &TraceProbe{
		localTD:  localTD,
		facts:    facts,
		link:     link,
		certs:    certs,
		log:      log,
		dialICMP: openICMPConn,
	}
}

func openICMPConn() (*icmp.PacketConn, error) {
	return icmp.ListenPacket("ip4:icmp", "0.0.0.0")
}

// RunLoop traces each address in ribAddresses, in order, staggering each target's trace start by traceStagger (spec §4.8:
// "traces run serially with a 1s staggered start per target"), until
// ctx is cancelled. Intended to be run once at RIB startup; a real
// deployment typically re-runs it periodically to pick up topology
// changes, but the spec names TraceProbe only as a startup-time peer
// discovery mechanism.
func (t *TraceProbe) RunLoop(ctx context.Context, ribAddresses []string) {
	ticker := time.NewTicker(traceStagger)
	defer ticker.Stop()
	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if i >= len(ribAddresses) {
				return
			}
			target := ribAddresses[i]
			i++
			t.traceOne(target)
		}
	}
}

// traceOne runs a TTL sweep against target and records a peer
// relationship if the trace resolves to exactly two distinct TDs.
func (t *TraceProbe) traceOne(target string) {
	hops, err := t.sweep(target)
	if err != nil {
		t.log.Debug("traceprobe: sweep failed", "target", target, "error", err)
		return
	}

	tds := map[string]bool{t.localTD: true}
	for _, hop := range hops {
		if td, ok := t.facts.TDOf(hop); ok {
			tds[td] = true
		}
	}
	if len(tds) != 2 {
		t.log.Debug("traceprobe: target not a one-hop peer", "target", target, "distinct_tds", len(tds))
		return
	}
	var remoteTD string
	for td := range tds {
		if td != t.localTD {
			remoteTD = td
		}
	}
	t.link.SetPeer(remoteTD, target)
	inf := -1
	t.certs.Insert(Assertion{Issuer: t.localTD, Entity: remoteTD, Kind: wire.CertKindTrust, RTransitivity: &inf})
	t.log.Info("traceprobe: discovered peer", "td", remoteTD, "rib_addr", target)
}

// sweep performs the TTL sweep itself and returns the ordered hop IPs.
// probesPerHop probes are sent per TTL value; the first to reply is
// kept. The sweep stops once a reply arrives from target itself.
func (t *TraceProbe) sweep(target string) ([]string, error) {
	dst := net.ParseIP(target)
	if dst == nil {
		return nil, os.ErrInvalid
	}

	conn, err := t.dialICMP()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	pconn := conn.IPv4PacketConn()
	var hops []string

	id := os.Getpid() & 0xffff
	for ttl := 1; ttl <= maxTTL; ttl++ {
		if err := pconn.SetTTL(ttl); err != nil {
			return hops, err
		}

		hop, reachedDest, err := t.probeTTL(conn, pconn, dst, id, ttl)
		if err != nil {
			// No reply at this TTL from probesPerHop attempts: record
			// nothing for this hop and continue, mirroring a standard
			// traceroute's "* * *" line.
			continue
		}
		hops = append(hops, hop)
		if reachedDest {
			break
		}
	}
	return hops, nil
}

// probeTTL sends up to probesPerHop echo requests at one TTL and
// returns the first responder's address.
func (t *TraceProbe) probeTTL(conn *icmp.PacketConn, pconn *ipv4.PacketConn, dst net.IP, id, ttl int) (hopIP string, reachedDest bool, err error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: ttl, Data: []byte("trustfabric-trace")},
	}
	raw, err := msg.Marshal(nil)
	if err != nil {
		return "", false, err
	}

	for attempt := 0; attempt < probesPerHop; attempt++ {
		if _, err := conn.WriteTo(raw, &net.IPAddr{IP: dst}); err != nil {
			continue
		}
		conn.SetReadDeadline(time.Now().Add(probeTimeout))
		buf := make([]byte, 1500)
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			continue
		}
		reply, err := icmp.ParseMessage(1, buf[:n])
		if err != nil {
			continue
		}
		addr, ok := peer.(*net.IPAddr)
		if !ok {
			continue
		}
		switch reply.Type {
		case ipv4.ICMPTypeTimeExceeded:
			return addr.IP.String(), false, nil
		case ipv4.ICMPTypeEchoReply:
			return addr.IP.String(), addr.IP.Equal(dst), nil
		}
	}
	return "", false, os.ErrDeadlineExceeded
}
