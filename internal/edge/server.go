// Package edge implements the two end-host agents of spec §2, §4.1,
// §4.6-§4.7: DCServer, which advertises a DC name and echoes overlay
// datagrams back DOWN the path they arrived UP, and Client, which
// requests a path, injects a datagram, and measures round-trip time.
package edge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grapheo12/trustfabric/internal/wire"
)

// advertiseCadence is how often a DCServer re-announces its name to its
// home RIB (spec §2: "Each DC server periodically advertises its name").
const advertiseCadence = 5 * time.Second

// DCServer advertises one DC name to its home RIB and performs the
// last-mile echo: any overlay datagram delivered to it is flipped to
// DOWN and handed back to the switch that delivered it (spec §4.6
// "Last-mile delivery", §2 "the DC server flips the magic to DOWN").
type DCServer struct {
	DCName     string
	LocalTD    string // "AS<n>" tag of the hosting RIB
	ServerAddr string // this server's own IP, used as origin_server

	ribAdStoreAddr *net.UDPAddr
	conn           *net.UDPConn // bound to wire.PortDCServer

	log *slog.Logger
}

// NewDCServer constructs a DCServer for dcName, hosted in localTD at
// serverAddr, reachable at ribIP for advertisement push.
func NewDCServer(dcName, localTD, serverAddr, ribIP string, conn *net.UDPConn, log *slog.Logger) (*DCServer, error) {
	ribAddr, err := resolveAddr(ribIP, wire.PortAdStore)
	if err != nil {
		return nil, fmt.Errorf("edge: resolve home RIB: %w", err)
	}
	return &DCServer{
		DCName:         dcName,
		LocalTD:        localTD,
		ServerAddr:     serverAddr,
		ribAdStoreAddr: ribAddr,
		conn:           conn,
		log:            log,
	}, nil
}

func resolveAddr(ip string, port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, fmt.Sprint(port)))
}

// RunAdvertiseLoop sends one bare advertisement (empty td_path, this
// server as origin) to the home RIB every advertiseCadence until ctx is
// cancelled. The RIB's AdStore performs enrichment and flooding; the
// server only ever originates, never relays (spec §2, §4.1 step 6).
func (s *DCServer) RunAdvertiseLoop(ctx context.Context) {
	s.RunAdvertiseLoopEvery(ctx, advertiseCadence)
}

// RunAdvertiseLoopEvery is RunAdvertiseLoop with a caller-supplied
// cadence, used by the dcserver subcommand (cli.RunDCServer) to honor a config file's
// advertise_interval_sec.
func (s *DCServer) RunAdvertiseLoopEvery(ctx context.Context, interval time.Duration) {
	s.advertiseOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.advertiseOnce()
		}
	}
}

func (s *DCServer) advertiseOnce() {
	ad := wire.Advertisement{
		DCName:       s.DCName,
		OriginAS:     s.LocalTD,
		OriginServer: s.ServerAddr,
		TDPath:       "",
	}
	raw, err := ad.Encode()
	if err != nil {
		s.log.Warn("dcserver: encode advertisement failed", "error", err)
		return
	}
	if _, err := s.conn.WriteToUDP(raw, s.ribAdStoreAddr); err != nil {
		s.log.Debug("dcserver: send advertisement failed", "error", err)
	}
}

// ListenAndServe reads overlay datagrams delivered last-mile on
// wire.PortDCServer and echoes each one back DOWN to the switch it
// arrived from, with its payload (the client's embedded send-time)
// untouched (spec §3 "the DC server echoes it back untouched").
func (s *DCServer) ListenAndServe() {
	buf := make([]byte, 65536)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		d, err := wire.Decode(buf[:n])
		if err != nil {
			s.log.Debug("dcserver: dropping malformed datagram", "error", err)
			continue
		}
		if d.Magic != wire.MagicUp {
			s.log.Debug("dcserver: dropping non-UP datagram at last mile")
			continue
		}
		s.echoDown(d, addr)
	}
}

// echoDown flips d's magic and rewinds current_hop to the last hop
// index so the reverse DOWN traversal starts at the switch that just
// delivered the datagram (spec §4.6 DOWN path: I decrements from
// hop_count-1 down to 0).
func (s *DCServer) echoDown(d *wire.Datagram, fromSwitch *net.UDPAddr) {
	reply := &wire.Datagram{
		Magic:      wire.MagicDown,
		HopCount:   d.HopCount,
		SrcIP:      d.SrcIP,
		SrcPort:    d.SrcPort,
		DstIP:      d.DstIP,
		DstPort:    d.DstPort,
		Hops:       d.Hops,
		Payload:    d.Payload,
	}
	if d.HopCount > 0 {
		reply.CurrentHop = d.HopCount - 1
	}

	switchAddr := &net.UDPAddr{IP: fromSwitch.IP, Port: wire.PortForwarding}
	if _, err := s.conn.WriteToUDP(reply.Encode(), switchAddr); err != nil {
		s.log.Debug("dcserver: send DOWN echo failed", "error", err)
	}
}
