// Package switchagent implements an overlay switch: Pinger,
// ForwardingEngine, and NeighborProber wired into a single process
// bound to three UDP ports (spec §2, §4.5-§4.7, §6 ports 3003/3004/3009).
package switchagent

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/grapheo12/trustfabric/internal/wire"
)

// Switch owns one overlay switch's three components and the sockets
// they bind.
type Switch struct {
	LocalTD uint32
	ribLink *net.UDPAddr // home RIB's LinkStateManager, shared by Pinger and ForwardingEngine bootstrap

	Pinger     *Pinger
	Forwarding *ForwardingEngine
	Prober     *NeighborProber

	log   *slog.Logger
	conns []*net.UDPConn
}

// New constructs a Switch for localTD that reaches its home RIB at
// ribIP.
func New(localTD uint32, ribIP string, log *slog.Logger) (*Switch, error) {
	ribLinkAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", ribIP, wire.PortLinkState))
	if err != nil {
		return nil, fmt.Errorf("switchagent: resolve home RIB: %w", err)
	}

	return &Switch{
		LocalTD: localTD,
		log:     log,
		ribLink: ribLinkAddr,
	}, nil
}

func (s *Switch) bind(bindIP string, port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("switchagent: bind %s:%d: %w", bindIP, port, err)
	}
	s.conns = append(s.conns, conn)
	return conn, nil
}

// Start binds the pinger, forwarding, and prober sockets and launches
// every loop in its own goroutine. ForwardingEngine's bootstrap (spec
// §4.6 steps 1-3) runs in a goroutine of its own, and the forwarding
// dispatch loop starts only after it returns; the Pinger and
// NeighborProber start at once, and Start does not wait for bootstrap.
func (s *Switch) Start(ctx context.Context, bindIP string) error {
	pingConn, err := s.bind(bindIP, wire.PortPinger)
	if err != nil {
		return err
	}
	fwdConn, err := s.bind(bindIP, wire.PortForwarding)
	if err != nil {
		return err
	}
	proberConn, err := s.bind(bindIP, wire.PortNeighborProber)
	if err != nil {
		return err
	}

	s.Pinger = NewPinger(pingConn, s.ribLink, s.log)
	s.Forwarding = NewForwardingEngine(s.LocalTD, fwdConn, s.ribLink, s.log)
	s.Prober = NewNeighborProber(s.LocalTD, proberConn, s.Forwarding.PeerSwitches, s.log)

	go func() {
		s.Forwarding.Bootstrap()
		go s.Forwarding.ListenAndServe()
	}()
	go s.Pinger.RunLoop(ctx)
	go s.Prober.RunLoop(ctx)
	go s.Prober.ListenAndServe()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	s.log.Info("switchagent: started", "td", wire.TDTag(s.LocalTD))
	return nil
}

// Shutdown closes every bound socket.
func (s *Switch) Shutdown() {
	for _, c := range s.conns {
		c.Close()
	}
	s.log.Info("switchagent: shutdown", "td", wire.TDTag(s.LocalTD))
}
