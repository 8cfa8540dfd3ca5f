// Package rib implements the control-plane agent of one trust domain:
// AdStore, CertStore, PathComputer, LinkStateManager, and TraceProbe
// (spec §2, §4.1-§4.4, §4.8), wired together into a single long-running
// process bound to four well-known UDP ports.
package rib

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/grapheo12/trustfabric/internal/fact"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// RIB owns every control-plane component for one trust domain and the
// four UDP sockets they bind (spec §6 ports 3001, 3002, 3005, 3006).
type RIB struct {
	LocalTD   string
	LocalAddr string

	Certs *CertStore
	Link  *LinkStateManager
	Ads   *AdStore
	Path  *PathComputer
	Trace *TraceProbe

	log   *slog.Logger
	conns []*net.UDPConn
}

// New constructs an RIB for localTD at localAddr, wiring its five
// components the way spec §9 describes agent construction: "each
// component takes, at construction, a small set of capability handles".
func New(localTD, localAddr string, facts *fact.Table, log *slog.Logger) *RIB {
	certs := NewCertStore(log)
	link := NewLinkStateManager(log)
	ads := NewAdStore(localTD, localAddr, certs, link, log)
	path := NewPathComputer(localTD, localAddr, certs, ads, log)
	trace := NewTraceProbe(localTD, facts, link, certs, log)

	return &RIB{
		LocalTD:   localTD,
		LocalAddr: localAddr,
		Certs:     certs,
		Link:      link,
		Ads:       ads,
		Path:      path,
		Trace:     trace,
		log:       log,
	}
}

// bind opens a UDP listener on bindIP:port and tracks it for Shutdown.
// A bind failure is the one fatal error in the system (spec §7): it is
// returned up through Start to the command's main, which prints it and
// exits with status 1.
func (r *RIB) bind(bindIP string, port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindIP), Port: port}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("rib: bind %s:%d: %w", bindIP, port, err)
	}
	r.conns = append(r.conns, conn)
	return conn, nil
}

// Start binds all four ports, launches each component's dispatch loop
// and PathComputer's rebuild ticker, and kicks off TraceProbe against
// the given set of other RIB addresses. It returns once every socket is
// bound; the dispatch loops run in their own goroutines until ctx is
// cancelled.
func (r *RIB) Start(ctx context.Context, bindIP string, peerRIBAddrs []string) error {
	adConn, err := r.bind(bindIP, wire.PortAdStore)
	if err != nil {
		return err
	}
	linkConn, err := r.bind(bindIP, wire.PortLinkState)
	if err != nil {
		return err
	}
	certConn, err := r.bind(bindIP, wire.PortCertStore)
	if err != nil {
		return err
	}
	pathConn, err := r.bind(bindIP, wire.PortPathComputer)
	if err != nil {
		return err
	}

	go r.Ads.ListenAndServe(adConn)
	go r.Link.ListenAndServe(linkConn)
	go r.Certs.ListenAndServe(certConn)
	go r.Path.ListenAndServe(pathConn)
	go r.Path.RunRebuildLoop(ctx)
	go r.Trace.RunLoop(ctx, peerRIBAddrs)
	go r.runLiveSwitchSweep(ctx)

	go func() {
		<-ctx.Done()
		r.Shutdown()
	}()

	r.log.Info("rib: started", "td", r.LocalTD, "addr", r.LocalAddr)
	return nil
}

// runLiveSwitchSweep periodically evicts stale live-switch entries
// (spec §9 Open question, resolved as a soft TTL in linkstate.go).
func (r *RIB) runLiveSwitchSweep(ctx context.Context) {
	t := time.NewTicker(liveSwitchTTL)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Link.Sweep()
		}
	}
}

// Shutdown closes every bound socket, causing each ListenAndServe loop
// to return.
func (r *RIB) Shutdown() {
	for _, c := range r.conns {
		c.Close()
	}
	r.log.Info("rib: shutdown", "td", r.LocalTD)
}
