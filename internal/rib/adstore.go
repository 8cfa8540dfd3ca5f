package rib

import (
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// Entry is the in-memory form of a NameDBEntry (spec §3): an
// advertisement for one dc_name from one origin TD.
type Entry struct {
	DCName       string
	OriginTDAddr string
	OriginServer string
	TDPath       []string
	TrustCert    *Assertion
	DistrustCert []Assertion
}

// entryKey identifies one (dc_name, origin) slot (spec §4.1: "at most
// one NameDBEntry per (dc_name, origin_td_addr) pair").
type entryKey struct {
	dcName string
	origin string
}

// AdStore floods DC-name advertisements between peer RIBs and answers
// GIVESWITCHES/GIVEADS on its own port (spec §4.1). It is the most
// involved RIB component: every received advertisement runs through
// loop suppression, a shortest-path cache update, a neighbour check, and
// (at the origin) trust enrichment, before being flooded onward.
type AdStore struct {
	mu      sync.Mutex
	entries map[entryKey]Entry

	localTD   string // "AS<n>", used to detect loop/origin
	localAddr string // this RIB's own address, appended to td_path on flood

	certs  *CertStore
	link   *LinkStateManager
	log    *slog.Logger
	conn   *net.UDPConn
	floodFn func(delay time.Duration, fn func())
}

// NewAdStore constructs an AdStore bound to one TD. floodFn lets tests
// substitute a synchronous scheduler for the real time.AfterFunc-based
// one used in production.
func NewAdStore(localTD, localAddr string, certs *CertStore, link *LinkStateManager, log *slog.Logger) *AdStore {
	s := &AdStore{
		entries:   make(map[entryKey]Entry),
		localTD:   localTD,
		localAddr: localAddr,
		certs:     certs,
		link:      link,
		log:       log,
	}
	s.floodFn = func(delay time.Duration, fn func()) { time.AfterFunc(delay, fn) }
	return s
}

// Lookup returns the stored entry for dcName from origin, if any.
func (s *AdStore) Lookup(dcName, origin string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey{dcName, origin}]
	return e, ok
}

// Best returns the shortest-td_path entry known for dcName across all
// origins, used for GIVEADS replies.
func (s *AdStore) Best(dcName string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best Entry
	found := false
	for k, e := range s.entries {
		if k.dcName != dcName {
			continue
		}
		if !found || len(e.TDPath) < len(best.TDPath) {
			best = e
			found = true
		}
	}
	return best, found
}

// containsLocal reports whether path already carries the local RIB
// address (spec §4.1 step 2, loop suppression).
func (s *AdStore) containsLocal(path []string) bool {
	for _, hop := range path {
		if hop == s.localAddr {
			return true
		}
	}
	return false
}

// Ingest runs the full advertisement-processing algorithm of spec §4.1
// steps 1-8 against an already-decoded advertisement received from
// fromAddr (empty string if injected locally, e.g. by a DCServer).
func (s *AdStore) Ingest(ad *wire.Advertisement, fromAddr string) {
	metrics.AdsReceivedTotal.Inc()
	path := wire.ParseTDPath(ad.TDPath)

	// Step 2: loop suppression.
	if s.containsLocal(path) {
		s.log.Debug("adstore: dropping looped advertisement", "dc_name", ad.DCName, "td_path", ad.TDPath)
		metrics.AdsDroppedTotal.WithLabelValues("loop").Inc()
		return
	}

	entry := Entry{
		DCName:       ad.DCName,
		OriginTDAddr: ad.OriginAS,
		OriginServer: ad.OriginServer,
		TDPath:       path,
	}
	if ad.TrustCert != nil {
		c := assertionFromCert(*ad.TrustCert)
		entry.TrustCert = &c
	}
	for _, dc := range ad.DistrustCerts {
		entry.DistrustCert = append(entry.DistrustCert, assertionFromCert(dc))
	}

	key := entryKey{dcName: ad.DCName, origin: ad.OriginAS}
	isOrigin := ad.OriginAS == s.localTD || ad.OriginAS == s.localAddr

	// Step 5: neighbour check, skipped at the origin. It runs before the
	// cache update so a copy from a non-peer relay leaves any stored
	// entry untouched.
	if !isOrigin {
		if len(path) == 0 || !s.isKnownPeer(path[len(path)-1]) {
			s.log.Warn("adstore: dropping advertisement from non-peer relay", "dc_name", ad.DCName, "penultimate", lastOrEmpty(path))
			metrics.AdsDroppedTotal.WithLabelValues("non_peer_relay").Inc()
			return
		}
	}

	updated := s.updateCache(key, entry, isOrigin)
	if !updated {
		s.log.Debug("adstore: advertisement not updated", "dc_name", ad.DCName, "origin", ad.OriginAS)
		metrics.AdsDuplicateTotal.Inc()
		return
	}

	out := *ad
	if isOrigin {
		// Step 6: trust enrichment, origin only.
		entity, rtrans, ok := s.certs.TrustEntityFor("owner:" + ad.DCName)
		if !ok || entity != ad.OriginServer {
			s.log.Debug("adstore: origin refuses unendorsed name", "dc_name", ad.DCName)
			metrics.AdsDroppedTotal.WithLabelValues("unendorsed_origin").Inc()
			s.evict(key)
			return
		}
		cert := wire.Cert{Type: wire.CertKindTrust, Issuer: "owner:" + ad.DCName, Entity: entity, RTransitivity: rtrans}
		out.TrustCert = &cert
		var distrust []wire.Cert
		for _, a := range s.certs.DistrustFor("owner:" + ad.DCName) {
			distrust = append(distrust, wire.Cert{Type: wire.CertKindDistrust, Issuer: a.Issuer, Entity: a.Entity})
		}
		out.DistrustCerts = distrust
		entry.TrustCert = assertionPtrFromCert(out.TrustCert)
		entry.DistrustCert = nil
		for _, dc := range out.DistrustCerts {
			entry.DistrustCert = append(entry.DistrustCert, assertionFromCert(dc))
		}
		s.replace(key, entry)
	} else {
		// Step 7: trust ingestion, transit only.
		s.ingestTransitTrust(&out, path)
	}

	// Step 8: flood.
	out.TDPath = wire.JoinTDPath(append(append([]string{}, path...), s.localAddr))
	s.flood(&out, fromAddr)
}

func assertionPtrFromCert(c *wire.Cert) *Assertion {
	if c == nil {
		return nil
	}
	a := assertionFromCert(*c)
	return &a
}

// replace overwrites the stored entry for key, used once enrichment at
// the origin has attached the final trust/distrust certs (spec §4.1
// step 6): the cache-update decision in updateCache is made on td_path
// length alone, but the stored record must reflect the enriched form.
func (s *AdStore) replace(key entryKey, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

func lastOrEmpty(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// updateCache implements spec §4.1 step 3-4: insert if absent, replace
// if strictly shorter, drop otherwise. Records originated locally always
// replace (re-advertisement from the owning DC server).
func (s *AdStore) updateCache(key entryKey, entry Entry, isOrigin bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.entries[key]
	if !ok || isOrigin || len(entry.TDPath) < len(existing.TDPath) {
		s.entries[key] = entry
		return true
	}
	return false
}

func (s *AdStore) evict(key entryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *AdStore) isKnownPeer(addr string) bool {
	for _, p := range s.link.PeerAddresses() {
		if p == addr {
			return true
		}
	}
	return false
}

func assertionFromCert(c wire.Cert) Assertion {
	return Assertion{Issuer: c.Issuer, Entity: c.Entity, Kind: c.Type, RTransitivity: c.RTransitivity}
}

// ingestTransitTrust performs spec §4.1 step 7: before forwarding, a
// transit RIB learns structural trust edges from the advertisement it is
// about to relay.
func (s *AdStore) ingestTransitTrust(ad *wire.Advertisement, path []string) {
	inf := -1
	if ad.TrustCert != nil {
		s.certs.Insert(assertionFromCert(*ad.TrustCert))
		s.certs.Insert(Assertion{Issuer: ad.TrustCert.Entity, Entity: ad.TrustCert.Issuer, Kind: wire.CertKindTrust, RTransitivity: &inf})
	}
	for _, dc := range ad.DistrustCerts {
		s.certs.Insert(assertionFromCert(dc))
	}
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		s.certs.Insert(Assertion{Issuer: v, Entity: u, Kind: wire.CertKindTrust, RTransitivity: &inf})
	}
	s.certs.Insert(Assertion{Issuer: ad.OriginAS, Entity: ad.OriginServer, Kind: wire.CertKindTrust, RTransitivity: &inf})
}

// flood appends the local address (already applied by the caller) and
// sends the advertisement to every known peer except the one it arrived
// from and the origin itself, each after an independent uniform random
// delay in [0s, 10s] to decorrelate floods (spec §4.1 step 8).
func (s *AdStore) flood(ad *wire.Advertisement, fromAddr string) {
	raw, err := ad.Encode()
	if err != nil {
		s.log.Warn("adstore: failed to encode advertisement for flood", "error", err)
		return
	}
	for _, peer := range s.link.PeerAddresses() {
		if peer == fromAddr || peer == ad.OriginAS {
			continue
		}
		peer := peer
		delay := time.Duration(rand.Int63n(int64(10 * time.Second)))
		metrics.AdsFloodedTotal.Inc()
		s.floodFn(delay, func() {
			s.sendTo(peer, raw)
		})
	}
}

func (s *AdStore) sendTo(addr string, payload []byte) {
	if s.conn == nil {
		return
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, strconv.Itoa(wire.PortAdStore)))
	if err != nil {
		s.log.Debug("adstore: resolve flood target failed", "addr", addr, "error", err)
		return
	}
	if _, err := s.conn.WriteToUDP(payload, udpAddr); err != nil {
		s.log.Debug("adstore: flood send failed", "addr", addr, "error", err)
	}
}

// ListenAndServe binds conn and services GIVESWITCHES, GIVEADS
// <dc_name>, and raw advertisement JSON on the AdStore port (spec §4.1).
func (s *AdStore) ListenAndServe(conn *net.UDPConn) {
	s.conn = conn
	buf := make([]byte, 65536)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := buf[:n]
		switch {
		case string(msg) == wire.CmdGiveSwitches:
			reply := s.link.giveSwitchesReply()
			conn.WriteToUDP([]byte(reply), addr)
		case len(msg) > len(wire.CmdGiveAds) && string(msg[:len(wire.CmdGiveAds)]) == wire.CmdGiveAds:
			dcName := string(msg[len(wire.CmdGiveAds)+1:])
			s.replyGiveAds(conn, addr, dcName)
		default:
			ad, err := wire.DecodeAdvertisement(msg)
			if err != nil {
				s.log.Debug("adstore: dropping malformed advertisement", "error", err)
				continue
			}
			s.Ingest(ad, addr.IP.String())
		}
	}
}

func (s *AdStore) replyGiveAds(conn *net.UDPConn, addr *net.UDPAddr, dcName string) {
	entry, ok := s.Best(dcName)
	if !ok {
		conn.WriteToUDP([]byte(wire.AdResponsePrefix), addr)
		return
	}
	ad := wire.Advertisement{
		DCName:       entry.DCName,
		OriginAS:     entry.OriginTDAddr,
		OriginServer: entry.OriginServer,
		TDPath:       wire.JoinTDPath(entry.TDPath),
	}
	if entry.TrustCert != nil {
		ad.TrustCert = &wire.Cert{Type: wire.CertKindTrust, Issuer: entry.TrustCert.Issuer, Entity: entry.TrustCert.Entity, RTransitivity: entry.TrustCert.RTransitivity}
	}
	raw, err := ad.Encode()
	if err != nil {
		s.log.Warn("adstore: encode GIVEADS reply failed", "error", err)
		return
	}
	conn.WriteToUDP(append([]byte(wire.AdResponsePrefix), raw...), addr)
}
