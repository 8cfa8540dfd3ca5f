package rib

import (
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/grapheo12/trustfabric/internal/wire"
)

// Assertion is the in-memory form of a TrustAssertion (spec §3): an
// issuer/entity pair tagged trust or distrust, with an optional finite
// transitivity bound recorded for trust edges.
type Assertion struct {
	Issuer        string
	Entity        string
	Kind          string // wire.CertKindTrust or wire.CertKindDistrust
	RTransitivity *int
}

// CertStore holds the multiset of trust and distrust assertions ingested
// for this RIB's TD. It is read by PathComputer on every rebuild and
// written by CertStore's own UDP listener and by AdStore's trust
// ingestion step (spec §4.1 step 7, §4.2).
//
// No deduplication beyond identical multiset entries (spec §4.2): a
// certificate resubmitted verbatim increases its multiplicity but never
// changes path-computation output, since PathComputer dedups edges by
// identity when building the graph.
type CertStore struct {
	mu       sync.RWMutex
	trust    []Assertion
	distrust []Assertion
	log      *slog.Logger
}

// NewCertStore constructs an empty store.
func NewCertStore(log *slog.Logger) *CertStore {
	return &CertStore{log: log}
}

// hasTag reports whether an issuer string carries a user: or owner: tag
// rather than a bare TD/AS tag (spec §4.2: "issuer contains ':'").
func hasTag(issuer string) bool {
	return strings.Contains(issuer, ":")
}

// Insert adds one assertion to the appropriate multiset. When issuer
// carries a user:/owner: tag, the reverse entity->issuer edge is also
// inserted automatically at infinite transitivity, so that traffic from
// an AS back to its client/owner is reachable on the graph (spec §4.2).
func (c *CertStore) Insert(a Assertion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(a)
	if a.Kind == wire.CertKindTrust && hasTag(a.Issuer) {
		inf := graphInfinite
		c.insertLocked(Assertion{Issuer: a.Entity, Entity: a.Issuer, Kind: wire.CertKindTrust, RTransitivity: &inf})
	}
}

func (c *CertStore) insertLocked(a Assertion) {
	switch a.Kind {
	case wire.CertKindDistrust:
		c.distrust = append(c.distrust, a)
	default:
		c.trust = append(c.trust, a)
	}
}

// InsertSubmission inserts an already decoded wire.CertSubmission,
// defaulting an absent r_transitivity on a trust cert to infinite
// (spec §4.2).
func (c *CertStore) InsertSubmission(sub *wire.CertSubmission) {
	a := Assertion{Issuer: sub.Issuer, Entity: sub.Entity, Kind: sub.Type, RTransitivity: sub.RTransitivity}
	if a.Kind == wire.CertKindTrust && a.RTransitivity == nil {
		inf := graphInfinite
		a.RTransitivity = &inf
	}
	c.Insert(a)
	c.log.Debug("certstore: ingested assertion", "issuer", a.Issuer, "entity", a.Entity, "kind", a.Kind)
}

// graphInfinite is the CertStore-local copy of graph.Infinite, kept
// independent of the graph package so CertStore has no import-time
// coupling to PathComputer's internals.
const graphInfinite = -1

// Snapshot returns a defensive copy of both multisets, for PathComputer
// to consume during a rebuild without holding CertStore's lock for the
// whole Floyd-Warshall pass.
func (c *CertStore) Snapshot() (trust, distrust []Assertion) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	trust = append(trust[:0:0], c.trust...)
	distrust = append(distrust[:0:0], c.distrust...)
	return trust, distrust
}

// TrustEntityFor looks up the entity of the first trust assertion issued
// by issuer, used by AdStore's origin-only enrichment step (spec §4.1
// step 6) and by PathComputer's GIVEPATH handler (spec §4.3 step 1).
func (c *CertStore) TrustEntityFor(issuer string) (string, *int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.trust {
		if a.Issuer == issuer {
			return a.Entity, a.RTransitivity, true
		}
	}
	return "", nil, false
}

// DistrustFor returns every distrust assertion issued by issuer, used by
// AdStore's origin-only enrichment step.
func (c *CertStore) DistrustFor(issuer string) []Assertion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Assertion
	for _, a := range c.distrust {
		if a.Issuer == issuer {
			out = append(out, a)
		}
	}
	return out
}

// ListenAndServe services CertStore submissions on the already bound
// conn until a read fails, e.g. because conn was closed (the dispatch
// loop named in spec §9: "every agent is a record with start()/stop()
// and a message dispatch for each UDP port").
func (c *CertStore) ListenAndServe(conn *net.UDPConn) {
	buf := make([]byte, 65536)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		sub, err := wire.DecodeCertSubmission(buf[:n])
		if err != nil {
			c.log.Debug("certstore: dropping malformed submission", "error", err)
			continue
		}
		c.InsertSubmission(sub)
	}
}
