package rib

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grapheo12/trustfabric/internal/graph"
	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// rebuildCadence is the Floyd-Warshall rebuild period (spec §4.3).
const rebuildCadence = 1 * time.Second

// PathComputer maintains the trust graph for one TD and answers
// GIVEPATH requests with an all-pairs shortest path minus distrust
// (spec §4.3).
type PathComputer struct {
	mu        sync.RWMutex
	g         *graph.Graph
	localTD   string // e.g. "AS0"
	localIP   string // this RIB's own address
	certs     *CertStore
	ads       *AdStore
	log       *slog.Logger
}

// NewPathComputer constructs a computer bound to one TD's CertStore.
func NewPathComputer(localTD, localIP string, certs *CertStore, ads *AdStore, log *slog.Logger) *PathComputer {
	return &PathComputer{
		g:       graph.NewBuilder().Build(),
		localTD: localTD,
		localIP: localIP,
		certs:   certs,
		ads:     ads,
		log:     log,
	}
}

// canonicalize collapses any identifier referring to this node (its TD
// tag, its own IP, or the literal "me") to "me" (spec §4.3).
func (p *PathComputer) canonicalize(id string) string {
	if id == p.localTD || id == p.localIP || id == "me" {
		return "me"
	}
	return id
}

// decanonicalize is the inverse, used when serialising a path for a
// client: "me" becomes this RIB's own TD tag (spec §4.3 step 3).
func (p *PathComputer) decanonicalize(id string) string {
	if id == "me" {
		return p.localTD
	}
	return id
}

// Rebuild runs one Floyd-Warshall pass over the current CertStore
// snapshot (spec §4.3). Run on a 1s ticker by the owning RIB.
func (p *PathComputer) Rebuild() {
	start := time.Now()
	defer func() { metrics.GraphRebuildDuration.Observe(time.Since(start).Seconds()) }()

	trust, distrust := p.certs.Snapshot()
	b := graph.NewBuilder()
	for _, a := range trust {
		r := -1
		if a.RTransitivity != nil {
			r = *a.RTransitivity
		}
		b.AddTrust(p.canonicalize(a.Issuer), p.canonicalize(a.Entity), r)
	}
	for _, a := range distrust {
		b.AddDistrust(p.canonicalize(a.Issuer), p.canonicalize(a.Entity))
	}
	g := b.Build()
	metrics.GraphVertices.Set(float64(g.VertexCount()))

	p.mu.Lock()
	p.g = g
	p.mu.Unlock()
}

// RunRebuildLoop ticks Rebuild at rebuildCadence until ctx is cancelled.
func (p *PathComputer) RunRebuildLoop(ctx context.Context) {
	ticker := time.NewTicker(rebuildCadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Rebuild()
		}
	}
}

// Path computes the TD-tag path (with "me" decanonicalized) and
// destination server IP for a (client_name, dc_name) request (spec §4.3
// steps 1-3). Returns ok=false when no path exists or dc_name is
// unendorsed. The issuer tag is "owner:"+dc_name, the same convention
// AdStore's origin-enrichment step looks up (spec §4.1 step 6).
func (p *PathComputer) Path(clientName, dcName string) (tdTags []string, destIP string, ok bool) {
	entity, _, found := p.certs.TrustEntityFor("owner:" + dcName)
	if !found {
		return nil, "", false
	}

	p.mu.RLock()
	g := p.g
	p.mu.RUnlock()

	verts := g.Path(p.canonicalize(clientName), entity)
	if verts == nil {
		return nil, "", false
	}
	// The last vertex is the destination server itself, returned as destIP.
	for _, v := range verts[:len(verts)-1] {
		tdTags = append(tdTags, p.decanonicalize(v))
	}
	return tdTags, entity, true
}

// ListenAndServe services GIVEPATH <json> requests on the PathComputer
// port (spec §4.3, §6).
func (p *PathComputer) ListenAndServe(conn *net.UDPConn) {
	buf := make([]byte, 65536)
	prefix := wire.CmdGivePath + " "
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := buf[:n]
		if len(msg) <= len(prefix) || string(msg[:len(prefix)]) != prefix {
			p.log.Debug("pathcomputer: dropping unrecognized request")
			continue
		}
		req, err := wire.DecodePathRequest(msg[len(prefix):])
		if err != nil {
			p.log.Debug("pathcomputer: dropping malformed GIVEPATH request", "error", err)
			continue
		}
		// A correlation id ties this request's log lines together across
		// the Path lookup, useful once multiple clients hammer GIVEPATH
		// concurrently.
		reqID := uuid.NewString()
		p.log.Debug("pathcomputer: GIVEPATH request", "request_id", reqID, "client", req.ClientName, "dc_name", req.DCName)

		tdTags, destIP, ok := p.Path(req.ClientName, req.DCName)
		var reply string
		if !ok {
			metrics.PathRequestsTotal.WithLabelValues("empty").Inc()
			reply = wire.EncodePathResponse(nil, "")
		} else {
			metrics.PathRequestsTotal.WithLabelValues("found").Inc()
			reply = wire.EncodePathResponse(tdTags, destIP)
		}
		p.log.Debug("pathcomputer: GIVEPATH reply", "request_id", reqID, "found", ok)
		if _, err := conn.WriteToUDP([]byte(reply), addr); err != nil {
			p.log.Debug("pathcomputer: write GIVEPATH reply failed", "error", err)
		}
	}
}

// resolveRIBAddr builds a net.UDPAddr for a bare IPv4 address and a
// well-known port.
func resolveRIBAddr(ip string, port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(ip, strconv.Itoa(port)))
}
