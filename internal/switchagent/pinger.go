// Package switchagent implements the three components every overlay
// switch runs: Pinger, ForwardingEngine, and NeighborProber (spec §2,
// §4.5-§4.7).
package switchagent

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// pingInterval is the Pinger's fixed liveness beacon period (spec §4.5).
const pingInterval = 1 * time.Second

// Pinger periodically sends a liveness beacon to the switch's home RIB
// whose only payload is an 8-byte little-endian, monotonically
// increasing sequence number (spec §4.5).
type Pinger struct {
	ribAddr *net.UDPAddr
	conn    *net.UDPConn
	seq     atomic.Uint64
	log     *slog.Logger
}

// NewPinger constructs a Pinger that sends from conn to ribAddr.
func NewPinger(conn *net.UDPConn, ribAddr *net.UDPAddr, log *slog.Logger) *Pinger {
	return &Pinger{ribAddr: ribAddr, conn: conn, log: log}
}

// RunLoop sends one beacon every pingInterval until ctx is cancelled.
func (p *Pinger) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sendOne()
		}
	}
}

func (p *Pinger) sendOne() {
	seq := p.seq.Add(1)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, seq)
	if _, err := p.conn.WriteToUDP(buf, p.ribAddr); err != nil {
		p.log.Debug("pinger: send failed", "error", err)
	}
}
