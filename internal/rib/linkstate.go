package rib

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/grapheo12/trustfabric/internal/metrics"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// liveSwitchTTL is the soft expiry applied to an entry in the live-switch
// set: 3x the switch Pinger's 1s beacon interval (spec §9 Open question:
// "a soft TTL (e.g. 3x ping interval) is the natural extension").
const liveSwitchTTL = 3 * time.Second

// LinkStateManager tracks which overlay switches in the local TD are
// currently alive, and the set of known peer RIBs populated by
// TraceProbe (spec §4.4).
type LinkStateManager struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time // switch IP -> last ping time
	peers    map[string]string    // td tag -> peer RIB address
	log      *slog.Logger
}

// NewLinkStateManager constructs an empty manager.
func NewLinkStateManager(log *slog.Logger) *LinkStateManager {
	return &LinkStateManager{
		lastSeen: make(map[string]time.Time),
		peers:    make(map[string]string),
		log:      log,
	}
}

// Touch marks ip as alive as of now. Any packet of any size on the
// liveness port counts (spec §4.4).
func (l *LinkStateManager) Touch(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSeen[ip] = time.Now()
}

// LiveSwitches returns the currently-live switch IPs, excluding any
// entry older than liveSwitchTTL.
func (l *LinkStateManager) LiveSwitches() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	now := time.Now()
	out := make([]string, 0, len(l.lastSeen))
	for ip, seen := range l.lastSeen {
		if now.Sub(seen) <= liveSwitchTTL {
			out = append(out, ip)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep drops entries older than liveSwitchTTL. Called periodically by
// the owning RIB so that LiveSwitches doesn't have to scan-and-filter on
// every request once the set grows large.
func (l *LinkStateManager) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for ip, seen := range l.lastSeen {
		if now.Sub(seen) > liveSwitchTTL {
			delete(l.lastSeen, ip)
		}
	}
	metrics.LiveSwitches.Set(float64(len(l.lastSeen)))
}

// SetPeer records a peer TD's RIB address, called by TraceProbe once it
// resolves a one-hop peer (spec §4.8).
func (l *LinkStateManager) SetPeer(td, ribAddr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[td] = ribAddr
}

// Peers returns a defensive copy of the peer map.
func (l *LinkStateManager) Peers() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.peers))
	for k, v := range l.peers {
		out[k] = v
	}
	return out
}

// PeerAddresses returns just the known peer RIB addresses, used by
// AdStore's flood step to exclude the arrival socket and origin.
func (l *LinkStateManager) PeerAddresses() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.peers))
	for _, addr := range l.peers {
		out = append(out, addr)
	}
	return out
}

// givePeersReply formats the known peer map as one "<td> <rib_ip>" line
// per peer (spec §6).
func (l *LinkStateManager) givePeersReply() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tds := make([]string, 0, len(l.peers))
	for td := range l.peers {
		tds = append(tds, td)
	}
	sort.Strings(tds)
	var out string
	for _, td := range tds {
		out += fmt.Sprintf("%s %s\n", td, l.peers[td])
	}
	return out
}

// giveSwitchesReply formats the live-switch set as a space-separated
// IPv4 list, with the sentinel appended when empty (spec §6).
func (l *LinkStateManager) giveSwitchesReply() string {
	switches := l.LiveSwitches()
	if len(switches) == 0 {
		return wire.NoSwitchesSentinel
	}
	out := ""
	for i, ip := range switches {
		if i > 0 {
			out += " "
		}
		out += ip
	}
	return out
}

// ListenAndServe services the liveness port: any datagram marks its
// source alive; the literal commands GIVEPEERS/GIVESWITCHES get a text
// reply (spec §4.4, §6). GIVESWITCHES is also answered here because it
// reads the same live-switch set LinkStateManager owns; AdStore answers
// its own copy of the command on its own port per spec §4.1.
func (l *LinkStateManager) ListenAndServe(conn *net.UDPConn) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		msg := string(buf[:n])
		l.Touch(addr.IP.String())

		switch msg {
		case wire.CmdGivePeers:
			reply := l.givePeersReply()
			if _, err := conn.WriteToUDP([]byte(reply), addr); err != nil {
				l.log.Debug("linkstate: write GIVEPEERS reply failed", "error", err)
			}
		case wire.CmdGiveSwitches:
			reply := l.giveSwitchesReply()
			if _, err := conn.WriteToUDP([]byte(reply), addr); err != nil {
				l.log.Debug("linkstate: write GIVESWITCHES reply failed", "error", err)
			}
		}
	}
}
