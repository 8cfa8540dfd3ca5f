package edge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/grapheo12/trustfabric/internal/wire"
)

// OwnerCert is one trust/distrust assertion a DC owner wants pushed to
// a RIB's CertStore at startup (spec §4.2, §6, grounded on dcowner.cc
// in original_source/: the DC owner pushes trust certificates to each
// RIB hosting one of its servers before any advertisement can flood).
type OwnerCert struct {
	Issuer        string
	Entity        string
	Kind          string // wire.CertKindTrust or wire.CertKindDistrust
	RTransitivity *int
}

// PushOwnerCerts sends each cert in certs to ribIP's CertStore port and
// returns once all sends complete (or the first error). It is a
// one-shot operation, not a long-running agent: the driver runs it
// before starting the RIB's dependent DC server/advertiser.
func PushOwnerCerts(ribIP string, certs []OwnerCert, log *slog.Logger) error {
	addr, err := resolveAddr(ribIP, wire.PortCertStore)
	if err != nil {
		return fmt.Errorf("edge: resolve CertStore: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("edge: dial CertStore: %w", err)
	}
	defer conn.Close()

	for _, c := range certs {
		sub := wire.CertSubmission{
			Issuer:        c.Issuer,
			Type:          c.Kind,
			Entity:        c.Entity,
			RTransitivity: c.RTransitivity,
		}
		raw, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("edge: encode cert %s->%s: %w", c.Issuer, c.Entity, err)
		}
		if _, err := conn.Write(raw); err != nil {
			return fmt.Errorf("edge: send cert %s->%s: %w", c.Issuer, c.Entity, err)
		}
		log.Info("owner: pushed certificate", "issuer", c.Issuer, "entity", c.Entity, "type", c.Kind)
		// A small stagger keeps a batch of certs from arriving as one UDP
		// burst on the CertStore socket.
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}
