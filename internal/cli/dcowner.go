package cli

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/grapheo12/trustfabric/internal/config"
	"github.com/grapheo12/trustfabric/internal/edge"
)

// RunDCOwner is the one-shot certificate-pusher: it reads a config file
// listing trust/distrust certificates and pushes each to a RIB's
// CertStore, then exits (spec §4.2, §6, grounded on dcowner.cc in
// original_source/).
func RunDCOwner(args []string) error {
	fs := flag.NewFlagSet("dcowner", flag.ExitOnError)
	configFile := fs.String("config", "config.dcowner.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.LoadDCOwner(*configFile)
	if err != nil {
		return err
	}

	log := slog.Default().With("role", "dcowner")

	ribIP := hostOnly(cfg.RIBAddr)

	certs := make([]edge.OwnerCert, 0, len(cfg.Certs))
	for _, c := range cfg.Certs {
		certs = append(certs, edge.OwnerCert{
			Issuer:        c.Issuer,
			Entity:        c.Entity,
			Kind:          c.Type,
			RTransitivity: c.RTransitivity,
		})
	}

	if err := edge.PushOwnerCerts(ribIP, certs, log); err != nil {
		return fmt.Errorf("dcowner: push certs: %w", err)
	}
	log.Info("dcowner: done", "count", len(certs))
	return nil
}

// hostOnly strips a ":port" suffix if present, since a dcowner config
// may name a bare RIB IP: CertStore's port is fixed and well-known, the
// config only needs to disambiguate which RIB.
func hostOnly(s string) string {
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return strings.TrimSpace(s)
}
