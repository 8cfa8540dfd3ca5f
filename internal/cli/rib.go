// Package cli implements the run logic for each of the fabric's agent
// roles, in the style of internal/cli/relay.go: parse flags, load a
// YAML config, wire the component, and block on a signal-cancelled
// context with a bounded graceful shutdown.
package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grapheo12/trustfabric/internal/admin"
	"github.com/grapheo12/trustfabric/internal/config"
	"github.com/grapheo12/trustfabric/internal/fact"
	"github.com/grapheo12/trustfabric/internal/rib"
)

// shutdownTimeout bounds every agent's graceful shutdown, mirroring
// internal/cli/relay.go's serveComponents.
const shutdownTimeout = 10 * time.Second

// RunRIB starts a RIB process: AdStore, CertStore, PathComputer,
// LinkStateManager, and TraceProbe bound to their four well-known ports,
// plus the admin health/metrics server if configured.
func RunRIB(args []string) error {
	fs := flag.NewFlagSet("rib", flag.ExitOnError)
	configFile := fs.String("config", "config.rib.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.LoadRIB(*configFile)
	if err != nil {
		return err
	}

	var facts *fact.Table
	if cfg.FactsFile != "" {
		facts, err = fact.Load(cfg.FactsFile)
		if err != nil {
			return fmt.Errorf("rib: load facts: %w", err)
		}
	} else {
		facts = fact.New(nil)
	}

	log := slog.Default().With("role", "rib", "td", cfg.TD)
	bindIP, _, err := net.SplitHostPort(cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("rib: parse bind_addr: %w", err)
	}

	r := rib.New(cfg.TD, bindIP, facts, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := r.Start(ctx, bindIP, cfg.Peers); err != nil {
		return fmt.Errorf("rib: start: %w", err)
	}

	adminSrv := admin.New(cfg.AdminAddr, nil)
	errc := make(chan error, 1)
	adminSrv.Start(errc)

	log.Info("rib: running", "bind_addr", cfg.BindAddr, "admin_addr", cfg.AdminAddr)

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error("rib: admin server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	adminSrv.Shutdown(shutdownCtx)
	r.Shutdown()
	return nil
}
