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

	"github.com/grapheo12/trustfabric/internal/admin"
	"github.com/grapheo12/trustfabric/internal/config"
	"github.com/grapheo12/trustfabric/internal/switchagent"
)

// RunSwitch starts an overlay switch process: Pinger, ForwardingEngine,
// and NeighborProber bound to their three well-known ports.
func RunSwitch(args []string) error {
	fs := flag.NewFlagSet("switch", flag.ExitOnError)
	configFile := fs.String("config", "config.switch.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.LoadSwitch(*configFile)
	if err != nil {
		return err
	}

	log := slog.Default().With("role", "switch", "td", cfg.TD)
	bindIP, _, err := net.SplitHostPort(cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("switch: parse bind_addr: %w", err)
	}
	ribIP, _, err := net.SplitHostPort(cfg.RIBAddr)
	if err != nil {
		return fmt.Errorf("switch: parse rib_addr: %w", err)
	}

	sw, err := switchagent.New(cfg.TD, ribIP, log)
	if err != nil {
		return fmt.Errorf("switch: construct: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sw.Start(ctx, bindIP); err != nil {
		return fmt.Errorf("switch: start: %w", err)
	}

	adminSrv := admin.New(cfg.AdminAddr, nil)
	errc := make(chan error, 1)
	adminSrv.Start(errc)

	log.Info("switch: running", "bind_addr", cfg.BindAddr, "rib_addr", cfg.RIBAddr)

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Error("switch: admin server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	adminSrv.Shutdown(shutdownCtx)
	sw.Shutdown()
	return nil
}
