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

	"github.com/grapheo12/trustfabric/internal/config"
	"github.com/grapheo12/trustfabric/internal/edge"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// RunDCServer starts a DC server process: it advertises cfg.DCName to
// its home RIB and echoes overlay datagrams back DOWN the path they
// arrived UP (spec §2, §4.1, §4.6).
func RunDCServer(args []string) error {
	fs := flag.NewFlagSet("dcserver", flag.ExitOnError)
	configFile := fs.String("config", "config.dcserver.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.LoadDCServer(*configFile)
	if err != nil {
		return err
	}

	log := slog.Default().With("role", "dcserver", "dc_name", cfg.DCName)

	addr := &net.UDPAddr{IP: net.ParseIP(cfg.ServerAddr), Port: wire.PortDCServer}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("dcserver: bind: %w", err)
	}
	defer conn.Close()

	ribIP, _, err := net.SplitHostPort(cfg.RIBAddr)
	if err != nil {
		return fmt.Errorf("dcserver: parse rib_addr: %w", err)
	}

	srv, err := edge.NewDCServer(cfg.DCName, cfg.TD, cfg.ServerAddr, ribIP, conn, log)
	if err != nil {
		return fmt.Errorf("dcserver: construct: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go srv.ListenAndServe()
	go srv.RunAdvertiseLoopEvery(ctx, time.Duration(cfg.AdvertiseIntervalS)*time.Second)

	log.Info("dcserver: running", "server_addr", cfg.ServerAddr, "rib_addr", cfg.RIBAddr,
		"advertise_interval", time.Duration(cfg.AdvertiseIntervalS)*time.Second)

	<-ctx.Done()
	return nil
}
