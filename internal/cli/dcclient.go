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

	"github.com/grapheo12/trustfabric/internal/config"
	"github.com/grapheo12/trustfabric/internal/edge"
	"github.com/grapheo12/trustfabric/internal/wire"
)

// RunDCClient starts a client process: it discovers and probes local
// switches, requests a path to cfg.DCName, injects one UP datagram, and
// measures the DOWN reply's round-trip time (spec §2, §4.6, §4.7).
func RunDCClient(args []string) error {
	fs := flag.NewFlagSet("dcclient", flag.ExitOnError)
	configFile := fs.String("config", "config.dcclient.yaml", "path to config file")
	bindIP := fs.String("bind-ip", "0.0.0.0", "local IP to bind the client's sockets to")
	fs.Parse(args)

	cfg, err := config.LoadDCClient(*configFile)
	if err != nil {
		return err
	}

	log := slog.Default().With("role", "dcclient", "name", cfg.Name)

	proberConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(*bindIP), Port: wire.PortClientProber})
	if err != nil {
		return fmt.Errorf("dcclient: bind prober socket: %w", err)
	}
	defer proberConn.Close()

	replyConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(*bindIP), Port: wire.PortClient})
	if err != nil {
		return fmt.Errorf("dcclient: bind reply socket: %w", err)
	}
	defer replyConn.Close()

	ribIP, _, err := net.SplitHostPort(cfg.RIBAddr)
	if err != nil {
		return fmt.Errorf("dcclient: parse rib_addr: %w", err)
	}

	c, err := edge.NewClient(cfg.Name, cfg.TD, ribIP, proberConn, replyConn, log)
	if err != nil {
		return fmt.Errorf("dcclient: construct: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go c.ListenAndServeProbe()
	go c.ListenAndServeReply(nil)

	c.Bootstrap()
	log.Info("dcclient: requesting path", "dc_name", cfg.DCName)
	go c.RunPathAndInjectLoop(ctx, cfg.DCName)

	<-ctx.Done()
	return nil
}
