// Command trustfabricd launches one agent of the trust-aware overlay
// routing fabric: a RIB, an overlay switch, a DC server, a client, or
// the one-shot DC-owner certificate pusher. Subcommand layout follows
// the cobra CLI surface of synnergy-network/cmd/synnergy/main.go; each
// subcommand's run logic lives in internal/cli, the way
// cmd/qumo-relay/main.go delegates to internal/cli.RunRelay.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grapheo12/trustfabric/internal/cli"
)

func main() {
	// A missing .env is expected in most deployments; only a malformed
	// one is worth surfacing (mirrors the Synnergy cobra commands' own
	// best-effort godotenv.Load() at startup).
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("trustfabricd: .env load failed", "error", err)
	}

	root := &cobra.Command{
		Use:   "trustfabricd",
		Short: "Run one agent of the trust-aware overlay routing fabric",
	}

	root.AddCommand(
		runCmd("rib", "Start a trust domain's RIB control plane", "config.rib.yaml", cli.RunRIB),
		runCmd("switch", "Start an overlay switch", "config.switch.yaml", cli.RunSwitch),
		runCmd("dcserver", "Start a DC server (advertise + last-mile echo)", "config.dcserver.yaml", cli.RunDCServer),
		runCmd("dcclient", "Start a client (path request + inject + RTT)", "config.dcclient.yaml", cli.RunDCClient),
		runCmd("dcowner", "Push DC-owner trust/distrust certificates once, then exit", "config.dcowner.yaml", cli.RunDCOwner),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runCmd builds a subcommand whose only flag is --config, delegating
// the actual run logic to an internal/cli Run* function. The flag is
// declared on the cobra.Command as well as being re-parsed by the
// Run* function's own flag.FlagSet, so `trustfabricd rib -h` shows it
// without requiring internal/cli to depend on cobra.
func runCmd(use, short, defaultConfig string, run func([]string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			return run([]string{"-config", configFile})
		},
	}
	cmd.Flags().String("config", defaultConfig, "path to config file")
	return cmd
}
