// Package fleetctl implements the fleet inspection subcommands.
package fleetctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-hub/internal/fleet"
	"github.com/scan-io-git/scanio-hub/internal/store"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
	"github.com/scan-io-git/scanio-hub/pkg/shared/logger"
)

// RunOptionsFleet holds the arguments for the fleet subcommands.
type RunOptionsFleet struct {
	Tenant string
	Status string
	Name   string
}

var (
	AppConfig    *config.Config
	fleetOptions RunOptionsFleet

	exampleFleetUsage = `  # List every executor of the default tenant
  scanio-hub fleet list

  # List online executors whose name contains "build"
  scanio-hub fleet list --status ONLINE --name build

  # Mark executors that missed their heartbeat deadline as offline
  scanio-hub fleet sweep --tenant acme`
)

// FleetCmd represents the fleet command group.
var FleetCmd = &cobra.Command{
	Use:                   "fleet [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleFleetUsage,
	Short:                 "Inspect and maintain the executor fleet",
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

func init() {
	FleetCmd.PersistentFlags().StringVar(&fleetOptions.Tenant, "tenant", "default", "tenant whose fleet to operate on")

	listCmd := &cobra.Command{
		Use:                   "list [--status STATUS] [--name SUBSTRING]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "List registered executors",
		RunE:                  runListCommand,
	}
	listCmd.Flags().StringVar(&fleetOptions.Status, "status", "", "filter by executor status")
	listCmd.Flags().StringVar(&fleetOptions.Name, "name", "", "filter by name substring")

	sweepCmd := &cobra.Command{
		Use:                   "sweep",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Mark stale executors offline",
		RunE:                  runSweepCommand,
	}

	FleetCmd.AddCommand(listCmd, sweepCmd)
}

func withManager(fn func(ctx context.Context, mgr *fleet.Manager) error) error {
	log := logger.NewLogger(AppConfig, "core-fleet")

	if err := validateFleetArgs(&fleetOptions); err != nil {
		log.Error("invalid fleet arguments", "error", err)
		return err
	}

	backends, err := store.Open(AppConfig)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return err
	}
	defer backends.Close()

	mgr := fleet.NewManager(
		backends.Fleet,
		backends.Tasks,
		nil,
		AppConfig.Fleet.HeartbeatDeadline,
		AppConfig.Fleet.DispatchTimeout,
		log,
	)
	return fn(context.Background(), mgr)
}

func runListCommand(cmd *cobra.Command, args []string) error {
	return withManager(func(ctx context.Context, mgr *fleet.Manager) error {
		executors, err := mgr.List(ctx, fleetOptions.Tenant, fleet.Filter{
			Status:        fleet.ExecutorStatus(fleetOptions.Status),
			NameSubstring: fleetOptions.Name,
		})
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(executors, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return nil
	})
}

func runSweepCommand(cmd *cobra.Command, args []string) error {
	return withManager(func(ctx context.Context, mgr *fleet.Manager) error {
		n, err := mgr.SweepStale(ctx, fleetOptions.Tenant)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d executor(s) marked offline\n", n)
		return nil
	})
}
