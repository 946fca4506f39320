package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/scanio-hub/cmd/fleetctl"
	"github.com/scan-io-git/scanio-hub/cmd/serve"
	"github.com/scan-io-git/scanio-hub/cmd/stage"
	"github.com/scan-io-git/scanio-hub/cmd/version"
	"github.com/scan-io-git/scanio-hub/pkg/shared/config"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "scanio-hub [command]",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Scanio Hub orchestrates multi-stage security scans.",
		Long: `Scanio Hub is a scan orchestration daemon: it drives submitted tasks through
	rules preparation, source preparation, scan execution, result processing, and
	result review, dispatches work to a fleet of remote executors, and normalizes
	SARIF, native JSON, and CycloneDX scanner output into deduplicated findings.
	`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yml)")
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(stage.StageCmd)
	rootCmd.AddCommand(fleetctl.FleetCmd)
}

func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return 1
	}
	return 0
}

func initConfig() {
	var err error

	if cfgFile == "" {
		cfgFile = "config.yml"
	}
	if _, statErr := os.Stat(cfgFile); os.IsNotExist(statErr) {
		AppConfig = config.Default()
	} else {
		AppConfig, err = config.NewConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config file %q: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	serve.Init(AppConfig)
	stage.Init(AppConfig)
	fleetctl.Init(AppConfig)
	version.Init(AppConfig)
}
