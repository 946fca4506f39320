package fleetctl

import (
	"fmt"
)

// validateFleetArgs validates the arguments provided to the fleet subcommands.
func validateFleetArgs(opts *RunOptionsFleet) error {
	if opts.Tenant == "" {
		return fmt.Errorf("the 'tenant' flag must not be empty")
	}
	return nil
}
