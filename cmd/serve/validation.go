package serve

import (
	"fmt"
)

// validateServeArgs validates the arguments provided to the serve command.
func validateServeArgs(opts *RunOptionsServe) error {
	if opts.Tenant == "" {
		return fmt.Errorf("the 'tenant' flag must not be empty")
	}
	return nil
}
