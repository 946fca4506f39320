package config

import "fmt"

// ValidateConfig checks cross-field constraints that defaults cannot repair.
func ValidateConfig(c *Config) error {
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q (want sqlite or memory)", c.Storage.Driver)
	}

	if c.Fleet.MaxFrameBytes < 1024 {
		return fmt.Errorf("fleet.max_frame_bytes %d is below the 1KiB minimum", c.Fleet.MaxFrameBytes)
	}

	for name, engine := range c.Scanners.Engines {
		if engine.Binary == "" {
			return fmt.Errorf("scanner engine %q has no binary configured", name)
		}
	}

	if c.Tickets.Provider != "" && c.Tickets.Provider != "github" {
		return fmt.Errorf("unknown ticket provider %q", c.Tickets.Provider)
	}
	if c.Tickets.Provider == "github" && (c.Tickets.Namespace == "" || c.Tickets.Repository == "") {
		return fmt.Errorf("ticket provider github requires namespace and repository")
	}

	return nil
}
