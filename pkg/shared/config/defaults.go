package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultListenAddr        = "127.0.0.1:8170"
	defaultFleetListenAddr   = "127.0.0.1:8171"
	defaultHeartbeatDeadline = 90 * time.Second
	defaultSweepInterval     = 30 * time.Second
	defaultDispatchTimeout   = 15 * time.Second
	defaultMaxFrameBytes     = 5 * 1024 * 1024
	defaultScannerTimeout    = 30 * time.Minute
	defaultPollInterval      = 10 * time.Second
)

func applyDefaults(c *Config) {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(hubHome(), "hub.db")
	}
	if c.Workspace.RootDir == "" {
		c.Workspace.RootDir = filepath.Join(hubHome(), "workspaces")
	}
	if c.Fleet.ListenAddr == "" {
		c.Fleet.ListenAddr = defaultFleetListenAddr
	}
	if c.Fleet.HeartbeatDeadline <= 0 {
		c.Fleet.HeartbeatDeadline = defaultHeartbeatDeadline
	}
	if c.Fleet.SweepInterval <= 0 {
		c.Fleet.SweepInterval = defaultSweepInterval
	}
	if c.Fleet.DispatchTimeout <= 0 {
		c.Fleet.DispatchTimeout = defaultDispatchTimeout
	}
	if c.Fleet.MaxFrameBytes <= 0 {
		c.Fleet.MaxFrameBytes = defaultMaxFrameBytes
	}
	if c.Scanners.Engines == nil {
		c.Scanners.Engines = map[string]Engine{
			"semgrep": {Binary: "semgrep", Timeout: defaultScannerTimeout},
		}
	}
	for name, engine := range c.Scanners.Engines {
		if engine.Timeout <= 0 {
			engine.Timeout = defaultScannerTimeout
		}
		if engine.Binary == "" {
			engine.Binary = name
		}
		c.Scanners.Engines[name] = engine
	}
	if c.AIReview.PollInterval <= 0 {
		c.AIReview.PollInterval = defaultPollInterval
	}
}

func hubHome() string {
	if env := os.Getenv("SCANIO_HUB_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scanio-hub"
	}
	return filepath.Join(home, ".scanio-hub")
}
