package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the root configuration for the orchestrator daemon and CLI.
type Config struct {
	Logger     Logger     `yaml:"logger"`
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Workspace  Workspace  `yaml:"workspace"`
	Fleet      Fleet      `yaml:"fleet"`
	Scanners   Scanners   `yaml:"scanners"`
	AIReview   AIReview   `yaml:"ai_review"`
	Tickets    Tickets    `yaml:"tickets"`
	HttpClient HttpClient `yaml:"http_client"`
}

type Logger struct {
	Level string `yaml:"level"`
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Storage struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Workspace struct {
	RootDir string `yaml:"root_dir"`
}

type Fleet struct {
	// ListenAddr is where executors connect their framed channel.
	ListenAddr        string        `yaml:"listen_addr"`
	HeartbeatDeadline time.Duration `yaml:"heartbeat_deadline"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout"`
	MaxFrameBytes     int           `yaml:"max_frame_bytes"`
}

// Engine configures one external scanner binary.
type Engine struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

type Scanners struct {
	// Engines is the allow-list of engines this deployment can execute,
	// keyed by engine name (semgrep, trivy, cyclonedx).
	Engines map[string]Engine `yaml:"engines"`
}

type AIReview struct {
	Endpoint     string        `yaml:"endpoint"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Tickets struct {
	Provider    string `yaml:"provider"`
	BaseURL     string `yaml:"base_url"`
	Token       string `yaml:"token"`
	Namespace   string `yaml:"namespace"`
	Repository  string `yaml:"repository"`
	MinSeverity string `yaml:"min_severity"`
}

type HttpClient struct {
	Debug            bool            `yaml:"debug"`
	RetryCount       int             `yaml:"retry_count"`
	RetryWaitTime    time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration   `yaml:"retry_max_wait_time"`
	Timeout          time.Duration   `yaml:"timeout"`
	TlsClientConfig  TlsClientConfig `yaml:"tls_client_config"`
}

type TlsClientConfig struct {
	Verify bool `yaml:"verify"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

func NewConfig(configPath string) (*Config, error) {
	config := &Config{}

	if err := LoadYAML(configPath, &config); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

// Default returns a Config with every default applied, used when no config
// file is present.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}
