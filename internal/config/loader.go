package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/adposture/internal/logger"
)

// Environment variables that override file values.
const (
	EnvLDAPPassword  = "ADP_LDAP_PASSWORD"
	EnvWinRMPassword = "ADP_WINRM_PASSWORD"
	EnvWinRMUsername = "ADP_WINRM_USERNAME"
)

// Defaults applied to fields left empty by the file.
const (
	DefaultMaxHosts            = 100
	DefaultConcurrency         = 10
	DefaultHostTimeout         = 60 * time.Second
	DefaultReachabilityTimeout = 2 * time.Second
	DefaultLDAPPageSize        = 500
	DefaultLDAPTimeout         = 30 * time.Second
	DefaultWinRMPort           = 5985
	DefaultWinRMHTTPSPort      = 5986
	DefaultWinRMTimeout        = 30 * time.Second
	DefaultEventLookback       = 24 * time.Hour
	DefaultNATSSubject         = "adposture.snapshots"
)

// DefaultProbePorts are WinRM HTTP/HTTPS, SMB and RPC endpoint mapper.
var DefaultProbePorts = []int{5985, 5986, 445, 135}

// FileLoader reads Config from a YAML file. A missing file is not an error:
// the result is Default() plus environment overrides.
type FileLoader struct {
	Path string
}

// NewFileLoader returns a loader for path, or for DefaultPath() when path is
// empty.
func NewFileLoader(path string) *FileLoader {
	if path == "" {
		path = DefaultPath()
	}
	return &FileLoader{Path: path}
}

// DefaultPath returns ~/.config/adposture/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "adposture", "config.yaml")
	}
	return filepath.Join(home, ".config", "adposture", "config.yaml")
}

func (l *FileLoader) ConfigPath() string { return l.Path }

func (l *FileLoader) Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(l.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", l.Path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.Path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", l.Path, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			Enabled:     true,
			MaxHosts:    DefaultMaxHosts,
			Concurrency: DefaultConcurrency,
		},
		Events:  EventsConfig{Enabled: true},
		Signing: SigningConfig{Enabled: true},
		Log:     logger.DefaultConfig(),
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLDAPPassword); v != "" {
		cfg.Directory.BindPassword = v
	}
	if v := os.Getenv(EnvWinRMPassword); v != "" {
		cfg.WinRM.Password = v
	}
	if v := os.Getenv(EnvWinRMUsername); v != "" {
		cfg.WinRM.Username = v
	}
}

func applyDefaults(cfg *Config) {
	d := &cfg.Directory
	if d.PageSize == 0 {
		d.PageSize = DefaultLDAPPageSize
	}
	if d.Timeout == 0 {
		d.Timeout = DefaultLDAPTimeout
	}
	if d.BaseDN == "" && d.Domain != "" {
		d.BaseDN = DomainToBaseDN(d.Domain)
	}

	w := &cfg.WinRM
	if w.Port == 0 {
		w.Port = DefaultWinRMPort
		if w.HTTPS {
			w.Port = DefaultWinRMHTTPSPort
		}
	}
	if w.Timeout == 0 {
		w.Timeout = DefaultWinRMTimeout
	}

	p := &cfg.Probe
	if p.Concurrency == 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.HostTimeout == 0 {
		p.HostTimeout = DefaultHostTimeout
	}
	if p.ReachabilityTimeout == 0 {
		p.ReachabilityTimeout = DefaultReachabilityTimeout
	}
	if len(p.Ports) == 0 {
		p.Ports = append([]int(nil), DefaultProbePorts...)
	}

	if cfg.Events.Lookback == 0 {
		cfg.Events.Lookback = DefaultEventLookback
	}
	if cfg.Export.NATS.URL != "" && cfg.Export.NATS.Subject == "" {
		cfg.Export.NATS.Subject = DefaultNATSSubject
	}
}

// Validate reports the first semantic error in cfg.
func (c *Config) Validate() error {
	if c.Probe.MaxHosts < 0 {
		return fmt.Errorf("probe.max_hosts: must not be negative; got %d", c.Probe.MaxHosts)
	}
	if c.Probe.Concurrency < 1 {
		return fmt.Errorf("probe.concurrency: must be at least 1; got %d", c.Probe.Concurrency)
	}
	for _, port := range c.Probe.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("probe.ports: invalid port %d", port)
		}
	}
	if c.Directory.URL != "" && !strings.HasPrefix(c.Directory.URL, "ldap://") && !strings.HasPrefix(c.Directory.URL, "ldaps://") {
		return fmt.Errorf("directory.url: scheme must be ldap or ldaps; got %q", c.Directory.URL)
	}
	return nil
}

// DomainToBaseDN converts "corp.example.com" to "DC=corp,DC=example,DC=com".
func DomainToBaseDN(domain string) string {
	parts := strings.Split(strings.Trim(domain, "."), ".")
	for i, p := range parts {
		parts[i] = "DC=" + p
	}
	return strings.Join(parts, ",")
}
