package config

import (
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/logger"
)

// Config is the top-level application configuration.
// It is loaded from ~/.config/adposture/config.yaml and must never be
// committed with real secrets; passwords belong in ADP_LDAP_PASSWORD and
// ADP_WINRM_PASSWORD.
type Config struct {
	Directory DirectoryConfig `yaml:"directory" json:"directory"`
	WinRM     WinRMConfig     `yaml:"winrm"     json:"winrm"`
	Probe     ProbeConfig     `yaml:"probe"     json:"probe"`
	Events    EventsConfig    `yaml:"events"    json:"events"`
	Signing   SigningConfig   `yaml:"signing"   json:"signing"`
	Export    ExportConfig    `yaml:"export"    json:"export"`
	AWS       AWSConfig       `yaml:"aws"       json:"aws"`
	Log       logger.Config   `yaml:"log"       json:"log"`
}

// DirectoryConfig selects and configures the directory data source.
type DirectoryConfig struct {
	// URL is the LDAP endpoint, e.g. "ldaps://dc01.corp.local:636".
	URL string `yaml:"url" json:"url"`

	// BaseDN is the search root. Empty means derive it from Domain.
	BaseDN string `yaml:"base_dn" json:"base_dn"`

	// Domain is the DNS name of the directory domain.
	Domain string `yaml:"domain" json:"domain"`

	BindDN       string `yaml:"bind_dn"       json:"bind_dn"`
	BindPassword string `yaml:"bind_password" json:"-"`

	StartTLS           bool          `yaml:"start_tls"            json:"start_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	PageSize           uint32        `yaml:"page_size"            json:"page_size"`
	Timeout            time.Duration `yaml:"timeout"              json:"timeout"`

	// DumpFile, when set, replaces LDAP with a JSON directory export.
	DumpFile string `yaml:"dump_file" json:"dump_file"`

	// PrivilegedGroups overrides the built-in privileged group list.
	PrivilegedGroups []string `yaml:"privileged_groups" json:"privileged_groups"`
}

// WinRMConfig holds remote management credentials shared by the host
// prober and the event source.
type WinRMConfig struct {
	Username string        `yaml:"username" json:"username"`
	Password string        `yaml:"password" json:"-"`
	Port     int           `yaml:"port"     json:"port"`
	HTTPS    bool          `yaml:"https"    json:"https"`
	Insecure bool          `yaml:"insecure" json:"insecure"`
	Timeout  time.Duration `yaml:"timeout"  json:"timeout"`
	// Basic switches from NTLM to basic authentication.
	Basic bool `yaml:"basic" json:"basic"`
}

// ProbeConfig bounds the host posture pass.
type ProbeConfig struct {
	// Enabled turns host probing on. Directory-only audits set it false.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxHosts caps how many enabled computers are probed. 0 means no cap.
	MaxHosts int `yaml:"max_hosts" json:"max_hosts"`

	// Concurrency is the worker pool size.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// HostTimeout bounds one host's reachability check plus capability probes.
	HostTimeout time.Duration `yaml:"host_timeout" json:"host_timeout"`

	// ReachabilityTimeout bounds the whole reachability gate.
	ReachabilityTimeout time.Duration `yaml:"reachability_timeout" json:"reachability_timeout"`

	// Ports are tried in order by the reachability gate.
	Ports []int `yaml:"ports" json:"ports"`
}

// EventsConfig configures the authentication-event source.
type EventsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DomainController is the host whose Security log is read. Empty means
	// the host part of Directory.URL.
	DomainController string `yaml:"domain_controller" json:"domain_controller"`

	// Lookback is how far back events are read.
	Lookback time.Duration `yaml:"lookback" json:"lookback"`
}

// SigningConfig controls the registry read of the controller's LDAP and
// SMB signing settings. The controller is the one Events reads.
type SigningConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ExportConfig lists the snapshot sinks. Every sink is optional.
type ExportConfig struct {
	OutputFile string     `yaml:"output_file" json:"output_file"`
	CSVPrefix  string     `yaml:"csv_prefix"  json:"csv_prefix"`
	SQLitePath string     `yaml:"sqlite_path" json:"sqlite_path"`
	NATS       NATSConfig `yaml:"nats"        json:"nats"`
	S3         S3Config   `yaml:"s3"          json:"s3"`
}

// NATSConfig publishes snapshot summaries to a NATS subject.
type NATSConfig struct {
	URL     string `yaml:"url"     json:"url"`
	Subject string `yaml:"subject" json:"subject"`
}

// S3Config uploads the snapshot JSON to a bucket.
type S3Config struct {
	Bucket string `yaml:"bucket" json:"bucket"`
	Prefix string `yaml:"prefix" json:"prefix"`
}

// AWSConfig holds AWS defaults used by the S3 sink.
type AWSConfig struct {
	// DefaultRegion is used when the profile does not set a region.
	DefaultRegion string `yaml:"default_region" json:"default_region"`

	// DefaultProfile is the shared-config profile. Empty means the default chain.
	DefaultProfile string `yaml:"default_profile" json:"default_profile"`
}

// Loader is the interface for reading Config from disk.
// Default implementation reads from ~/.config/adposture/config.yaml.
type Loader interface {
	// Load reads, parses, and validates the configuration file.
	Load() (*Config, error)

	// ConfigPath returns the absolute path to the configuration file.
	ConfigPath() string
}
