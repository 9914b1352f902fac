package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/config"
	"github.com/pankaj-dahiya-devops/adposture/internal/engine"
	"github.com/pankaj-dahiya-devops/adposture/internal/export"
	"github.com/pankaj-dahiya-devops/adposture/internal/logger"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
	"github.com/pankaj-dahiya-devops/adposture/internal/probe"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/awsclient"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/dcpolicy"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/directory"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/eventlog"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
	hostpack "github.com/pankaj-dahiya-devops/adposture/internal/rulepacks/hosts"
	identitypack "github.com/pankaj-dahiya-devops/adposture/internal/rulepacks/identity"
	infrapack "github.com/pankaj-dahiya-devops/adposture/internal/rulepacks/infrastructure"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// errNoDirectorySource is returned when neither an export file nor an LDAP
// URL is configured.
var errNoDirectorySource = errors.New("no directory source: set directory.url or directory.dump_file, or pass --input")

// privilegedGroups returns the configured group list, or the built-in one.
func privilegedGroups(cfg *config.Config) []string {
	if len(cfg.Directory.PrivilegedGroups) > 0 {
		return cfg.Directory.PrivilegedGroups
	}
	return rules.DefaultPrivilegedGroups
}

// newCollector picks the directory source: the export file when one is
// configured, LDAP otherwise.
func newCollector(cfg *config.Config, log zerolog.Logger) (directory.Collector, error) {
	d := cfg.Directory
	log = logger.WithComponent(log, "directory")

	switch {
	case d.DumpFile != "":
		return directory.NewDumpLoader(d.DumpFile, d.Domain, privilegedGroups(cfg), log), nil
	case d.URL != "":
		if d.BaseDN == "" {
			return nil, fmt.Errorf("directory.base_dn: required with directory.url (or set directory.domain)")
		}
		return directory.NewLDAPCollector(directory.LDAPConfig{
			URL:                d.URL,
			BaseDN:             d.BaseDN,
			Domain:             d.Domain,
			BindDN:             d.BindDN,
			BindPassword:       d.BindPassword,
			StartTLS:           d.StartTLS,
			InsecureSkipVerify: d.InsecureSkipVerify,
			PageSize:           d.PageSize,
			Timeout:            d.Timeout,
			PrivilegedGroups:   privilegedGroups(cfg),
		}, log), nil
	}
	return nil, errNoDirectorySource
}

func newWinRM(cfg *config.Config, log zerolog.Logger) *winrm.Client {
	w := cfg.WinRM
	return winrm.New(winrm.Config{
		Username: w.Username,
		Password: w.Password,
		Port:     w.Port,
		HTTPS:    w.HTTPS,
		Insecure: w.Insecure,
		Timeout:  w.Timeout,
		Basic:    w.Basic,
	}, log)
}

// domainController returns the host whose Security log is read: the
// configured one, else the host of the LDAP URL.
func domainController(cfg *config.Config) string {
	if cfg.Events.DomainController != "" {
		return cfg.Events.DomainController
	}
	if cfg.Directory.URL == "" {
		return ""
	}
	u, err := url.Parse(cfg.Directory.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// rulePacks registers every rule pack under its policy domain.
func rulePacks() []engine.RulePack {
	return []engine.RulePack{
		{Domain: policy.DomainIdentity, Registry: rules.NewRegistry(identitypack.New()...)},
		{Domain: policy.DomainHosts, Registry: rules.NewRegistry(hostpack.New()...)},
		{Domain: policy.DomainInfrastructure, Registry: rules.NewRegistry(infrapack.New()...)},
	}
}

// allRuleIDs returns the union of rule IDs across every pack.
func allRuleIDs() []string {
	var ids []string
	for _, pack := range rulePacks() {
		ids = append(ids, pack.Registry.IDs()...)
	}
	return ids
}

// newEngine wires the collector, the optional event source and the optional
// host scheduler into an engine.
func newEngine(cfg *config.Config, collector directory.Collector, pol *policy.PolicyConfig, log zerolog.Logger) *engine.DefaultEngine {
	opts := []engine.Option{
		engine.WithPolicy(pol),
		engine.WithPrivilegedGroups(privilegedGroups(cfg)),
	}

	var exec *winrm.Client
	if cfg.Probe.Enabled || cfg.Events.Enabled || cfg.Signing.Enabled {
		exec = newWinRM(cfg, log)
	}

	if cfg.Probe.Enabled {
		p := cfg.Probe
		reach := probe.NewTCPReachability(p.Ports, p.ReachabilityTimeout)
		prober := probe.NewProber(exec, reach, logger.WithComponent(log, "probe"))
		opts = append(opts, engine.WithScheduler(probe.NewScheduler(prober, probe.SchedulerConfig{
			MaxHosts:    p.MaxHosts,
			Concurrency: p.Concurrency,
			HostTimeout: p.HostTimeout,
		}, logger.WithComponent(log, "scheduler"))))
	}

	if cfg.Events.Enabled {
		if dc := domainController(cfg); dc != "" {
			opts = append(opts, engine.WithEventSource(eventlog.NewWinRMSource(exec, eventlog.Config{
				DomainController: dc,
				Lookback:         cfg.Events.Lookback,
			}, logger.WithComponent(log, "eventlog"))))
		} else {
			log.Info().Msg("no domain controller configured; skipping Security log collection")
		}
	}

	if cfg.Signing.Enabled {
		if dc := domainController(cfg); dc != "" {
			opts = append(opts, engine.WithSigningSource(dcpolicy.NewWinRMSource(exec, dc, logger.WithComponent(log, "dcpolicy"))))
		}
	}

	return engine.NewDefaultEngine(collector, rulePacks(), logger.WithComponent(log, "engine"), opts...)
}

// newExporters opens every configured sink. A sink that cannot be opened is
// reported in the returned error and left out; the others still run. The
// returned func closes whatever was opened.
func newExporters(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]export.Exporter, func(), error) {
	var (
		exporters []export.Exporter
		closers   []func()
		errs      []error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	e := cfg.Export
	if e.OutputFile != "" {
		exporters = append(exporters, export.JSONFile{Path: e.OutputFile})
	}
	if e.CSVPrefix != "" {
		exporters = append(exporters, export.CSVFiles{Prefix: e.CSVPrefix})
	}
	if e.SQLitePath != "" {
		store, err := export.OpenSQLite(ctx, e.SQLitePath, logger.WithComponent(log, "sqlite"))
		if err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		} else {
			closers = append(closers, func() { _ = store.Close() })
			exporters = append(exporters, store)
		}
	}
	if e.NATS.URL != "" {
		nc, err := export.ConnectNATS(e.NATS.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		} else {
			closers = append(closers, nc.Close)
			exporters = append(exporters, export.NewNATSPublisher(nc, e.NATS.Subject))
		}
	}
	if e.S3.Bucket != "" {
		pc, err := awsclient.NewLoader().LoadProfile(ctx, cfg.AWS.DefaultProfile, cfg.AWS.DefaultRegion)
		if err != nil {
			errs = append(errs, fmt.Errorf("s3: %w", err))
		} else {
			exporters = append(exporters, export.NewS3Uploader(pc.Clients.S3, e.S3.Bucket, e.S3.Prefix))
		}
	}

	return exporters, closeAll, errors.Join(errs...)
}
