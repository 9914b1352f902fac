package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/adposture/internal/config"
	"github.com/pankaj-dahiya-devops/adposture/internal/engine"
	"github.com/pankaj-dahiya-devops/adposture/internal/export"
	"github.com/pankaj-dahiya-devops/adposture/internal/logger"
	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/output"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
	"github.com/pankaj-dahiya-devops/adposture/internal/render"
	"github.com/pankaj-dahiya-devops/adposture/internal/version"
)

// defaultPolicyPath is the policy file read from the working directory.
const defaultPolicyPath = "adp.yaml"

// errPolicyViolation is returned by audit when a finding reaches an enforced
// fail_on_severity. main turns it into exit code 1.
var errPolicyViolation = errors.New("policy enforcement threshold reached")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adp",
		Short:         "adposture: Active Directory security posture audit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default: ~/.config/adposture/config.yaml)")

	root.AddCommand(newAuditCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newExplainCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}

// loadConfig reads the file named by --config and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewFileLoader(path).Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

// ── audit ────────────────────────────────────────────────────────────────────

type auditFlags struct {
	input       string
	skipProbes  bool
	skipEvents  bool
	maxHosts    int
	concurrency int
	output      string
	csvPrefix   string
	sqlitePath  string
	policyPath  string
	render      renderOptions
}

func newAuditCmd() *cobra.Command {
	var f auditFlags

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Collect directory data, probe hosts and evaluate the identity and host rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyAuditFlags(cfg, f); err != nil {
				return err
			}
			return runAudit(cmd.Context(), cfg, f, cmd.OutOrStdout(), log)
		},
	}

	cmd.Flags().StringVar(&f.input, "input", "", "Read a JSON directory export instead of querying LDAP")
	cmd.Flags().BoolVar(&f.skipProbes, "skip-probes", false, "Skip the host posture pass")
	cmd.Flags().BoolVar(&f.skipEvents, "skip-events", false, "Skip Security log collection")
	cmd.Flags().IntVar(&f.maxHosts, "max-hosts", -1, "Cap the number of hosts probed (0: no cap; default: config value)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Concurrent host probes (default: config value)")
	cmd.Flags().StringVar(&f.output, "output", "", "Write the full JSON snapshot to this file path")
	cmd.Flags().StringVar(&f.csvPrefix, "csv", "", "Write users, computers and posture CSV files with this path prefix")
	cmd.Flags().StringVar(&f.sqlitePath, "history-db", "", "Record the snapshot in this SQLite history database")
	cmd.Flags().StringVar(&f.policyPath, "policy", defaultPolicyPath, "Policy file (optional)")
	addRenderFlags(cmd, &f.render)

	return cmd
}

// applyAuditFlags layers command-line overrides on cfg.
func applyAuditFlags(cfg *config.Config, f auditFlags) error {
	if f.input != "" {
		cfg.Directory.DumpFile = f.input
	}
	if f.maxHosts >= 0 {
		cfg.Probe.MaxHosts = f.maxHosts
	}
	if f.concurrency != 0 {
		cfg.Probe.Concurrency = f.concurrency
	}
	if f.output != "" {
		cfg.Export.OutputFile = f.output
	}
	if f.csvPrefix != "" {
		cfg.Export.CSVPrefix = f.csvPrefix
	}
	if f.sqlitePath != "" {
		cfg.Export.SQLitePath = f.sqlitePath
	}
	return cfg.Validate()
}

func runAudit(ctx context.Context, cfg *config.Config, f auditFlags, w io.Writer, log zerolog.Logger) error {
	if err := f.render.validate(); err != nil {
		return err
	}

	pol, err := policy.LoadOptional(f.policyPath)
	if err != nil {
		return err
	}
	if pol != nil {
		for _, verr := range policy.Validate(pol, allRuleIDs()) {
			log.Warn().Err(verr).Str("policy", f.policyPath).Msg("policy entry ignored")
		}
	}

	collector, err := newCollector(cfg, log)
	if err != nil {
		return err
	}
	eng := newEngine(cfg, collector, pol, log)

	snap, err := eng.RunAudit(ctx, engine.AuditOptions{
		SkipProbes:   f.skipProbes,
		SkipEvents:   f.skipEvents,
		ReportFormat: engine.ReportFormat(f.render.format),
	})
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	exporters, closeExporters, setupErr := newExporters(ctx, cfg, log)
	defer closeExporters()
	exportErr := errors.Join(setupErr, export.Run(ctx, snap, exporters, log))

	if err := renderSnapshot(w, snap, f.render); err != nil {
		return err
	}
	if exportErr != nil {
		return fmt.Errorf("export: %w", exportErr)
	}
	if v := policy.Violations(snap.Findings, pol); len(v) > 0 {
		return fmt.Errorf("%w: %d finding(s), first %s on %s", errPolicyViolation, len(v), v[0].RuleID, v[0].Subject)
	}
	return nil
}

// ── report ───────────────────────────────────────────────────────────────────

func newReportCmd() *cobra.Command {
	var r renderOptions

	cmd := &cobra.Command{
		Use:   "report <snapshot.json>",
		Short: "Render a snapshot written by audit --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.validate(); err != nil {
				return err
			}
			snap, err := export.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			return renderSnapshot(cmd.OutOrStdout(), snap, r)
		},
	}
	addRenderFlags(cmd, &r)
	return cmd
}

func newExplainCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "explain <snapshot.json> <RULE_ID>",
		Short: "Show every finding one rule produced, with its reasons",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := export.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			exp := render.ExplainRule(snap.Findings, args[1])

			w := cmd.OutOrStdout()
			if format == "json" {
				return render.WriteExplainJSON(w, exp, args[1])
			}
			if exp == nil {
				return fmt.Errorf("no findings for rule %s in snapshot %s", args[1], snap.SnapshotID)
			}
			render.RenderRuleExplanation(w, *exp)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", `Output format: "table" or "json"`)
	return cmd
}

// ── history ──────────────────────────────────────────────────────────────────

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List snapshots recorded in the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database (default: export.sqlite_path from config)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of snapshots to list (0: all)")

	cmd.AddCommand(newHistoryDiffCmd(&dbPath))
	cmd.AddCommand(newHistoryShowCmd(&dbPath))
	return cmd
}

func newHistoryDiffCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [old-id new-id]",
		Short: "Show findings added and resolved between two snapshots (default: the latest two)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("diff takes no arguments or two snapshot IDs; got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			oldID, newID, err := diffTargets(cmd.Context(), store, args)
			if err != nil {
				return err
			}
			diff, err := store.Diff(cmd.Context(), oldID, newID)
			if err != nil {
				return err
			}
			printDiff(cmd.OutOrStdout(), oldID, newID, diff)
			return nil
		},
	}
}

func newHistoryShowCmd(dbPath *string) *cobra.Command {
	var r renderOptions

	cmd := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Render a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.validate(); err != nil {
				return err
			}
			store, err := openHistory(cmd, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderSnapshot(cmd.OutOrStdout(), snap, r)
		},
	}
	addRenderFlags(cmd, &r)
	return cmd
}

func openHistory(cmd *cobra.Command, dbPath string) (*export.SQLiteStore, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath = cfg.Export.SQLitePath
	}
	if dbPath == "" {
		return nil, errors.New("no history database: set export.sqlite_path or pass --db")
	}
	return export.OpenSQLite(cmd.Context(), dbPath, logger.WithComponent(log, "history"))
}

// diffTargets resolves the snapshot pair to compare: the explicit IDs, or
// the two most recent entries.
func diffTargets(ctx context.Context, store *export.SQLiteStore, args []string) (string, string, error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	entries, err := store.List(ctx, 2)
	if err != nil {
		return "", "", err
	}
	if len(entries) < 2 {
		return "", "", fmt.Errorf("diff needs two recorded snapshots; found %d", len(entries))
	}
	return entries[1].SnapshotID, entries[0].SnapshotID, nil
}

func printHistory(w io.Writer, entries []export.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No snapshots recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-20s  %-18s  %8s  %8s  %4s\n",
		"SNAPSHOT", "GENERATED", "DOMAIN", "RISK", "FINDINGS", "CRITICAL", "HIGH")
	fmt.Fprintln(w, strings.Repeat("-", 126))
	for _, e := range entries {
		fmt.Fprintf(w, "%-36s  %-20s  %-20s  %-18s  %8d  %8d  %4d\n",
			e.SnapshotID,
			e.GeneratedAt.UTC().Format(time.RFC3339),
			e.Domain,
			fmt.Sprintf("%d (%s)", e.RiskScore, e.RiskLevel),
			e.TotalFindings,
			e.CriticalFindings,
			e.HighFindings,
		)
	}
}

func printDiff(w io.Writer, oldID, newID string, diff export.FindingDiff) {
	fmt.Fprintf(w, "Comparing %s -> %s\n", oldID, newID)
	printRefs(w, "Added", diff.Added)
	printRefs(w, "Resolved", diff.Resolved)
}

func printRefs(w io.Writer, label string, refs []export.FindingRef) {
	fmt.Fprintf(w, "\n%s (%d)\n", label, len(refs))
	for _, r := range refs {
		fmt.Fprintf(w, "  %-10s  %-28s  %s\n", string(r.Severity), r.RuleID, r.Subject)
	}
}

// ── rendering ────────────────────────────────────────────────────────────────

// renderOptions are the output flags shared by audit, report and history show.
type renderOptions struct {
	format  string
	summary bool
	reasons bool
	color   bool
}

func addRenderFlags(cmd *cobra.Command, r *renderOptions) {
	cmd.Flags().StringVar(&r.format, "report", "table", "Output format: json or table")
	cmd.Flags().BoolVar(&r.summary, "summary", false, "Print risk scores, statistics and recommendations instead of the findings table")
	cmd.Flags().BoolVar(&r.reasons, "reasons", false, "List every fired indicator under its finding")
	cmd.Flags().BoolVar(&r.color, "color", false, "Colour severities with ANSI escapes")
}

func (r renderOptions) validate() error {
	switch engine.ReportFormat(r.format) {
	case engine.ReportFormatJSON, engine.ReportFormatTable:
		return nil
	}
	return fmt.Errorf("--report: want json or table; got %q", r.format)
}

// renderSnapshot writes snap to w in the requested format.
func renderSnapshot(w io.Writer, snap *models.Snapshot, r renderOptions) error {
	if engine.ReportFormat(r.format) == engine.ReportFormatJSON {
		return export.WriteJSON(w, snap)
	}
	if r.summary {
		output.RenderSummary(w, snap, r.color)
		return nil
	}

	fmt.Fprintf(w,
		"Domain: %-20s  Snapshot: %s  Findings: %d  Risk: %d (%s)\n",
		snap.Domain,
		snap.SnapshotID,
		snap.Summary.TotalFindings,
		snap.OverallRisk.Score,
		snap.OverallRisk.Level,
	)
	fmt.Fprintln(w)
	output.RenderTable(w, snap.Findings, output.TableOptions{
		Colored:        r.color,
		IncludeDomain:  true,
		IncludeReasons: r.reasons,
	})
	if len(snap.HostPosture) > 0 {
		fmt.Fprintln(w)
		output.RenderPostureTable(w, snap.HostPosture)
	}
	return nil
}
