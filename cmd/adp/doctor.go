package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pankaj-dahiya-devops/adposture/internal/config"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/awsclient"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/directory"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// psVersionScript is the read-only script used to prove WinRM works.
const psVersionScript = "$PSVersionTable.PSVersion.ToString()"

// DoctorResult is the structured output of adp doctor. It can be serialised
// to JSON via --format=json or rendered as a human-readable table (default).
type DoctorResult struct {
	Directory struct {
		Source    string `json:"source,omitempty"`
		Reachable bool   `json:"reachable"`
		Detail    string `json:"detail,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"directory"`

	WinRM struct {
		Host      string `json:"host,omitempty"`
		Skipped   bool   `json:"skipped"`
		Reachable bool   `json:"reachable"`
		PSVersion string `json:"ps_version,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"winrm"`

	AWS struct {
		Configured  bool   `json:"configured"`
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Policy struct {
		Present bool     `json:"present"`
		Valid   bool     `json:"valid"`
		Errors  []string `json:"errors,omitempty"`
	} `json:"policy"`

	OverallHealthy bool `json:"overall_healthy"`
}

// directoryCheck verifies the directory source and returns a detail line.
type directoryCheck func(ctx context.Context) (string, error)

// profileLoader is the part of *awsclient.Loader doctor uses.
type profileLoader interface {
	LoadProfile(ctx context.Context, profile, region string) (*awsclient.ProfileConfig, error)
}

// doctorDeps are the checks doctor runs. A nil field skips that check.
type doctorDeps struct {
	Directory       directoryCheck
	DirectorySource string
	WinRM           winrm.Executor
	WinRMHost       string
	AWS             profileLoader
	Profile         string
	Region          string
	PolicyPath      string
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			host, _ := cmd.Flags().GetString("host")
			policyPath, _ := cmd.Flags().GetString("policy")

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			deps := doctorDepsFromConfig(cfg, host, policyPath)
			deps.Directory = newDirectoryCheck(cfg, log)
			if deps.WinRMHost != "" {
				deps.WinRM = newWinRM(cfg, log)
			}

			result, err := runDoctor(cmd.Context(), deps, cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main's stderr path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("host", "", "Host for the WinRM check (default: the domain controller)")
	cmd.Flags().String("policy", defaultPolicyPath, "Policy file to validate")
	return cmd
}

// doctorDepsFromConfig fills the host, AWS and policy parts of doctorDeps.
func doctorDepsFromConfig(cfg *config.Config, host, policyPath string) doctorDeps {
	deps := doctorDeps{
		WinRMHost:  host,
		Profile:    cfg.AWS.DefaultProfile,
		Region:     cfg.AWS.DefaultRegion,
		PolicyPath: policyPath,
	}
	if deps.WinRMHost == "" {
		deps.WinRMHost = domainController(cfg)
	}
	switch {
	case cfg.Directory.DumpFile != "":
		deps.DirectorySource = cfg.Directory.DumpFile
	case cfg.Directory.URL != "":
		deps.DirectorySource = cfg.Directory.URL
	}
	if cfg.Export.S3.Bucket != "" {
		deps.AWS = awsclient.NewLoader()
	}
	return deps
}

// newDirectoryCheck returns the check for the configured source. With no
// source configured the check always fails.
func newDirectoryCheck(cfg *config.Config, log zerolog.Logger) directoryCheck {
	collector, err := newCollector(cfg, log)
	if err != nil {
		return func(context.Context) (string, error) { return "", err }
	}
	switch c := collector.(type) {
	case *directory.LDAPCollector:
		return func(ctx context.Context) (string, error) {
			if err := c.Connect(ctx); err != nil {
				return "", err
			}
			return "bind OK", nil
		}
	default:
		return func(ctx context.Context) (string, error) {
			data, err := c.Collect(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d records", data.RecordCount()), nil
		}
	}
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures. Callers inspect
// result.OverallHealthy to decide the exit status.
func runDoctor(ctx context.Context, deps doctorDeps, w io.Writer, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, deps)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs every check and populates a DoctorResult.
func collectDoctorResult(ctx context.Context, deps doctorDeps) DoctorResult {
	var result DoctorResult

	// Directory: LDAP bind, or a full parse of the export file.
	result.Directory.Source = deps.DirectorySource
	if deps.Directory != nil {
		detail, err := deps.Directory(ctx)
		if err != nil {
			result.Directory.Error = err.Error()
		} else {
			result.Directory.Reachable = true
			result.Directory.Detail = detail
		}
	} else {
		result.Directory.Error = errNoDirectorySource.Error()
	}

	// WinRM: one read-only script on the target host.
	result.WinRM.Host = deps.WinRMHost
	if deps.WinRM == nil || deps.WinRMHost == "" {
		result.WinRM.Skipped = true
	} else {
		out, err := deps.WinRM.RunPowerShell(ctx, deps.WinRMHost, psVersionScript)
		if err != nil {
			result.WinRM.Error = err.Error()
		} else {
			result.WinRM.Reachable = true
			result.WinRM.PSVersion = strings.TrimSpace(out)
		}
	}

	// AWS: only checked when the S3 sink is configured.
	if deps.AWS != nil {
		result.AWS.Configured = true
		result.AWS.Profile = deps.Profile
		pc, err := deps.AWS.LoadProfile(ctx, deps.Profile, deps.Region)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.Credentials = true
			result.AWS.AccountID = pc.AccountID
		}
	}

	// Policy: stat → load → validate (file is optional).
	path := deps.PolicyPath
	if path == "" {
		path = defaultPolicyPath
	}
	_, statErr := os.Stat(path)
	if statErr == nil {
		result.Policy.Present = true
		cfg, loadErr := policy.LoadPolicy(path)
		if loadErr != nil {
			result.Policy.Errors = []string{loadErr.Error()}
		} else {
			errs := policy.Validate(cfg, allRuleIDs())
			if len(errs) == 0 {
				result.Policy.Valid = true
			} else {
				for _, e := range errs {
					result.Policy.Errors = append(result.Policy.Errors, e.Error())
				}
			}
		}
	} else if !os.IsNotExist(statErr) {
		result.Policy.Present = true
		result.Policy.Errors = []string{statErr.Error()}
	}

	result.OverallHealthy = result.Directory.Reachable &&
		(result.WinRM.Skipped || result.WinRM.Reachable) &&
		(!result.AWS.Configured || result.AWS.Credentials) &&
		(!result.Policy.Present || result.Policy.Valid)

	return result
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.Directory.Source != "" {
		fmt.Fprintf(w, "\nDirectory (source: %s):\n", result.Directory.Source)
	} else {
		fmt.Fprintln(w, "\nDirectory:")
	}
	if result.Directory.Reachable {
		doctorPrint(w, "Source", "OK", result.Directory.Detail)
	} else {
		doctorPrint(w, "Source", "FAIL", result.Directory.Error)
	}

	if result.WinRM.Host != "" {
		fmt.Fprintf(w, "\nWinRM (host: %s):\n", result.WinRM.Host)
	} else {
		fmt.Fprintln(w, "\nWinRM:")
	}
	switch {
	case result.WinRM.Skipped:
		doctorPrint(w, "Remote PowerShell", "Skipped", "no host configured")
	case result.WinRM.Reachable:
		doctorPrint(w, "Remote PowerShell", "OK", "PowerShell "+result.WinRM.PSVersion)
	default:
		doctorPrint(w, "Remote PowerShell", "FAIL", result.WinRM.Error)
	}

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	switch {
	case !result.AWS.Configured:
		doctorPrint(w, "S3 export", "Not configured (optional)", "")
	case result.AWS.Credentials:
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
	default:
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
	}

	fmt.Fprintln(w, "\nPolicy:")
	if !result.Policy.Present {
		doctorPrint(w, "adp.yaml present", "Not found (optional)", "")
	} else {
		doctorPrint(w, "adp.yaml present", "YES", "")
		if result.Policy.Valid {
			doctorPrint(w, "Policy valid", "OK", "")
		} else {
			for _, e := range result.Policy.Errors {
				doctorPrint(w, "Policy valid", "FAIL", e)
			}
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
