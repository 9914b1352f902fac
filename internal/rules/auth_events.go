package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

const (
	// AuthEventLimit is the number of events retained per classified stream.
	AuthEventLimit = 100

	// Upstream caps on raw events read from the Security log.
	MaxSuccessEvents = 1000
	MaxFailedEvents  = 500

	NTLMObservedRuleID    = "NTLM_AUTHENTICATION_OBSERVED"
	FailedLogonRuleID     = "FAILED_LOGON_VOLUME"
	failedLogonParam      = "failed_logon_threshold"
	defaultFailedLogonMax = 50.0
)

// Logon type codes retained by the NTLM-candidate heuristic.
const (
	LogonTypeInteractive = 2
	LogonTypeNetwork     = 3
)

// AuthEventSummary is the classified authentication-event window.
type AuthEventSummary struct {
	// NTLMCandidates are success events retained by IsNTLMCandidate, newest
	// first, at most AuthEventLimit.
	NTLMCandidates []models.AuthEvent
	// FailedLogons are failure events, newest first, at most AuthEventLimit.
	FailedLogons []models.AuthEvent
	// FailedLogonTotal is the number of failure events in the raw window
	// before truncation.
	FailedLogonTotal int
}

// IsNTLMCandidate reports whether a success event is retained as
// NTLM-relevant: the package names NTLM (any case) or the logon is
// interactive or network, whatever the package.
func IsNTLMCandidate(ev models.AuthEvent) bool {
	if strings.Contains(strings.ToUpper(ev.AuthenticationPackage), "NTLM") {
		return true
	}
	return ev.LogonType == LogonTypeInteractive || ev.LogonType == LogonTypeNetwork
}

// ClassifyAuthEvents filters success events with IsNTLMCandidate and keeps
// failure events unfiltered. Both streams keep input order and are truncated
// to AuthEventLimit.
func ClassifyAuthEvents(success, failed []models.AuthEvent) AuthEventSummary {
	candidates := []models.AuthEvent{}
	for _, ev := range success {
		if len(candidates) == AuthEventLimit {
			break
		}
		if IsNTLMCandidate(ev) {
			candidates = append(candidates, ev)
		}
	}

	kept := failed
	if len(kept) > AuthEventLimit {
		kept = kept[:AuthEventLimit]
	}
	out := make([]models.AuthEvent, len(kept))
	copy(out, kept)

	return AuthEventSummary{
		NTLMCandidates:   candidates,
		FailedLogons:     out,
		FailedLogonTotal: len(failed),
	}
}

// NTLMObservedRule raises one domain-level finding when NTLM-candidate
// authentication was seen in the event window.
type NTLMObservedRule struct{}

func (r NTLMObservedRule) ID() string   { return NTLMObservedRuleID }
func (r NTLMObservedRule) Name() string { return "NTLM Authentication Observed" }

func (r NTLMObservedRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.AuthEvents == nil || len(ctx.AuthEvents.NTLMCandidates) == 0 {
		return nil
	}
	n := len(ctx.AuthEvents.NTLMCandidates)
	f := newFinding(r.ID(), domainSubject(ctx), models.SubjectDomain, models.SeverityMedium, ctx.Clock())
	f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%d NTLM-candidate logons in window", n)}}
	f.Explanation = fmt.Sprintf("%d interactive, network or NTLM logons were recorded on the domain controller.", n)
	f.Recommendation = "Audit NTLM usage and restrict it via Group Policy once dependent applications are migrated to Kerberos."
	return []models.Finding{f}
}

// FailedLogonVolumeRule flags a failed-logon count above the configured
// threshold, an indicator of password spraying or brute force.
type FailedLogonVolumeRule struct{}

func (r FailedLogonVolumeRule) ID() string   { return FailedLogonRuleID }
func (r FailedLogonVolumeRule) Name() string { return "Failed Logon Volume" }

func (r FailedLogonVolumeRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.AuthEvents == nil {
		return nil
	}
	threshold := policy.GetThreshold(r.ID(), failedLogonParam, defaultFailedLogonMax, ctx.Policy)
	total := ctx.AuthEvents.FailedLogonTotal
	if float64(total) <= threshold {
		return nil
	}
	f := newFinding(r.ID(), domainSubject(ctx), models.SubjectDomain, models.SeverityMedium, ctx.Clock())
	f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%d failed logons (threshold %.0f)", total, threshold)}}
	f.Explanation = fmt.Sprintf("%d failed logon attempts were recorded in the event window.", total)
	f.Recommendation = "Investigate potential brute-force or password-spraying activity."
	return []models.Finding{f}
}

func domainSubject(ctx RuleContext) string {
	if ctx.Directory != nil && ctx.Directory.Domain != "" {
		return ctx.Directory.Domain
	}
	return "domain"
}
