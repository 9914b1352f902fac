package engine

import (
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// Risk categories.
const (
	RiskKerberoasting = "kerberoasting"
	RiskDelegation    = "delegation"
	RiskEncryption    = "encryption"
	RiskNTLM          = "ntlm"
	RiskPrivileged    = "privileged"
	RiskInactive      = "inactive"
)

// Per-item category weights.
const (
	weightUserSPN          = 10
	weightUserDelegation   = 15
	weightHostDelegation   = 20
	weightWeakEncryption   = 5
	weightNTLMEvent        = 2
	weightUnprotectedAdmin = 25
	weightInactiveAccount  = 2
	weightOldPassword      = 3
	maxNTLMScore           = 100
	riskNormaliser         = 10
	maxOverallScore        = 100
	mediumRiskFloor        = 30
	highRiskFloor          = 70
)

// riskScores computes the raw per-category scores from the snapshot's
// collections and statistics. Scores are computed over every user,
// enabled or not.
func riskScores(snap *models.Snapshot) map[string]int {
	now := snap.GeneratedAt.Time
	if now.IsZero() {
		now = time.Now()
	}

	inactive, oldPasswords := agedUsers(snap.Users, now)
	scores := map[string]int{
		RiskKerberoasting: snap.Statistics[StatUsersWithSPNs] * weightUserSPN,
		RiskDelegation: snap.Statistics[StatUsersWithDelegation]*weightUserDelegation +
			snap.Statistics[StatComputersWithDelegation]*weightHostDelegation,
		RiskEncryption: snap.Statistics[StatWeakEncryptionUsers] * weightWeakEncryption,
		RiskNTLM:       min(snap.Statistics[StatNTLMEventCount]*weightNTLMEvent, maxNTLMScore),
		RiskPrivileged: unprotectedDomainAdmins(snap.Users) * weightUnprotectedAdmin,
		RiskInactive:   inactive*weightInactiveAccount + oldPasswords*weightOldPassword,
	}
	return scores
}

// overallRisk normalises the category sum to 0-100 and bands it.
func overallRisk(scores map[string]int) models.OverallRisk {
	total := 0
	for _, v := range scores {
		total += v
	}
	score := min(total/riskNormaliser, maxOverallScore)

	level := models.RiskHigh
	switch {
	case score < mediumRiskFloor:
		level = models.RiskLow
	case score < highRiskFloor:
		level = models.RiskMedium
	}
	return models.OverallRisk{Score: score, Level: level}
}

// agedUsers counts users with no logon for more than the inactive window
// and users whose password is older than the stale window.
func agedUsers(users []models.IdentityRecord, now time.Time) (inactive, oldPasswords int) {
	for _, u := range users {
		if d, ok := u.LastLogon.DaysSince(now); ok && d > rules.DefaultInactiveDays {
			inactive++
		}
		if d, ok := u.PasswordLastSet.DaysSince(now); ok && d > rules.DefaultStalePasswordDays {
			oldPasswords++
		}
	}
	return inactive, oldPasswords
}

func unprotectedDomainAdmins(users []models.IdentityRecord) int {
	n := 0
	for _, u := range users {
		if rules.IsUnprotectedAdmin(u, rules.GroupDomainAdmins) {
			n++
		}
	}
	return n
}

func krbtgtPasswordAge(users []models.IdentityRecord, now time.Time) (int, bool) {
	for _, u := range users {
		if strings.EqualFold(u.SamAccountName, rules.AccountKrbtgt) {
			return u.PasswordLastSet.DaysSince(now)
		}
	}
	return 0, false
}
