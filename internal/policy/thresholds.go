package policy

import "math"

// param returns cfg.Rules[ruleID].Params[key] when it is set.
func param(ruleID, key string, cfg *PolicyConfig) (float64, bool) {
	if cfg == nil {
		return 0, false
	}
	rc, ok := cfg.Rules[ruleID]
	if !ok {
		return 0, false
	}
	v, ok := rc.Params[key]
	return v, ok
}

// GetThreshold returns the rule parameter key from the policy, or
// defaultValue when the policy is nil or does not set it.
func GetThreshold(ruleID, key string, defaultValue float64, cfg *PolicyConfig) float64 {
	if v, ok := param(ruleID, key, cfg); ok {
		return v
	}
	return defaultValue
}

// IntParam is GetThreshold for whole-number parameters such as day counts
// and password lengths. Fractional values are rounded down.
func IntParam(ruleID, key string, defaultValue int, cfg *PolicyConfig) int {
	v, ok := param(ruleID, key, cfg)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return defaultValue
	}
	return int(math.Floor(v))
}
