package policy

import "testing"

func TestGetThreshold_NilConfig(t *testing.T) {
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, nil)
	if got != 90.0 {
		t.Errorf("got %.1f; want 90.0 (nil cfg must return default)", got)
	}
}

func TestGetThreshold_RuleNotPresent(t *testing.T) {
	cfg := &PolicyConfig{Rules: map[string]RuleConfig{}}
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, cfg)
	if got != 90.0 {
		t.Errorf("got %.1f; want 90.0 (rule absent must return default)", got)
	}
}

func TestGetThreshold_ParamNotPresent(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {Params: map[string]float64{}},
		},
	}
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, cfg)
	if got != 90.0 {
		t.Errorf("got %.1f; want 90.0 (param absent must return default)", got)
	}
}

func TestGetThreshold_NilParamsMap(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {Params: nil},
		},
	}
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, cfg)
	if got != 90.0 {
		t.Errorf("got %.1f; want 90.0 (nil Params map must return default)", got)
	}
}

func TestGetThreshold_OverrideValue(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {
				Params: map[string]float64{"inactive_days": 120.0},
			},
		},
	}
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, cfg)
	if got != 120.0 {
		t.Errorf("got %.1f; want 120.0 (configured override must be returned)", got)
	}
}

func TestGetThreshold_DifferentRuleIsolated(t *testing.T) {
	// Override for FAILED_LOGON_VOLUME must not affect INACTIVE_ACCOUNT lookup.
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"FAILED_LOGON_VOLUME": {
				Params: map[string]float64{"failed_logon_threshold": 50.0},
			},
		},
	}
	got := GetThreshold("INACTIVE_ACCOUNT", "inactive_days", 90.0, cfg)
	if got != 90.0 {
		t.Errorf("got %.1f; want 90.0 (override for different rule must not bleed over)", got)
	}
}

func TestIntParam(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"KRBTGT_PASSWORD_AGE":  {Params: map[string]float64{"max_age_days": 120.9}},
			"WEAK_PASSWORD_POLICY": {Params: map[string]float64{}},
		},
	}
	cases := []struct {
		rule, key string
		cfg       *PolicyConfig
		want      int
	}{
		{"KRBTGT_PASSWORD_AGE", "max_age_days", cfg, 120},
		{"WEAK_PASSWORD_POLICY", "min_length", cfg, 14},
		{"INACTIVE_ACCOUNT", "inactive_days", cfg, 14},
		{"KRBTGT_PASSWORD_AGE", "max_age_days", nil, 14},
	}
	for _, tc := range cases {
		if got := IntParam(tc.rule, tc.key, 14, tc.cfg); got != tc.want {
			t.Errorf("IntParam(%s, %s) = %d; want %d", tc.rule, tc.key, got, tc.want)
		}
	}
}
