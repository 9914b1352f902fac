package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestDecodeEncryptionTypes(t *testing.T) {
	cases := []struct {
		name string
		mask *int
		want []string
	}{
		{"nil mask", nil, []string{"None"}},
		{"zero", intPtr(0), []string{"None"}},
		{"all four", intPtr(0xF), []string{"DES", "RC4", "AES128", "AES256"}},
		{"aes128 only", intPtr(0x4), []string{"AES128"}},
		{"rc4 and aes256", intPtr(0x2 | 0x8), []string{"RC4", "AES256"}},
		{"unknown bits ignored", intPtr(0x10 | 0x20), []string{"None"}},
		{"unknown plus des", intPtr(0x1 | 0x40), []string{"DES"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeEncryptionTypes(tc.mask)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("DecodeEncryptionTypes: got %v; want %v", got, tc.want)
			}
		})
	}
}

// TestDecodeEncryptionTypes_NeverEmpty walks every mask in the low byte and
// checks the decoded set is non-empty.
func TestDecodeEncryptionTypes_NeverEmpty(t *testing.T) {
	for m := 0; m < 256; m++ {
		if got := DecodeEncryptionTypes(intPtr(m)); len(got) == 0 {
			t.Fatalf("mask %#x decoded to empty set", m)
		}
	}
}

func TestHasWeakEncryption(t *testing.T) {
	if !HasWeakEncryption([]string{"RC4", "AES256"}) {
		t.Error("RC4 must count as weak")
	}
	if HasWeakEncryption([]string{"AES128", "AES256"}) {
		t.Error("AES-only set must not count as weak")
	}
	if HasWeakEncryption([]string{"None"}) {
		t.Error("None must not count as weak")
	}
}

func TestHostRecord_Target(t *testing.T) {
	cases := []struct {
		host HostRecord
		want string
	}{
		{HostRecord{SamAccountName: "WS01$", DNSHostName: "ws01.corp.local", IPv4Address: "10.0.0.5"}, "ws01.corp.local"},
		{HostRecord{SamAccountName: "WS01$", IPv4Address: "10.0.0.5"}, "10.0.0.5"},
		{HostRecord{SamAccountName: "WS01$"}, "WS01"},
		{HostRecord{SamAccountName: "NOMARKER"}, "NOMARKER"},
	}
	for _, tc := range cases {
		if got := tc.host.Target(); got != tc.want {
			t.Errorf("Target(%+v): got %q; want %q", tc.host, got, tc.want)
		}
	}
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := NewTimestamp(time.Date(2024, 3, 1, 12, 30, 45, 999_000_000, loc))

	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"2024-03-01T10:30:45Z"` {
		t.Errorf("got %s; want UTC second precision", data)
	}

	data, err = json.Marshal(Timestamp{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "null" {
		t.Errorf("unknown timestamp: got %s; want null", data)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "Never", false},
		{"2024-03-01T10:30:45Z", "2024-03-01T10:30:45Z", false},
		{"2024-03-01T10:30:45.1234567+00:00", "2024-03-01T10:30:45Z", false},
		{"/Date(1709289045000)/", "2024-03-01T10:30:45Z", false},
		{"not a date", "", true},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseTimestamp(%q): got %s; want %s", tc.in, got, tc.want)
		}
	}
}

func TestTimestamp_DaysSince(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, ok := (Timestamp{}).DaysSince(now); ok {
		t.Error("unknown timestamp must report ok=false")
	}
	d, ok := NewTimestamp(now.AddDate(0, 0, -400)).DaysSince(now)
	if !ok || d != 400 {
		t.Errorf("got (%d, %v); want (400, true)", d, ok)
	}
}

func TestUnreachablePosture(t *testing.T) {
	rec := UnreachablePosture("WS01", "ws01.corp.local", NewTimestamp(time.Now()))
	if rec.State != ProbeUnreachable {
		t.Errorf("state: got %q", rec.State)
	}
	for name, st := range map[string]ProbeStatus{
		"antivirus":  rec.Antivirus.ProbeStatus,
		"encryption": rec.DiskEncryption.ProbeStatus,
		"patch":      rec.PatchService.ProbeStatus,
		"firewall":   rec.Firewall.ProbeStatus,
	} {
		if st.Online {
			t.Errorf("%s: Online must be false", name)
		}
		if st.Error != OfflineError {
			t.Errorf("%s: error %q; want %q", name, st.Error, OfflineError)
		}
	}
}

func TestSnapshot_NormalizeEmptyArrays(t *testing.T) {
	var s Snapshot
	s.Normalize()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, key := range []string{"Users", "ServiceAccounts", "Computers", "ComputerSecurityStatus", "NTLMEvents", "FailedLogons", "Findings", "Recommendations", "DomainControllers", "FineGrainedPasswordPolicies", "TrustRelationships", "CertificateTemplates", "CertificateAuthorities"} {
		if !strings.Contains(out, `"`+key+`":[]`) {
			t.Errorf("key %s not serialised as empty array in %s", key, out)
		}
	}
	if !strings.Contains(out, `"Statistics":{}`) {
		t.Errorf("Statistics not serialised as empty object in %s", out)
	}
}

func TestNewTrustRecord_SIDFiltering(t *testing.T) {
	cases := []struct {
		name      string
		attrs     int
		intra     bool
		filtering bool
		selective bool
	}{
		{"intra-forest", TrustAttrWithinForest, true, false, false},
		{"forest trust", TrustAttrForestTransitive, false, true, false},
		{"forest trust treated as external", TrustAttrForestTransitive | TrustAttrTreatAsExternal, false, false, false},
		{"external quarantined", TrustAttrQuarantinedDomain, false, true, false},
		{"external not quarantined", TrustAttrNonTransitive, false, false, false},
		{"selective authentication", TrustAttrForestTransitive | TrustAttrCrossOrganization, false, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewTrustRecord("partner.com", TrustBidirectional, "Uplevel", tc.attrs)
			if got.IntraForest != tc.intra || got.SIDFilteringEnabled != tc.filtering || got.SelectiveAuthentication != tc.selective {
				t.Errorf("got intra=%v filtering=%v selective=%v", got.IntraForest, got.SIDFilteringEnabled, got.SelectiveAuthentication)
			}
			if got.Attributes != tc.attrs {
				t.Errorf("attributes: got %#x; want %#x", got.Attributes, tc.attrs)
			}
		})
	}
}

func TestTrustDirectionName(t *testing.T) {
	for v, want := range map[int]string{0: TrustDisabled, 1: TrustInbound, 2: TrustOutbound, 3: TrustBidirectional, 9: TrustDisabled} {
		if got := TrustDirectionName(v); got != want {
			t.Errorf("TrustDirectionName(%d) = %q; want %q", v, got, want)
		}
	}
}

func TestParseFunctionalMode(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"Windows2008R2Domain", LevelWindows2008R2, true},
		{"Windows2016Forest", LevelWindows2016, true},
		{"windows2012r2domain", LevelWindows2012R2, true},
		{"Windows2003InterimDomain", LevelWindows2003Interim, true},
		{"Windows2025Domain", LevelWindows2025, true},
		{"UnknownDomain", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseFunctionalMode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseFunctionalMode(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
	if name := FunctionalLevelName(LevelWindows2008R2); name != "Windows2008R2" {
		t.Errorf("FunctionalLevelName: got %q", name)
	}
}

func TestCertificateAuthority_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		ca   CertificateAuthority
		want bool
	}{
		{"past", CertificateAuthority{NotAfter: NewTimestamp(now.Add(-time.Hour))}, true},
		{"future", CertificateAuthority{NotAfter: NewTimestamp(now.Add(time.Hour))}, false},
		{"date wins over flag", CertificateAuthority{NotAfter: NewTimestamp(now.Add(time.Hour)), ExpiredFlag: true}, false},
		{"flag only", CertificateAuthority{ExpiredFlag: true}, true},
		{"nothing known", CertificateAuthority{}, false},
	}
	for _, tc := range cases {
		if got := tc.ca.Expired(now); got != tc.want {
			t.Errorf("%s: got %v; want %v", tc.name, got, tc.want)
		}
	}
}

func TestGroupRecord_Empty(t *testing.T) {
	if (GroupRecord{}).Empty() {
		t.Error("unknown member count reported empty")
	}
	if !(GroupRecord{MemberCount: intPtr(0)}).Empty() {
		t.Error("zero members not reported empty")
	}
	if (GroupRecord{MemberCount: intPtr(3)}).Empty() {
		t.Error("three members reported empty")
	}
}
