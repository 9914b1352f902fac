package version

import (
	"runtime/debug"
	"testing"
)

func TestResolved(t *testing.T) {
	origV, origRead := Version, readBuildInfo
	t.Cleanup(func() { Version, readBuildInfo = origV, origRead })

	cases := []struct {
		name    string
		version string
		main    string
		ok      bool
		want    string
	}{
		{"ldflags win", "v1.4.0", "v1.3.0", true, "v1.4.0"},
		{"module version", "dev", "v1.3.0", true, "v1.3.0"},
		{"devel build", "dev", "(devel)", true, "dev"},
		{"no build info", "dev", "", false, "dev"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Version = tc.version
			readBuildInfo = func() (*debug.BuildInfo, bool) {
				return &debug.BuildInfo{Main: debug.Module{Version: tc.main}}, tc.ok
			}
			if got := Resolved(); got != tc.want {
				t.Errorf("Resolved() = %q; want %q", got, tc.want)
			}
		})
	}
}
