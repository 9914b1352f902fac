package infrastructure

import (
	"testing"

	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

func TestNew_UniqueIDs(t *testing.T) {
	reg := rules.NewDefaultRuleRegistry()
	for _, r := range New() {
		reg.Register(r) // panics on duplicate
	}
	if len(reg.All()) != 11 {
		t.Errorf("rule count: got %d; want 11", len(reg.All()))
	}
}
