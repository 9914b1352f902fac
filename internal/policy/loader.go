package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedVersion is returned when a policy file is not version 1.
var ErrUnsupportedVersion = errors.New("unsupported policy version")

// LoadPolicy reads an adp.yaml policy. Unknown keys are rejected so a
// misspelt rule option does not silently do nothing. The returned config has
// non-nil maps.
func LoadPolicy(path string) (*PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg PolicyConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if cfg.Version != 1 {
		return nil, fmt.Errorf("%s: %w %d", path, ErrUnsupportedVersion, cfg.Version)
	}

	if cfg.Domains == nil {
		cfg.Domains = make(map[string]DomainConfig)
	}
	if cfg.Rules == nil {
		cfg.Rules = make(map[string]RuleConfig)
	}
	if cfg.Enforcement == nil {
		cfg.Enforcement = make(map[string]EnforcementConfig)
	}
	return &cfg, nil
}

// LoadOptional loads path when it exists. A missing file yields (nil, nil) so
// callers can treat the default adp.yaml as optional.
func LoadOptional(path string) (*PolicyConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return LoadPolicy(path)
}
