// Package rules holds the static curation data of the registry: canonical
// name rules, the exclusion list and the manual corrections found on review.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed default.yaml
var defaultRules []byte

type CanonicalRule struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

type DatatypeOverride struct {
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

type ValueOverride struct {
	Name  string `yaml:"name"`
	Field string `yaml:"field"`
	Value string `yaml:"value"`
}

type Rules struct {
	Canonical         []CanonicalRule    `yaml:"canonical"`
	Exclusions        []string           `yaml:"exclusions"`
	AvailabilityNo    []string           `yaml:"availability_no"`
	DatatypeOverrides []DatatypeOverride `yaml:"datatype_overrides"`
	ValueOverrides    []ValueOverride    `yaml:"value_overrides"`
}

var (
	knownFlags  = map[string]struct{}{"ehr": {}, "insurance_claims": {}, "disease_cohort": {}, "national_registry": {}}
	knownFields = map[string]struct{}{"country": {}, "link": {}, "datatype": {}}
)

// Default returns the rules compiled into the binary.
func Default() (Rules, error) {
	return Parse(defaultRules)
}

// Load reads rules from path, or the embedded defaults when path is empty.
func Load(path string) (Rules, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	return Parse(blob)
}

func Parse(blob []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(blob, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	for i := range r.Exclusions {
		r.Exclusions[i] = strings.TrimSpace(r.Exclusions[i])
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r, nil
}

// Validate checks the rule file for structural mistakes. Collisions between
// canonical rules are checked by the canonicalizer itself.
func (r Rules) Validate() error {
	if len(r.Canonical) == 0 {
		return fmt.Errorf("rules: no canonical rules")
	}
	seen := map[string]int{}
	for i, rule := range r.Canonical {
		if strings.TrimSpace(rule.Pattern) == "" || strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("rules: canonical rule %d needs pattern and name", i+1)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("rules: canonical rule %d: %w", i+1, err)
		}
		if prev, ok := seen[rule.Name]; ok {
			return fmt.Errorf("rules: canonical name %q defined by rules %d and %d", rule.Name, prev, i+1)
		}
		seen[rule.Name] = i + 1
	}
	for _, o := range r.DatatypeOverrides {
		for _, flag := range o.Flags {
			if _, ok := knownFlags[flag]; !ok {
				return fmt.Errorf("rules: datatype override %q: unknown flag %q", o.Name, flag)
			}
		}
	}
	for _, o := range r.ValueOverrides {
		if _, ok := knownFields[o.Field]; !ok {
			return fmt.Errorf("rules: value override %q: unknown field %q", o.Name, o.Field)
		}
	}
	return nil
}

func (r Rules) ExclusionSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Exclusions))
	for _, name := range r.Exclusions {
		out[name] = struct{}{}
	}
	return out
}
