package pipeline

import (
	"fmt"
	"regexp"

	"dbregistry/internal"
	"dbregistry/internal/rules"
	"dbregistry/internal/util"
)

type nameRule struct {
	re   *regexp.Regexp
	name string
}

// Canonicalizer maps free-text database names to one display name per real
// database. Rules run top to bottom against the folded name; the first match wins.
type Canonicalizer struct {
	rules []nameRule
}

// NewCanonicalizer compiles the rules and rejects a rule set in which some
// canonical name would be rewritten by an earlier rule, since that breaks
// canon(canon(x)) == canon(x).
func NewCanonicalizer(defs []rules.CanonicalRule) (*Canonicalizer, error) {
	c := &Canonicalizer{rules: make([]nameRule, 0, len(defs))}
	for i, d := range defs {
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("canonical rule %d: %w", i+1, err)
		}
		c.rules = append(c.rules, nameRule{re: re, name: d.Name})
	}
	for _, r := range c.rules {
		if got := c.Canonicalize(r.name); got != r.name {
			return nil, fmt.Errorf("canonical name %q is captured by the rule for %q", r.name, got)
		}
	}
	return c, nil
}

func (c *Canonicalizer) Canonicalize(name string) string {
	trimmed := util.NormalizeSpaces(name)
	if trimmed == "" {
		return ""
	}
	key := util.Fold(trimmed)
	for _, r := range c.rules {
		if r.re.MatchString(key) {
			return r.name
		}
	}
	return trimmed
}

// Apply returns copies of rows with every slot name canonicalized.
func (c *Canonicalizer) Apply(rows []internal.RawRow) []internal.RawRow {
	out := make([]internal.RawRow, len(rows))
	for i, row := range rows {
		slots := make([]internal.RawSlot, len(row.Slots))
		for j, slot := range row.Slots {
			if slot.Name != nil {
				if name := c.Canonicalize(*slot.Name); name != "" {
					slot.Name = &name
				} else {
					slot.Name = nil
				}
			}
			slots[j] = slot
		}
		row.Slots = slots
		out[i] = row
	}
	return out
}
