package pipeline

import (
	"dbregistry/internal"
	"dbregistry/internal/util"
)

// Conflict is a canonical group whose rows disagree on a field that should be
// constant for one real database.
type Conflict struct {
	Name   string
	Field  string
	Values []string
}

// CheckConsistency counts distinct non-missing values per group for country,
// data type and collection status. Availability is left out: it is settled by
// the availability overrides. The placeholder group is skipped.
func CheckConsistency(slots []internal.SlotRecord) []Conflict {
	groups, order := groupSlots(slots)

	var out []Conflict
	for _, name := range order {
		if name == internal.Placeholder {
			continue
		}
		group := groups[name]
		fields := []struct {
			field string
			get   func(internal.SlotRecord) string
		}{
			{"country", func(s internal.SlotRecord) string { return util.Deref(s.Country) }},
			{"datatype", func(s internal.SlotRecord) string { return util.Deref(s.DataType) }},
			{"ongoing", func(s internal.SlotRecord) string { return string(s.Ongoing) }},
		}
		for _, f := range fields {
			var values []string
			for _, s := range group {
				values = append(values, f.get(s))
			}
			if distinct := distinctNonEmpty(values); len(distinct) > 1 {
				out = append(out, Conflict{Name: name, Field: f.field, Values: distinct})
			}
		}
	}
	return out
}

func distinctNonEmpty(values []string) []string {
	var nonEmpty []string
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	return dedupe(nonEmpty)
}

