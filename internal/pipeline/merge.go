package pipeline

import (
	"sort"
	"strings"

	"dbregistry/internal"
	"dbregistry/internal/util"
)

// Merge combines the per-source tables into one record per canonical name.
// Counts are summed, links and publications unioned in source order, and
// scalar fields resolved by first non-missing value after a stable sort on
// (country, data type, availability, collection status) with missing last.
func Merge(sources ...[]internal.DatabaseRecord) []internal.DatabaseRecord {
	var all []internal.DatabaseRecord
	for _, src := range sources {
		all = append(all, src...)
	}

	groups := map[string][]internal.DatabaseRecord{}
	var order []string
	for _, rec := range all {
		if _, ok := groups[rec.Name]; !ok {
			order = append(order, rec.Name)
		}
		groups[rec.Name] = append(groups[rec.Name], rec)
	}

	out := make([]internal.DatabaseRecord, 0, len(order))
	for _, name := range order {
		out = append(out, mergeGroup(name, groups[name]))
	}
	SortRecords(out)
	return out
}

func mergeGroup(name string, group []internal.DatabaseRecord) internal.DatabaseRecord {
	if len(group) == 1 {
		return group[0]
	}

	merged := internal.DatabaseRecord{Name: name}
	var links, contacts []string
	for _, rec := range group {
		merged.Count += rec.Count
		links = append(links, rec.Links...)
		if rec.Contacts != "" {
			contacts = append(contacts, rec.Contacts)
		}
		for _, p := range rec.Publications {
			merged.Publications = appendPublication(merged.Publications, p)
		}
	}

	ranked := append([]internal.DatabaseRecord(nil), group...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if c := compareMissingLast(a.Country, b.Country); c != 0 {
			return c < 0
		}
		if c := compareMissingLast(a.DataType, b.DataType); c != 0 {
			return c < 0
		}
		if c := compareAnswer(a.Availability, b.Availability); c != 0 {
			return c < 0
		}
		return compareAnswer(a.Ongoing, b.Ongoing) < 0
	})
	for _, rec := range ranked {
		if merged.Country == nil {
			merged.Country = rec.Country
		}
		if merged.DataType == nil {
			merged.DataType = rec.DataType
		}
		if merged.Availability == internal.AnswerUnknown {
			merged.Availability = rec.Availability
		}
		if merged.Ongoing == internal.AnswerUnknown {
			merged.Ongoing = rec.Ongoing
		}
	}

	merged.Links = dedupe(links)
	merged.Contacts = strings.Join(contacts, ContactSeparator)
	merged.Types = ExpandDataType(merged.DataType)
	return merged
}

// SortRecords orders records by descending count, then name, then data type.
func SortRecords(records []internal.DatabaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return compareMissingLast(a.DataType, b.DataType) < 0
	})
}

func compareMissingLast(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return strings.Compare(*a, *b)
	}
}

func compareAnswer(a, b internal.Answer) int {
	var pa, pb *string
	if a != internal.AnswerUnknown {
		pa = util.StringPtr(string(a))
	}
	if b != internal.AnswerUnknown {
		pb = util.StringPtr(string(b))
	}
	return compareMissingLast(pa, pb)
}
