package pipeline

import (
	"sort"
	"strings"

	"dbregistry/internal"
	"dbregistry/internal/contacts"
	"dbregistry/internal/rules"
	"dbregistry/internal/util"
)

// Enricher turns merged records into the final registry: exclusion, contact
// join, manual corrections, collection status recode and record ids.
type Enricher struct {
	exclusions map[string]struct{}
	datatype   []rules.DatatypeOverride
	values     []rules.ValueOverride
}

func NewEnricher(r rules.Rules) *Enricher {
	return &Enricher{
		exclusions: r.ExclusionSet(),
		datatype:   r.DatatypeOverrides,
		values:     r.ValueOverrides,
	}
}

// Excluded reports whether name is on the exclusion list. Matching is exact
// after trimming.
func (e *Enricher) Excluded(name string) bool {
	_, ok := e.exclusions[strings.TrimSpace(name)]
	return ok
}

func (e *Enricher) Exclude(records []internal.DatabaseRecord) []internal.DatabaseRecord {
	out := make([]internal.DatabaseRecord, 0, len(records))
	for _, rec := range records {
		if !e.Excluded(rec.Name) {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Enricher) ExcludeContacts(rows []internal.ContactRow) []internal.ContactRow {
	out := make([]internal.ContactRow, 0, len(rows))
	for _, c := range rows {
		if !e.Excluded(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// Enrich applies the enrichment steps in order and returns the registry with
// a join report. Corrections naming a database absent from the joined table
// fail with an *OverrideError.
func (e *Enricher) Enrich(records []internal.DatabaseRecord, rows []internal.ContactRow) ([]internal.RegistryEntry, []internal.Diagnostic, error) {
	entries, report := joinContacts(e.Exclude(records), e.ExcludeContacts(rows))

	byName := make(map[string][]int, len(entries))
	for i, entry := range entries {
		byName[entry.Name] = append(byName[entry.Name], i)
	}

	var missing []string
	for _, o := range e.values {
		idx, ok := byName[o.Name]
		if !ok {
			missing = append(missing, o.Name)
			continue
		}
		for _, i := range idx {
			applyValueOverride(&entries[i], o)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &OverrideError{Kind: "value", Names: missing}
	}

	for _, o := range e.datatype {
		idx, ok := byName[o.Name]
		if !ok {
			missing = append(missing, o.Name)
			continue
		}
		for _, i := range idx {
			for _, f := range o.Flags {
				setFlag(&entries[i].Types, f)
			}
		}
	}
	if len(missing) > 0 {
		return nil, nil, &OverrideError{Kind: "datatype", Names: missing}
	}

	for i := range entries {
		coerceFlags(&entries[i].Types)
	}

	sortEntries(entries)
	for i := range entries {
		entries[i].RecordID = i + 1
	}
	return entries, report, nil
}

func joinContacts(records []internal.DatabaseRecord, rows []internal.ContactRow) ([]internal.RegistryEntry, []internal.Diagnostic) {
	index := contacts.BuildIndex(rows)

	var report []internal.Diagnostic
	matched := map[string]bool{}
	entries := make([]internal.RegistryEntry, 0, len(records)+len(index.Names))
	for _, rec := range records {
		entry := internal.RegistryEntry{
			Name:         rec.Name,
			Country:      rec.Country,
			DataType:     rec.DataType,
			Links:        rec.Links,
			Ongoing:      rec.Ongoing.Ongoing(),
			Availability: rec.Availability,
			Count:        rec.Count,
			Contacts:     rec.Contacts,
			Types:        rec.Types,
			Publications: rec.Publications,
		}
		if c, ok := index.Lookup(rec.Name); ok {
			entry.PersonName = c.PersonName
			entry.PersonEmail = c.PersonEmail
			entry.ContactForm = c.ContactForm
			matched[c.Name] = true
		} else {
			report = append(report, internal.Diagnostic{Kind: internal.DiagMissingContact, Name: rec.Name})
		}
		entries = append(entries, entry)
	}

	for _, name := range index.Names {
		if matched[name] {
			continue
		}
		c := index.ByName[name]
		entries = append(entries, internal.RegistryEntry{
			Name:        name,
			PersonName:  c.PersonName,
			PersonEmail: c.PersonEmail,
			ContactForm: c.ContactForm,
			Ongoing:     internal.AnswerUnknown.Ongoing(),
		})
		report = append(report, internal.Diagnostic{Kind: internal.DiagOrphanContact, Name: name})
	}
	return entries, report
}

func applyValueOverride(entry *internal.RegistryEntry, o rules.ValueOverride) {
	value := strings.TrimSpace(o.Value)
	switch o.Field {
	case "country":
		entry.Country = util.Clean(value)
	case "link":
		entry.Links = splitLinks(value)
	case "datatype":
		entry.DataType = util.Clean(value)
		entry.Types = ExpandDataType(entry.DataType)
	}
}

func setFlag(types *internal.DataTypes, name string) {
	switch name {
	case "ehr":
		types.EHR = util.IntPtr(1)
	case "insurance_claims":
		types.InsuranceClaims = util.IntPtr(1)
	case "disease_cohort":
		types.DiseaseCohort = util.IntPtr(1)
	case "national_registry":
		types.NationalRegistry = util.IntPtr(1)
	}
}

func coerceFlags(types *internal.DataTypes) {
	for _, f := range []**int{&types.EHR, &types.InsuranceClaims, &types.DiseaseCohort, &types.NationalRegistry} {
		if *f == nil {
			*f = util.IntPtr(0)
		}
	}
}

func sortEntries(entries []internal.RegistryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return compareMissingLast(a.DataType, b.DataType) < 0
	})
}
