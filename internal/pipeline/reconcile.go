package pipeline

import (
	"sort"
	"strings"

	"dbregistry/internal"
	"dbregistry/internal/util"
)

// ContactSeparator joins the author contacts of every slot record in a group.
const ContactSeparator = "; "

// Reconciler collapses slot records sharing a canonical name into one
// database record per source.
type Reconciler struct {
	availabilityNo map[string]bool
}

func NewReconciler(availabilityNo []string) *Reconciler {
	r := &Reconciler{availabilityNo: map[string]bool{}}
	for _, name := range availabilityNo {
		r.availabilityNo[strings.TrimSpace(name)] = false
	}
	return r
}

// Reconcile groups slots by name in first-seen order. Country, data type,
// availability and collection status take the first non-missing value; links
// are unioned. Placeholder slots are not merged and come back untouched.
func (r *Reconciler) Reconcile(slots []internal.SlotRecord) ([]internal.DatabaseRecord, []internal.SlotRecord) {
	groups, order := groupSlots(slots)

	records := make([]internal.DatabaseRecord, 0, len(order))
	var unidentified []internal.SlotRecord
	for _, name := range order {
		group := groups[name]
		if name == internal.Placeholder {
			unidentified = append(unidentified, group...)
			continue
		}
		records = append(records, r.reconcileGroup(name, group))
	}
	return records, unidentified
}

// Unmatched lists availability overrides that no reconciled group used so far.
func (r *Reconciler) Unmatched() []string {
	var out []string
	for name, used := range r.availabilityNo {
		if !used {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Reconciler) reconcileGroup(name string, group []internal.SlotRecord) internal.DatabaseRecord {
	rec := internal.DatabaseRecord{Name: name, Count: len(group)}

	contacts := make([]string, 0, len(group))
	var links []string
	for _, s := range group {
		if rec.Country == nil {
			rec.Country = s.Country
		}
		if rec.DataType == nil {
			rec.DataType = s.DataType
		}
		if rec.Availability == internal.AnswerUnknown {
			rec.Availability = s.Availability
		}
		if rec.Ongoing == internal.AnswerUnknown {
			rec.Ongoing = s.Ongoing
		}
		if s.Link != nil {
			links = append(links, splitLinks(*s.Link)...)
		}
		contacts = append(contacts, util.DerefOr(s.Contact, "NA"))
		rec.Publications = appendPublication(rec.Publications, internal.Publication{
			Source:    s.Source,
			Row:       s.RowNo,
			Title:     s.Title,
			Published: s.Published,
			Contact:   s.Contact,
		})
	}

	if _, ok := r.availabilityNo[name]; ok {
		rec.Availability = internal.AnswerNo
		r.availabilityNo[name] = true
	}

	rec.Links = dedupe(links)
	rec.Contacts = strings.Join(contacts, ContactSeparator)
	rec.Types = ExpandDataType(rec.DataType)
	return rec
}

func groupSlots(slots []internal.SlotRecord) (map[string][]internal.SlotRecord, []string) {
	groups := map[string][]internal.SlotRecord{}
	var order []string
	for _, s := range slots {
		if _, ok := groups[s.Name]; !ok {
			order = append(order, s.Name)
		}
		groups[s.Name] = append(groups[s.Name], s)
	}
	return groups, order
}

func splitLinks(value string) []string {
	var out []string
	for _, part := range strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, internal.Placeholder) || util.IsMissing(part) {
			continue
		}
		out = append(out, part)
	}
	return out
}

func dedupe(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// appendPublication adds p unless it is already listed: the same extraction
// row, or a row with the same non-missing title and contact.
func appendPublication(pubs []internal.Publication, p internal.Publication) []internal.Publication {
	for _, existing := range pubs {
		if existing.Source == p.Source && existing.Row == p.Row {
			return pubs
		}
		if p.Title != nil && existing.Title != nil && *existing.Title == *p.Title && util.Deref(existing.Contact) == util.Deref(p.Contact) {
			return pubs
		}
	}
	return append(pubs, p)
}
