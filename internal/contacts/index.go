package contacts

import (
	"strings"

	"dbregistry/internal"
)

// Index looks contacts up by trimmed database name. The first row for a name wins.
type Index struct {
	ByName     map[string]internal.ContactRow
	Names      []string
	Duplicates []string
}

func BuildIndex(rows []internal.ContactRow) *Index {
	idx := &Index{ByName: make(map[string]internal.ContactRow, len(rows))}
	for _, r := range rows {
		key := strings.TrimSpace(r.Name)
		if key == "" {
			continue
		}
		if _, ok := idx.ByName[key]; ok {
			idx.Duplicates = append(idx.Duplicates, key)
			continue
		}
		r.Name = key
		idx.ByName[key] = r
		idx.Names = append(idx.Names, key)
	}
	return idx
}

func (idx *Index) Lookup(name string) (internal.ContactRow, bool) {
	r, ok := idx.ByName[strings.TrimSpace(name)]
	return r, ok
}
