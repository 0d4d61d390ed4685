package pipeline

import (
	"sort"

	"dbregistry/internal"
)

// Reshape expands each publication row into one slot record per named database.
// Slots keep ascending index order within a row and rows keep input order.
// Publication fields are copied onto every slot of the row.
func Reshape(rows []internal.RawRow) []internal.SlotRecord {
	out := make([]internal.SlotRecord, 0, len(rows))
	for _, row := range rows {
		slots := append([]internal.RawSlot(nil), row.Slots...)
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Index < slots[j].Index })

		for _, slot := range slots {
			if slot.Name == nil || *slot.Name == "" {
				continue
			}
			out = append(out, internal.SlotRecord{
				Source:       row.Source,
				RowNo:        row.RowNo,
				Title:        row.Title,
				Published:    row.Published,
				Contact:      row.Contact,
				Extra:        row.Extra,
				Index:        slot.Index,
				Name:         *slot.Name,
				Link:         slot.Link,
				Country:      slot.Country,
				DataType:     slot.DataType,
				Availability: slot.Availability,
				Ongoing:      slot.Ongoing,
			})
		}
	}
	return out
}
