package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"dbregistry/internal"
	"dbregistry/internal/rules"
	"dbregistry/internal/util"
)

func strp(v string) *string { return util.StringPtr(v) }

func defaultCanonicalizer(t *testing.T) *Canonicalizer {
	t.Helper()
	r, err := rules.Default()
	require.NoError(t, err)
	c, err := NewCanonicalizer(r.Canonical)
	require.NoError(t, err)
	return c
}

type slotOpt func(*internal.SlotRecord)

func withCountry(v string) slotOpt { return func(s *internal.SlotRecord) { s.Country = strp(v) } }
func withDataType(v string) slotOpt { return func(s *internal.SlotRecord) { s.DataType = strp(v) } }
func withLink(v string) slotOpt { return func(s *internal.SlotRecord) { s.Link = strp(v) } }
func withTitle(v string) slotOpt { return func(s *internal.SlotRecord) { s.Title = strp(v) } }
func withContact(v string) slotOpt { return func(s *internal.SlotRecord) { s.Contact = strp(v) } }
func withAvailable(a internal.Answer) slotOpt {
	return func(s *internal.SlotRecord) { s.Availability = a }
}
func withOngoing(a internal.Answer) slotOpt {
	return func(s *internal.SlotRecord) { s.Ongoing = a }
}

func withRow(source string, row int) slotOpt {
	return func(s *internal.SlotRecord) { s.Source, s.RowNo = source, row }
}

// nextRow gives every slot built by slot its own extraction row unless withRow
// says otherwise.
var nextRow = 1

func slot(name string, opts ...slotOpt) internal.SlotRecord {
	nextRow++
	s := internal.SlotRecord{Source: "search1", RowNo: nextRow, Index: 1, Name: name}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
