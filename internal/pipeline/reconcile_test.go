package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbregistry/internal"
)

func TestReconcileDataTypeFirstWins(t *testing.T) {
	r := NewReconciler(nil)
	records, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withDataType("Insurance/claims data; Other: registry-linked"), withTitle("P1")),
		slot("X", withDataType("Insurance/claims data"), withTitle("P2")),
	})
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, "Insurance/claims data; Other: registry-linked", *rec.DataType)
	assert.Equal(t, 1, *rec.Types.InsuranceClaims)
	assert.Equal(t, 0, *rec.Types.EHR)
	require.NotNil(t, rec.Types.Other)
	assert.Equal(t, "registry-linked", *rec.Types.Other)
	assert.Len(t, rec.Publications, 2)
}

func TestReconcileFirstNonMissing(t *testing.T) {
	r := NewReconciler(nil)
	records, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withContact("a@example.org")),
		slot("X", withCountry("France"), withAvailable(internal.AnswerYes), withLink("https://x.org\nhttps://x.org/data")),
		slot("X", withCountry("Spain"), withOngoing(internal.AnswerNo), withLink("https://x.org")),
	})
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "France", *rec.Country)
	assert.Equal(t, internal.AnswerYes, rec.Availability)
	assert.Equal(t, internal.AnswerNo, rec.Ongoing)
	assert.Equal(t, []string{"https://x.org", "https://x.org/data"}, rec.Links)
	assert.Equal(t, "a@example.org; NA; NA", rec.Contacts)
	assert.Nil(t, rec.DataType)
	assert.Nil(t, rec.Types.EHR)
}

func TestReconcilePublicationsPerRow(t *testing.T) {
	r := NewReconciler(nil)
	records, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withRow("search1", 2)),
		slot("X", withRow("search1", 3)),
		slot("X", withRow("search1", 4)),
	})
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].Count)
	require.Len(t, records[0].Publications, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{records[0].Publications[0].Row, records[0].Publications[1].Row, records[0].Publications[2].Row})

	// Two slots of one row naming the same database are one publication.
	records, _ = r.Reconcile([]internal.SlotRecord{
		slot("Y", withRow("search1", 5), withTitle("P5")),
		slot("Y", withRow("search1", 5), withTitle("P5")),
	})
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Count)
	assert.Len(t, records[0].Publications, 1)
}

func TestMergeKeepsOnePublicationPerTitle(t *testing.T) {
	r := NewReconciler(nil)
	a, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withRow("search1", 2), withTitle("Same paper"), withContact("a@example.org")),
		slot("X", withRow("search1", 3)),
	})
	b, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withRow("search2", 7), withTitle("Same paper"), withContact("a@example.org")),
		slot("X", withRow("search2", 8)),
	})
	merged := Merge(a, b)
	require.Len(t, merged, 1)
	assert.Equal(t, 4, merged[0].Count)
	require.Len(t, merged[0].Publications, 3)
	assert.Equal(t, "search1", merged[0].Publications[0].Source)
	assert.Nil(t, merged[0].Publications[1].Title)
	assert.Equal(t, 8, merged[0].Publications[2].Row)
}

func TestReconcileOtherAnswerStaysMissing(t *testing.T) {
	r := NewReconciler(nil)
	records, _ := r.Reconcile([]internal.SlotRecord{
		slot("X", withAvailable(ParseAnswer(strp("Other: unclear")))),
	})
	require.Len(t, records, 1)
	assert.Equal(t, internal.AnswerUnknown, records[0].Availability)
	assert.Equal(t, 3, records[0].Ongoing.Ongoing())
}

func TestReconcileAvailabilityOverride(t *testing.T) {
	kpsc := "Kaiser Permanente Southern California (KPSC)"
	va := "US Department of Veterans Affairs (VA)"
	r := NewReconciler([]string{kpsc, va, "Gone Database"})

	records, _ := r.Reconcile([]internal.SlotRecord{
		slot(kpsc, withAvailable(internal.AnswerYes)),
		slot(va, withAvailable(internal.AnswerYes)),
		slot("Other DB", withAvailable(internal.AnswerYes)),
	})
	require.Len(t, records, 3)
	assert.Equal(t, internal.AnswerNo, records[0].Availability)
	assert.Equal(t, internal.AnswerNo, records[1].Availability)
	assert.Equal(t, internal.AnswerYes, records[2].Availability)
	assert.Equal(t, []string{"Gone Database"}, r.Unmatched())
}

func TestReconcilePlaceholderBypassesGrouping(t *testing.T) {
	r := NewReconciler(nil)
	records, unidentified := r.Reconcile([]internal.SlotRecord{
		slot(internal.Placeholder, withCountry("USA")),
		slot("X"),
		slot(internal.Placeholder, withCountry("France")),
	})
	require.Len(t, records, 1)
	assert.Equal(t, "X", records[0].Name)
	require.Len(t, unidentified, 2)
	assert.Equal(t, "France", *unidentified[1].Country)
}

func TestReconcileDeterministic(t *testing.T) {
	slots := []internal.SlotRecord{
		slot("A", withCountry("USA"), withTitle("P1")),
		slot("B", withDataType("National registries")),
		slot("A", withCountry("USA"), withTitle("P2"), withLink("https://a.org")),
	}
	first, _ := NewReconciler(nil).Reconcile(slots)
	for i := 0; i < 20; i++ {
		again, _ := NewReconciler(nil).Reconcile(slots)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "A", first[0].Name)
	assert.Equal(t, "B", first[1].Name)
}
