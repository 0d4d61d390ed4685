package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"dbregistry/internal"
	"dbregistry/internal/config"
	"dbregistry/internal/contacts"
	"dbregistry/internal/rules"
	"dbregistry/internal/storage"
)

const smokeRules = `
canonical:
  - pattern: '^(ni|n/i)$'
    name: NI
  - pattern: '\bkpsc\b|kaiser.*southern'
    name: Kaiser Permanente Southern California (KPSC)
  - pattern: '\btrinetx\b'
    name: TriNetX
  - pattern: 'uk\s*biobank'
    name: UK Biobank
exclusions:
  - UK Biobank
availability_no:
  - Kaiser Permanente Southern California (KPSC)
datatype_overrides:
  - name: TriNetX
    flags: [insurance_claims]
`

var smokeHeader = []string{
	"Title", "Date of publication", "Contact email",
	"Name of database 1", "Link to database 1", "Country of database 1", "Kind of data in database 1",
	"Is database 1 publicly available?", "Is database 1 still collecting data?",
	"Name of database 2", "Link to database 2", "Country of database 2", "Kind of data in database 2",
	"Is database 2 publicly available?", "Is database 2 still collecting data?",
}

func writeCSV(t *testing.T, path string, rows [][]string) {
	t.Helper()
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func writeXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

type smokeFixture struct {
	cfg      config.Config
	sourceA  string
	sourceB  string
	contacts string
	db       *storage.DB
}

func newSmokeFixture(t *testing.T) smokeFixture {
	t.Helper()
	tmp := t.TempDir()
	fx := smokeFixture{
		sourceA:  filepath.Join(tmp, "search1.csv"),
		sourceB:  filepath.Join(tmp, "search2.xlsx"),
		contacts: filepath.Join(tmp, "contacts.csv"),
	}

	writeCSV(t, fx.sourceA, [][]string{
		smokeHeader,
		{"P1", "2020", "a@example.org", "KPSC", "https://kp.org", "USA", "Hospital data (electronic health record)", "Yes", "Yes", "TriNetX", "https://trinetx.com", "USA", "Hospital data (electronic health record)", "Yes", "Yes"},
		{"P2", "2021", "b@example.org", "NI", "", "", "", "", "", "UK Biobank", "", "UK", "", "", ""},
	})
	writeXLSX(t, fx.sourceB, [][]string{
		smokeHeader,
		{"P3", "2022", "c@example.org", "Kaiser Permanente Southern California", "NI", "", "", "Yes", "Other: unclear", "", "", "", "", "", ""},
		{"P4", "2022", "d@example.org", "trinetx", "", "", "", "", "", "", "", "", "", "", ""},
	})
	writeCSV(t, fx.contacts, [][]string{
		{"name", "name_contact_person_db", "email_contact_person_db", "link_contact_form"},
		{"TriNetX", "Jane Roe", "t@example.org", ""},
		{"Orphan DB", "", "o@example.org", ""},
	})

	rulesPath := filepath.Join(tmp, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(smokeRules), 0o644))

	fx.cfg = config.Config{
		SourceALabel:     "search1",
		SourceBLabel:     "search2",
		RulesPath:        rulesPath,
		SuggestThreshold: 0.72,
	}

	db, err := storage.Open(filepath.Join(tmp, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	fx.db = db
	return fx
}

func TestSmokeRunToExports(t *testing.T) {
	fx := newSmokeFixture(t)
	svc := NewProcessingService(fx.db, fx.cfg, zerolog.Nop())

	res, err := svc.Run(context.Background(), RunInput{
		SourceA:       fx.sourceA,
		SourceB:       fx.sourceB,
		Contacts:      contacts.FileSource{Path: fx.contacts},
		ContactsLabel: fx.contacts,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	require.Len(t, res.Entries, 3)
	kpsc, trinetx, orphan := res.Entries[0], res.Entries[1], res.Entries[2]

	assert.Equal(t, "Kaiser Permanente Southern California (KPSC)", kpsc.Name)
	assert.Equal(t, 2, kpsc.Count)
	assert.Equal(t, internal.AnswerNo, kpsc.Availability)
	assert.Equal(t, 1, kpsc.Ongoing)
	assert.Equal(t, []string{"https://kp.org"}, kpsc.Links)
	assert.Nil(t, kpsc.PersonEmail)

	assert.Equal(t, "TriNetX", trinetx.Name)
	assert.Equal(t, 2, trinetx.Count)
	assert.Equal(t, 1, *trinetx.Types.EHR)
	assert.Equal(t, 1, *trinetx.Types.InsuranceClaims)
	assert.Equal(t, "Jane Roe", *trinetx.PersonName)
	assert.Equal(t, "a@example.org; d@example.org", trinetx.Contacts)

	assert.Equal(t, "Orphan DB", orphan.Name)
	assert.Equal(t, 0, orphan.Count)
	assert.Equal(t, 3, orphan.RecordID)

	kinds := map[internal.ConflictKind]int{}
	for _, d := range res.Diagnostics {
		kinds[d.Kind]++
		if d.Kind == internal.DiagUnidentified {
			assert.Equal(t, "search1 row 3 slot 1", d.Detail)
		}
	}
	assert.Equal(t, 1, kinds[internal.DiagUnidentified])
	assert.Equal(t, 1, kinds[internal.DiagMissingContact])
	assert.Equal(t, 1, kinds[internal.DiagOrphanContact])

	run, entries, diagnostics, err := svc.Stored("")
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, internal.RunOK, run.Status)
	assert.Equal(t, 3, run.Counts["entries"])
	require.Len(t, entries, len(res.Entries))
	for i, e := range entries {
		assert.Equal(t, res.Entries[i].Name, e.Name)
		assert.Equal(t, res.Entries[i].Count, e.Count)
		assert.Equal(t, res.Entries[i].Links, e.Links)
		assert.Equal(t, res.Entries[i].Contacts, e.Contacts)
	}
	assert.Len(t, diagnostics, len(res.Diagnostics))

	out := filepath.Join(t.TempDir(), "registry.xlsx")
	require.NoError(t, ExportRegistryToXLSX(entries, diagnostics, out))
	_, err = os.Stat(out)
	require.NoError(t, err)
}

func TestRunNeedsSources(t *testing.T) {
	fx := newSmokeFixture(t)
	svc := NewProcessingService(fx.db, fx.cfg, zerolog.Nop())

	_, err := svc.Run(context.Background(), RunInput{SourceA: fx.sourceA})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search2")
}

func TestRunFallsBackToMailedExport(t *testing.T) {
	fx := newSmokeFixture(t)
	older, err := fx.db.UpsertSource(internal.SourceRow{
		Provider: "imap", MessageID: "<m0@example.org>", ReceivedAt: "2025-12-01T00:00:00Z",
		Filename: "search2.xlsx", Label: "search2", Hash: "h0", Path: filepath.Join(t.TempDir(), "h0.xlsx"),
	})
	require.NoError(t, err)
	other, err := fx.db.UpsertSource(internal.SourceRow{
		Provider: "imap", MessageID: "<m2@example.org>", ReceivedAt: "2025-12-02T00:00:00Z",
		Filename: "export.csv", Hash: "h2", Path: filepath.Join(t.TempDir(), "h2.csv"),
	})
	require.NoError(t, err)
	_, err = fx.db.UpsertSource(internal.SourceRow{
		Provider: "imap", MessageID: "<m1@example.org>", ReceivedAt: "2026-01-01T00:00:00Z",
		Filename: "search2.xlsx", Label: "search2", Hash: "h", Path: fx.sourceB,
	})
	require.NoError(t, err)

	svc := NewProcessingService(fx.db, fx.cfg, zerolog.Nop())
	res, err := svc.Run(context.Background(), RunInput{SourceA: fx.sourceA})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Entries)

	latest, err := fx.db.LatestSource("search2")
	require.NoError(t, err)
	assert.Equal(t, sourceProcessed, latest.Status)

	superseded, err := fx.db.ListSourcesByStatus(sourceSuperseded, 10)
	require.NoError(t, err)
	require.Len(t, superseded, 1)
	assert.Equal(t, older.ID, superseded[0].ID)

	pending, err := fx.db.ListSourcesByStatus(sourceFetched, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].ID)
}

func TestRunStrictConflictIsNotCompleted(t *testing.T) {
	fx := newSmokeFixture(t)
	ctx := context.Background()
	in := RunInput{SourceA: fx.sourceA, SourceB: fx.sourceB}

	good, err := NewProcessingService(fx.db, fx.cfg, zerolog.Nop()).Run(ctx, in)
	require.NoError(t, err)

	writeXLSX(t, fx.sourceB, [][]string{
		smokeHeader,
		{"P3", "2022", "c@example.org", "KPSC", "", "Canada", "", "", "", "", "", "", "", "", ""},
	})
	fx.cfg.StrictConsistency = true
	svc := NewProcessingService(fx.db, fx.cfg, zerolog.Nop())
	bad, err := svc.Run(ctx, in)
	require.ErrorIs(t, err, ErrInconsistentGroup)
	require.NotEmpty(t, bad.RunID)

	run, _, diagnostics, err := svc.Stored(bad.RunID)
	require.NoError(t, err)
	assert.Equal(t, internal.RunInconsistent, run.Status)
	assert.NotEmpty(t, diagnostics)

	_, _, _, err = svc.Completed(bad.RunID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), internal.RunInconsistent)

	run, entries, _, err := svc.Completed("")
	require.NoError(t, err)
	assert.Equal(t, good.RunID, run.ID)
	assert.Len(t, entries, len(good.Entries))
}

func TestBuildStrictConsistency(t *testing.T) {
	r, err := rules.Parse([]byte(smokeRules))
	require.NoError(t, err)
	r.AvailabilityNo = nil
	r.DatatypeOverrides = nil

	p, err := NewPipeline(r, Options{StrictConsistency: true}, zerolog.Nop())
	require.NoError(t, err)

	sources := []Source{{Label: "search1", Rows: []internal.RawRow{
		{RowNo: 2, Slots: []internal.RawSlot{{Index: 1, Name: strp("TriNetX"), Country: strp("USA")}}},
		{RowNo: 3, Slots: []internal.RawSlot{{Index: 1, Name: strp("trinetx"), Country: strp("Canada")}}},
	}}}
	res, err := p.Build(sources, nil)
	require.ErrorIs(t, err, ErrInconsistentGroup)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "country", res.Conflicts[0].Field)

	p, err = NewPipeline(r, Options{}, zerolog.Nop())
	require.NoError(t, err)
	res, err = p.Build(sources, nil)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "USA", *res.Entries[0].Country)
}

func TestBuildAvailabilityDrift(t *testing.T) {
	r, err := rules.Parse([]byte(smokeRules))
	require.NoError(t, err)
	r.DatatypeOverrides = nil

	p, err := NewPipeline(r, Options{}, zerolog.Nop())
	require.NoError(t, err)
	_, err = p.Build([]Source{{Label: "search1", Rows: []internal.RawRow{
		{RowNo: 2, Slots: []internal.RawSlot{{Index: 1, Name: strp("TriNetX")}}},
	}}}, nil)
	require.ErrorIs(t, err, ErrOverrideDrift)
	assert.Contains(t, err.Error(), "availability")
}
