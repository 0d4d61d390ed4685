package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"dbregistry/internal"
	"dbregistry/internal/util"
)

const (
	sheetRegistry    = "registry"
	sheetSummary     = "summary"
	sheetDiagnostics = "diagnostics"
)

var registryBaseHeaders = []string{
	"record_id", "name", "name_contact_person_db", "email_contact_person_db", "link_contact_form",
	"country", "datatype", "link", "ongoing", "available", "n_publications",
	"type_ehr", "type_insurance_claims", "type_disease_cohort", "type_national_registry", "type_other",
	"author_contacts",
}

// RegistryHeaders returns the column names for entries, with one
// pub_title_k/author_contact_k pair per publication slot in use.
func RegistryHeaders(entries []internal.RegistryEntry) []string {
	headers := append([]string(nil), registryBaseHeaders...)
	for k := 1; k <= maxPublications(entries); k++ {
		headers = append(headers, fmt.Sprintf("pub_title_%d", k), fmt.Sprintf("author_contact_%d", k))
	}
	return headers
}

// RegistryRows renders entries as cells aligned with RegistryHeaders. Missing
// values are empty strings.
func RegistryRows(entries []internal.RegistryEntry) [][]any {
	width := maxPublications(entries)
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		row := []any{
			e.RecordID,
			e.Name,
			util.Deref(e.PersonName),
			util.Deref(e.PersonEmail),
			util.Deref(e.ContactForm),
			util.Deref(e.Country),
			util.Deref(e.DataType),
			strings.Join(e.Links, "\n"),
			e.Ongoing,
			string(e.Availability),
			e.Count,
			intCell(e.Types.EHR),
			intCell(e.Types.InsuranceClaims),
			intCell(e.Types.DiseaseCohort),
			intCell(e.Types.NationalRegistry),
			util.Deref(e.Types.Other),
			e.Contacts,
		}
		for k := 0; k < width; k++ {
			if k < len(e.Publications) {
				row = append(row, util.Deref(e.Publications[k].Title), util.Deref(e.Publications[k].Contact))
			} else {
				row = append(row, "", "")
			}
		}
		out = append(out, row)
	}
	return out
}

// RegistryTable is RegistryRows with the header row first, the layout used by
// every export and by the published sheet.
func RegistryTable(entries []internal.RegistryEntry) [][]any {
	return append([][]any{toAny(RegistryHeaders(entries))}, RegistryRows(entries)...)
}

// DiagnosticRows renders diagnostics with a header row.
func DiagnosticRows(diagnostics []internal.Diagnostic) [][]any {
	out := [][]any{{"kind", "name", "field", "values", "detail"}}
	for _, d := range diagnostics {
		out = append(out, []any{string(d.Kind), d.Name, d.Field, strings.Join(d.Values, " | "), d.Detail})
	}
	return out
}

// ExportRegistryToXLSX writes the registry, a summary with a per-country chart
// and the diagnostics into one workbook.
func ExportRegistryToXLSX(entries []internal.RegistryEntry, diagnostics []internal.Diagnostic, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetRegistry); err != nil {
		return err
	}
	if err := writeSheet(f, sheetRegistry, RegistryTable(entries)); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	summary := Summarize(entries, diagnostics)
	if err := writeSummarySheet(f, summary); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetDiagnostics); err != nil {
		return err
	}
	if err := writeSheet(f, sheetDiagnostics, DiagnosticRows(diagnostics)); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// ExportRegistryToCSV writes the registry sheet alone as CSV.
func ExportRegistryToCSV(entries []internal.RegistryEntry, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(RegistryHeaders(entries)); err != nil {
		return err
	}
	for _, row := range RegistryRows(entries) {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = fmt.Sprint(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeSummarySheet(f *excelize.File, s Summary) error {
	rows := [][]any{{"metric", "value"}}
	for _, r := range s.Rows() {
		rows = append(rows, []any{r[0], r[1]})
	}
	if err := writeSheet(f, sheetSummary, rows); err != nil {
		return err
	}

	if len(s.Countries) == 0 {
		return nil
	}
	if err := f.SetSheetRow(sheetSummary, "D1", &[]any{"country", "databases"}); err != nil {
		return err
	}
	for i, c := range s.Countries {
		cell, _ := excelize.CoordinatesToCellName(4, i+2)
		if err := f.SetSheetRow(sheetSummary, cell, &[]any{c.Country, c.Databases}); err != nil {
			return err
		}
	}
	last := len(s.Countries) + 1
	return f.AddChart(sheetSummary, "G2", &excelize.Chart{
		Type: excelize.Bar,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$E$1", sheetSummary),
			Categories: fmt.Sprintf("%s!$D$2:$D$%d", sheetSummary, last),
			Values:     fmt.Sprintf("%s!$E$2:$E$%d", sheetSummary, last),
		}},
		Title:  []excelize.RichTextRun{{Text: "Databases per country"}},
		Legend: excelize.ChartLegend{Position: "none"},
	})
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func maxPublications(entries []internal.RegistryEntry) int {
	n := 0
	for _, e := range entries {
		if len(e.Publications) > n {
			n = len(e.Publications)
		}
	}
	return n
}

func intCell(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
