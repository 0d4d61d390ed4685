package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	buf := bytes.NewBuffer(nil)
	_, err := f.WriteTo(buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseCSV(t *testing.T) {
	src := "\ufeffTitle,Name of database 1\n\n\"A, study\",KPSC\n,\n"
	rows, err := ParseCSV(strings.NewReader(src), ',')
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Title", rows[0][0])
	assert.Equal(t, []string{"A, study", "KPSC"}, rows[1])
}

func TestParseXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"name", "email_contact_person_db"},
		{"TriNetX", "data@trinetx.example"},
	})
	rows, err := Parse("contacts.xlsx", blob)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "TriNetX", rows[1][0])
}

func TestParseHTML(t *testing.T) {
	html := `<html><body>
<table><tr><td>only one row</td></tr></table>
<table>
 <tr><th>name</th><th>name_contact_person_db</th></tr>
 <tr><td> Epic   Cosmos </td><td>Jane Roe</td></tr>
</table></body></html>`
	rows, err := ParseHTML(strings.NewReader(html))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Epic Cosmos", "Jane Roe"}, rows[1])

	_, err = ParseHTML(strings.NewReader("<p>nothing</p>"))
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestReadFileUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestCell(t *testing.T) {
	row := []string{" a ", "b"}
	assert.Equal(t, "a", Cell(row, 0))
	assert.Equal(t, "", Cell(row, 5))
	assert.Equal(t, "", Cell(row, -1))
}
