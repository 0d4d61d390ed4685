package contacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbregistry/internal"
)

func TestFromTable(t *testing.T) {
	grid := [][]string{
		{"name", "name_contact_person_db", "email_contact_person_db", "link_contact_form"},
		{" TriNetX ", "Jane Roe", "jane@example.org", "NA"},
		{"", "Nobody", "", ""},
		{"Epic Cosmos", "", "", "https://example.org/form"},
	}
	rows, err := FromTable(grid)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "TriNetX", rows[0].Name)
	require.NotNil(t, rows[0].PersonName)
	assert.Equal(t, "Jane Roe", *rows[0].PersonName)
	assert.Nil(t, rows[0].ContactForm)

	assert.Nil(t, rows[1].PersonEmail)
	require.NotNil(t, rows[1].ContactForm)
	assert.Equal(t, "https://example.org/form", *rows[1].ContactForm)
}

func TestFromTableFreeHeaders(t *testing.T) {
	grid := [][]string{
		{"Database", "Contact person", "E-mail", "Access request form"},
		{"N3C", "Help desk", "n3c@example.org", "https://example.org/n3c"},
	}
	rows, err := FromTable(grid)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "N3C", rows[0].Name)
	assert.Equal(t, "Help desk", *rows[0].PersonName)
	assert.Equal(t, "n3c@example.org", *rows[0].PersonEmail)
	assert.Equal(t, "https://example.org/n3c", *rows[0].ContactForm)
}

func TestFromTableWithoutNameColumn(t *testing.T) {
	_, err := FromTable([][]string{{"email"}, {"x@example.org"}})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,email\nTriNetX,t@example.org\n"), 0o644))

	rows, err := Load(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TriNetX", rows[0].Name)
}

func TestIndexFirstWins(t *testing.T) {
	first, second := "first@example.org", "second@example.org"
	idx := BuildIndex([]internal.ContactRow{
		{Name: "TriNetX ", PersonEmail: &first},
		{Name: "TriNetX", PersonEmail: &second},
		{Name: " "},
	})
	assert.Equal(t, []string{"TriNetX"}, idx.Names)
	assert.Equal(t, []string{"TriNetX"}, idx.Duplicates)
	row, ok := idx.Lookup(" TriNetX")
	require.True(t, ok)
	assert.Equal(t, first, *row.PersonEmail)
}
