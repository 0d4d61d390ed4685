// Package contacts loads the externally maintained contact registry: one row
// per database with the person to reach and the access request form.
package contacts

import (
	"context"
	"fmt"
	"strings"

	"dbregistry/internal"
	"dbregistry/internal/table"
	"dbregistry/internal/util"
)

// Source yields the contact registry as a header-first grid.
type Source interface {
	Grid(ctx context.Context) ([][]string, error)
}

type FileSource struct {
	Path string
}

func (s FileSource) Grid(context.Context) ([][]string, error) {
	return table.ReadFile(s.Path)
}

// Load reads src and maps its columns onto contact rows.
func Load(ctx context.Context, src Source) ([]internal.ContactRow, error) {
	grid, err := src.Grid(ctx)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	return FromTable(grid)
}

// FromTable maps a header-first grid onto contact rows. Rows without a
// database name are skipped.
func FromTable(grid [][]string) ([]internal.ContactRow, error) {
	if len(grid) == 0 {
		return nil, nil
	}
	cols := columnsFor(grid[0])
	if cols.name < 0 {
		return nil, fmt.Errorf("contacts: no database name column in %q", strings.Join(grid[0], ", "))
	}

	out := make([]internal.ContactRow, 0, len(grid)-1)
	for _, cells := range grid[1:] {
		name := util.NormalizeSpaces(table.Cell(cells, cols.name))
		if util.IsMissing(name) {
			continue
		}
		out = append(out, internal.ContactRow{
			Name:        name,
			PersonName:  cell(cells, cols.person),
			PersonEmail: cell(cells, cols.email),
			ContactForm: cell(cells, cols.form),
		})
	}
	return out, nil
}

type columns struct {
	name, person, email, form int
}

func columnsFor(headers []string) columns {
	cols := columns{name: -1, person: -1, email: -1, form: -1}
	for i, h := range headers {
		key := util.Fold(strings.ReplaceAll(h, "_", " "))
		switch {
		case key == "":
		case cols.email < 0 && (strings.Contains(key, "email") || strings.Contains(key, "e-mail")):
			cols.email = i
		case cols.form < 0 && strings.Contains(key, "form"):
			cols.form = i
		case cols.person < 0 && (strings.Contains(key, "person") || strings.Contains(key, "contact")):
			cols.person = i
		case cols.name < 0 && (strings.Contains(key, "name") || strings.Contains(key, "database")):
			cols.name = i
		}
	}
	return cols
}

func cell(cells []string, idx int) *string {
	if idx < 0 {
		return nil
	}
	return util.Clean(table.Cell(cells, idx))
}
