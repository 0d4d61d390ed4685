// Package table reads the spreadsheet-like files the pipeline consumes into
// plain string grids. The first returned row is the header row.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"
)

var ErrNoTable = errors.New("no table found")

var reSpaces = regexp.MustCompile(`\s+`)

func ReadFile(path string) ([][]string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(filepath.Base(path), blob)
}

// Parse dispatches on the file extension of name.
func Parse(name string, blob []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ParseCSV(bytes.NewReader(blob), ',')
	case ".tsv":
		return ParseCSV(bytes.NewReader(blob), '\t')
	case ".xlsx", ".xlsm":
		return ParseXLSX(bytes.NewReader(blob))
	case ".html", ".htm":
		return ParseHTML(bytes.NewReader(blob))
	default:
		return nil, fmt.Errorf("unsupported table file: %s", name)
	}
}

func ParseCSV(r io.Reader, delimiter rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return trimEmpty(rows), nil
}

// ParseXLSX returns the first sheet that has any rows. Cells are read raw, so
// dates come back as Excel serial numbers rather than in the sheet's display format.
func ParseXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		rows = trimEmpty(rows)
		if len(rows) > 0 {
			return rows, nil
		}
	}
	return nil, ErrNoTable
}

// ParseHTML reads the first table with a header and at least one data row, the
// shape a spreadsheet "publish to web" page has.
func ParseHTML(r io.Reader) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var out [][]string
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		rows := tbl.Find("tr")
		if rows.Length() < 2 {
			return true
		}
		grid := make([][]string, 0, rows.Length())
		rows.Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(reSpaces.ReplaceAllString(cell.Text(), " ")))
			})
			grid = append(grid, cells)
		})
		grid = trimEmpty(grid)
		if len(grid) < 2 {
			return true
		}
		out = grid
		return false
	})
	if out == nil {
		return nil, ErrNoTable
	}
	return out, nil
}

func trimEmpty(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Cell returns row[idx] trimmed, or "" when the row is short.
func Cell(row []string, idx int) string {
	if idx >= 0 && idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}
