package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"dbregistry/internal"
	"dbregistry/internal/table"
	"dbregistry/internal/util"
)

// ReadExport loads one screening-tool export (.csv or .xlsx) as raw rows.
func ReadExport(path, source string, log zerolog.Logger) ([]internal.RawRow, error) {
	grid, err := table.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	return RowsFromTable(source, grid, log)
}

// ParseExport is ReadExport for content already in memory, such as a mail attachment.
func ParseExport(filename string, blob []byte, source string, log zerolog.Logger) ([]internal.RawRow, error) {
	grid, err := table.Parse(filename, blob)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", filename, err)
	}
	return RowsFromTable(source, grid, log)
}

// RowsFromTable converts a header-first grid into raw rows. Sentinel spellings
// are turned into missing values here so later stages only see nil.
func RowsFromTable(source string, grid [][]string, log zerolog.Logger) ([]internal.RawRow, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("%s: empty export", source)
	}

	headers, warnings, err := NormalizeHeaders(source, grid[0])
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn().Str("source", source).Str("header", w).Msg("database column matches no known question")
	}

	pubCols := map[string]int{}
	slotCols := map[int]map[string]int{}
	extraCols := map[int]string{}
	for col, h := range headers {
		if field, idx, ok := SplitSlotHeader(h); ok {
			if slotCols[idx] == nil {
				slotCols[idx] = map[string]int{}
			}
			if _, dup := slotCols[idx][field]; dup {
				log.Warn().Str("source", source).Str("header", grid[0][col]).Msg("duplicate slot column ignored")
				continue
			}
			slotCols[idx][field] = col
			continue
		}
		switch h {
		case FieldTitle, FieldDate, FieldContact:
			pubCols[h] = col
		default:
			extraCols[col] = strings.TrimSpace(h)
		}
	}
	if len(slotCols) == 0 {
		return nil, fmt.Errorf("%s: no database columns found: %w", source, ErrSchemaMismatch)
	}

	indices := make([]int, 0, len(slotCols))
	for idx, cols := range slotCols {
		if _, ok := cols[FieldName]; !ok {
			return nil, &SchemaError{Source: source, Headers: []string{fmt.Sprintf("slot %d has no name column", idx)}}
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]internal.RawRow, 0, len(grid)-1)
	for i, cells := range grid[1:] {
		rowNo := i + 2
		row := internal.RawRow{
			Source:  source,
			RowNo:   rowNo,
			Title:   fieldCell(cells, pubCols, FieldTitle),
			Contact: fieldCell(cells, pubCols, FieldContact),
			Extra:   map[string]string{},
		}
		if dateText := fieldCell(cells, pubCols, FieldDate); dateText != nil {
			published, err := util.ParseDate(*dateText)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", source, rowNo, err)
			}
			row.Published = published
		}
		for col, name := range extraCols {
			if v := table.Cell(cells, col); v != "" {
				row.Extra[name] = v
			}
		}

		for _, idx := range indices {
			cols := slotCols[idx]
			row.Slots = append(row.Slots, internal.RawSlot{
				Index:        idx,
				Name:         fieldCell(cells, cols, FieldName),
				Link:         cleanLink(fieldCell(cells, cols, FieldLink)),
				Country:      fieldCell(cells, cols, FieldCountry),
				DataType:     fieldCell(cells, cols, FieldDataType),
				Availability: ParseAnswer(fieldCell(cells, cols, FieldAvailable)),
				Ongoing:      ParseAnswer(fieldCell(cells, cols, FieldOngoing)),
			})
		}
		out = append(out, row)
	}

	log.Debug().Str("source", source).Int("rows", len(out)).Int("slots", len(indices)).Msg("export loaded")
	return out, nil
}

// ParseAnswer reduces a yes/no question to Yes, No or unknown. The extraction
// tool writes "Other: ..." when the reviewer had nothing to report; that and any
// other free text count as unknown.
func ParseAnswer(value *string) internal.Answer {
	if value == nil {
		return internal.AnswerUnknown
	}
	key := util.Fold(*value)
	if strings.HasPrefix(key, "other") {
		return internal.AnswerUnknown
	}
	first := strings.Trim(strings.SplitN(key, " ", 2)[0], ".,;:!()")
	switch first {
	case "yes", "y":
		return internal.AnswerYes
	case "no", "n":
		return internal.AnswerNo
	default:
		return internal.AnswerUnknown
	}
}

func cleanLink(v *string) *string {
	if v == nil || strings.EqualFold(*v, internal.Placeholder) {
		return nil
	}
	return v
}

func fieldCell(cells []string, cols map[string]int, field string) *string {
	col, ok := cols[field]
	if !ok {
		return nil
	}
	return util.Clean(table.Cell(cells, col))
}
