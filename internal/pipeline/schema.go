package pipeline

import (
	"regexp"
	"strconv"
	"strings"

	"dbregistry/internal/util"
)

// Canonical slot field tags. A normalized slot header is <tag><slot index>.
const (
	FieldName      = "nameDatabase"
	FieldLink      = "linkDatabase"
	FieldCountry   = "countryDatabase"
	FieldDataType  = "datatypeDatabase"
	FieldAvailable = "availableDatabase"
	FieldOngoing   = "ongoingDatabase"

	FieldTitle   = "title"
	FieldDate    = "date"
	FieldContact = "contact"
)

type headerPattern struct {
	field    string
	keywords []string
}

// Checked in order; the name pattern is the most general and goes last.
var slotPatterns = []headerPattern{
	{field: FieldLink, keywords: []string{"link", "url", "website"}},
	{field: FieldCountry, keywords: []string{"country"}},
	{field: FieldDataType, keywords: []string{"kind of data", "type of data", "data type", "datatype"}},
	{field: FieldAvailable, keywords: []string{"publicly available", "availab", "accessib"}},
	{field: FieldOngoing, keywords: []string{"still collect", "collecting", "collection", "ongoing"}},
	{field: FieldName, keywords: []string{"name"}},
}

// Publication keywords match whole words. Earlier keywords are stronger: a
// later header with a stronger keyword takes the field over.
var publicationPatterns = []headerPattern{
	{field: FieldTitle, keywords: []string{"title"}},
	{field: FieldDate, keywords: []string{"date of publication", "publication date", "published", "date", "year"}},
	{field: FieldContact, keywords: []string{"contact", "corresponding", "email", "e-mail"}},
}

type wordPattern struct {
	field string
	res   []*regexp.Regexp
}

var publicationWords = compileWords(publicationPatterns)

func compileWords(patterns []headerPattern) []wordPattern {
	out := make([]wordPattern, 0, len(patterns))
	for _, p := range patterns {
		wp := wordPattern{field: p.field}
		for _, kw := range p.keywords {
			wp.res = append(wp.res, regexp.MustCompile(`(^|[^a-z0-9])`+regexp.QuoteMeta(kw)+`($|[^a-z0-9])`))
		}
		out = append(out, wp)
	}
	return out
}

var (
	reSlotIndex  = regexp.MustCompile(`\d+`)
	reSlotHeader = regexp.MustCompile(`^(nameDatabase|linkDatabase|countryDatabase|datatypeDatabase|availableDatabase|ongoingDatabase)(\d+)$`)
)

// NormalizeHeaders renames survey-question headers to canonical field names.
// Headers naming a slot field without a slot number fail the whole export;
// headers that mention a database but match no pattern are returned as warnings
// and keep their original text.
func NormalizeHeaders(source string, headers []string) ([]string, []string, error) {
	out := make([]string, len(headers))
	var ambiguous, warnings []string
	type claim struct{ col, rank int }
	taken := map[string]claim{}

	for i, header := range headers {
		out[i] = header
		key := util.Fold(header)
		if key == "" {
			continue
		}

		if strings.Contains(key, "database") {
			field := matchPattern(key, slotPatterns)
			if field == "" {
				warnings = append(warnings, header)
				continue
			}
			idx := reSlotIndex.FindString(key)
			if idx == "" {
				ambiguous = append(ambiguous, header)
				continue
			}
			n, _ := strconv.Atoi(idx)
			out[i] = field + strconv.Itoa(n)
			continue
		}

		field, rank := matchWords(key, publicationWords)
		if field == "" {
			continue
		}
		if prev, ok := taken[field]; ok {
			if rank >= prev.rank {
				continue
			}
			out[prev.col] = headers[prev.col]
		}
		out[i] = field
		taken[field] = claim{col: i, rank: rank}
	}

	if len(ambiguous) > 0 {
		return nil, warnings, &SchemaError{Source: source, Headers: ambiguous}
	}
	return out, warnings, nil
}

// SplitSlotHeader splits a normalized header such as "countryDatabase2".
func SplitSlotHeader(header string) (field string, index int, ok bool) {
	m := reSlotHeader.FindStringSubmatch(header)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return "", 0, false
	}
	return m[1], n, true
}

func matchWords(key string, patterns []wordPattern) (string, int) {
	for _, p := range patterns {
		for rank, re := range p.res {
			if re.MatchString(key) {
				return p.field, rank
			}
		}
	}
	return "", 0
}

func matchPattern(key string, patterns []headerPattern) string {
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if strings.Contains(key, kw) {
				return p.field
			}
		}
	}
	return ""
}
