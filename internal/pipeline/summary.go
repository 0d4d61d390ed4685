package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"dbregistry/internal"
	"dbregistry/internal/util"
)

// CountryCount is one bar of the per-country breakdown.
type CountryCount struct {
	Country   string
	Databases int
}

// NameCount is one database with its number of supporting slot records.
type NameCount struct {
	Name  string
	Count int
}

type Summary struct {
	Databases   int
	Mentions    int
	WithContact int
	Collecting  int
	Stopped     int
	StatusNA    int
	EHR         int
	Claims      int
	Cohort      int
	Registry    int
	OtherType   int
	Countries   []CountryCount
	Top         []NameCount
	Diagnostics map[internal.ConflictKind]int
}

const (
	unknownCountry = "unknown"
	topDatabases   = 10
)

// Summarize expects entries in registry order, most cited first.
func Summarize(entries []internal.RegistryEntry, diagnostics []internal.Diagnostic) Summary {
	s := Summary{Databases: len(entries), Diagnostics: map[internal.ConflictKind]int{}}
	byCountry := map[string]int{}
	for _, e := range entries {
		s.Mentions += e.Count
		if e.PersonEmail != nil || e.ContactForm != nil {
			s.WithContact++
		}
		switch e.Ongoing {
		case 1:
			s.Collecting++
		case 2:
			s.Stopped++
		default:
			s.StatusNA++
		}
		s.EHR += flagValue(e.Types.EHR)
		s.Claims += flagValue(e.Types.InsuranceClaims)
		s.Cohort += flagValue(e.Types.DiseaseCohort)
		s.Registry += flagValue(e.Types.NationalRegistry)
		if e.Types.Other != nil {
			s.OtherType++
		}
		byCountry[util.DerefOr(e.Country, unknownCountry)]++
	}
	for country, n := range byCountry {
		s.Countries = append(s.Countries, CountryCount{Country: country, Databases: n})
	}
	sort.Slice(s.Countries, func(i, j int) bool {
		if s.Countries[i].Databases != s.Countries[j].Databases {
			return s.Countries[i].Databases > s.Countries[j].Databases
		}
		return s.Countries[i].Country < s.Countries[j].Country
	})
	for _, e := range entries {
		if e.Count == 0 || len(s.Top) == topDatabases {
			break
		}
		s.Top = append(s.Top, NameCount{Name: e.Name, Count: e.Count})
	}
	for _, d := range diagnostics {
		s.Diagnostics[d.Kind]++
	}
	return s
}

// Rows lists the summary as metric/value pairs in display order.
func (s Summary) Rows() [][]string {
	rows := [][]string{
		{"databases", strconv.Itoa(s.Databases)},
		{"publication mentions", strconv.Itoa(s.Mentions)},
		{"with contact", strconv.Itoa(s.WithContact)},
		{"collecting", strconv.Itoa(s.Collecting)},
		{"stopped", strconv.Itoa(s.Stopped)},
		{"status unknown", strconv.Itoa(s.StatusNA)},
		{"type ehr", strconv.Itoa(s.EHR)},
		{"type insurance claims", strconv.Itoa(s.Claims)},
		{"type disease cohort", strconv.Itoa(s.Cohort)},
		{"type national registry", strconv.Itoa(s.Registry)},
		{"type other", strconv.Itoa(s.OtherType)},
	}
	kinds := make([]string, 0, len(s.Diagnostics))
	for k := range s.Diagnostics {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, []string{"diagnostics " + k, strconv.Itoa(s.Diagnostics[internal.ConflictKind(k)])})
	}
	return rows
}

// Render writes the summary, the country breakdown and the most cited
// databases as text tables.
func (s Summary) Render(w io.Writer) error {
	metrics := tablewriter.NewTable(w)
	metrics.Header("metric", "value")
	for _, row := range s.Rows() {
		if err := metrics.Append(row[0], row[1]); err != nil {
			return err
		}
	}
	if err := metrics.Render(); err != nil {
		return err
	}

	if len(s.Countries) > 0 {
		fmt.Fprintln(w)
		countries := tablewriter.NewTable(w)
		countries.Header("country", "databases")
		for _, c := range s.Countries {
			if err := countries.Append(c.Country, strconv.Itoa(c.Databases)); err != nil {
				return err
			}
		}
		if err := countries.Render(); err != nil {
			return err
		}
	}

	if len(s.Top) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	top := tablewriter.NewTable(w)
	top.Header("database", "mentions")
	for _, n := range s.Top {
		if err := top.Append(n.Name, strconv.Itoa(n.Count)); err != nil {
			return err
		}
	}
	return top.Render()
}

func flagValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
