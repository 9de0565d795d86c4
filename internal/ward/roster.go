package ward

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortRoster orders patients by name using locale-aware, case-insensitive
// collation, with room number as the tiebreaker. Patient names come from
// human data entry, so naive byte ordering misplaces accented names.
func SortRoster(patients []Patient) {
	c := collate.New(language.English, collate.IgnoreCase)

	sort.SliceStable(patients, func(i, j int) bool {
		if cmp := c.CompareString(patients[i].Name, patients[j].Name); cmp != 0 {
			return cmp < 0
		}

		return patients[i].Room < patients[j].Room
	})
}

// FilterRoster returns the patients whose name or room contains the
// query, case-insensitively. An empty query returns the input unchanged.
func FilterRoster(patients []Patient, query string) []Patient {
	if query == "" {
		return patients
	}

	query = strings.ToLower(query)

	var out []Patient
	for _, p := range patients {
		if strings.Contains(strings.ToLower(p.Name), query) || strings.Contains(strings.ToLower(p.Room), query) {
			out = append(out, p)
		}
	}

	return out
}
