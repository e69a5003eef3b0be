package workflow

import (
	"sort"
	"strings"
)

// Filter keeps rows matching the search term and every non-empty facet.
// The search is a case-insensitive substring match against any field value.
func Filter(rows []ViewRow, search string, facets map[string]string) []ViewRow {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]ViewRow, 0, len(rows))
	for _, row := range rows {
		if matchFacets(row, facets) && matchSearch(row, term) {
			out = append(out, row)
		}
	}
	return out
}

func matchFacets(row ViewRow, facets map[string]string) bool {
	for name, want := range facets {
		if want == "" {
			continue
		}
		got, ok := row.Field(name)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func matchSearch(row ViewRow, term string) bool {
	if term == "" {
		return true
	}
	for _, value := range row.Values() {
		if strings.Contains(strings.ToLower(value), term) {
			return true
		}
	}
	return false
}

// FacetOptions lists the distinct, sorted values of each field across rows.
// Placeholders are omitted.
func FacetOptions(rows []ViewRow, fields []string) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, field := range fields {
		seen := make(map[string]struct{})
		values := []string{}
		for _, row := range rows {
			v, ok := row.Field(field)
			if !ok || v == "" || v == Placeholder {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		sort.Strings(values)
		out[field] = values
	}
	return out
}
