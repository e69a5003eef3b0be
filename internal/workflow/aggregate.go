package workflow

import (
	"math"
	"sort"
	"strings"
)

// Unknown replaces a blank company or district in dashboard grouping.
const Unknown = "Unknown"

// Summary holds the dashboard counters of one (company, district) group.
type Summary struct {
	Company              string `json:"company"`
	District             string `json:"district"`
	TotalBeneficiaries   int    `json:"total_beneficiaries"`
	Sanction             int    `json:"sanction"`
	FoundationDispatch   int    `json:"foundation_dispatch"`
	FoundationComplete   int    `json:"foundation_complete"`
	InstallationDispatch int    `json:"installation_dispatch"`
	InstallationComplete int    `json:"installation_complete"`
	PaymentDone          int    `json:"payment_done"`
}

// Totals are the program-wide figures shown above the group table.
type Totals struct {
	TotalProjects   int     `json:"total_projects"`
	TotalSanctioned int     `json:"total_sanctioned"`
	CompletionRate  float64 `json:"completion_rate"`
}

type groupKey struct {
	company  string
	district string
}

func indexByRegID(rows []StageRow) map[string]StageRow {
	m := make(map[string]StageRow, len(rows))
	for _, r := range rows {
		if r.RegID != "" {
			m[r.RegID] = r
		}
	}
	return m
}

func orUnknown(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return Unknown
}

// Aggregate folds the registry and four stage tables into per-group counters.
// Registry rows with neither company nor district are left out entirely.
func Aggregate(registry []RegistryRow, survey, dispatch, install, payment []StageRow) ([]Summary, Totals) {
	surveyBy := indexByRegID(survey)
	dispatchBy := indexByRegID(dispatch)
	installBy := indexByRegID(install)
	paymentBy := indexByRegID(payment)

	groups := make(map[groupKey]*Summary)
	var totals Totals
	installed := 0

	for _, r := range registry {
		key := groupKey{company: orUnknown(r.IPName), district: orUnknown(r.District)}
		if key.company == Unknown && key.district == Unknown {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &Summary{Company: key.company, District: key.district}
			groups[key] = g
		}
		g.TotalBeneficiaries++
		totals.TotalProjects++

		if s, ok := surveyBy[r.RegID]; ok && IsFilled(s.Actual) {
			g.Sanction++
		}
		if d, ok := dispatchBy[r.RegID]; ok {
			if IsFilled(d.Planned) {
				g.FoundationDispatch++
			}
			if IsFilled(d.Actual) {
				g.FoundationComplete++
			}
		}
		if i, ok := installBy[r.RegID]; ok {
			if IsFilled(i.Planned) {
				g.InstallationDispatch++
			}
			if IsFilled(i.Actual) {
				g.InstallationComplete++
			}
		}
		if p, ok := paymentBy[r.RegID]; ok && IsFilled(p.Actual) {
			g.PaymentDone++
		}
	}

	summaries := make([]Summary, 0, len(groups))
	for _, g := range groups {
		summaries = append(summaries, *g)
		totals.TotalSanctioned += g.Sanction
		installed += g.InstallationComplete
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Company != summaries[j].Company {
			return summaries[i].Company < summaries[j].Company
		}
		return summaries[i].District < summaries[j].District
	})

	if totals.TotalProjects > 0 {
		rate := 100 * float64(installed) / float64(totals.TotalProjects)
		totals.CompletionRate = math.Round(rate*10) / 10
	}
	return summaries, totals
}
