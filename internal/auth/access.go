package auth

import (
	"pumptrack/internal/entity"
	"strings"
)

// AllPages returns a copy of every page name.
func AllPages() []string {
	return append([]string(nil), entity.Pages...)
}

// NormalizePages keeps known page names in menu order, matching case-insensitively.
func NormalizePages(pages []string) entity.CommaList {
	requested := entity.CommaList(pages)
	out := make(entity.CommaList, 0, len(pages))
	for _, page := range entity.Pages {
		if requested.Contains(page) {
			out = append(out, page)
		}
	}
	return out
}

// CanAccess reports whether a user with role and pageAccess may open page.
// Admins see every page.
func CanAccess(role string, pageAccess entity.CommaList, page string) bool {
	if strings.EqualFold(role, entity.UserRoleAdmin) {
		return true
	}
	return pageAccess.Contains(page)
}
