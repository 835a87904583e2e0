package app

import (
	"net/url"
	"strings"

	"clarus_vitae/internal/domain"
)

// ComparisonParam is the query parameter carrying compared slugs.
const ComparisonParam = "properties"

// BuildShareableURL appends ?properties=slug1,slug2 to base, keeping list order.
// Slugs are query-escaped one by one and joined with a literal comma. A slug
// that is empty or contains a comma cannot survive the split on parse and is
// left out.
func BuildShareableURL(base string, items []domain.ComparisonItem) string {
	slugs := make([]string, 0, len(items))
	for _, it := range items {
		if it.PropertySlug == "" || strings.Contains(it.PropertySlug, ",") {
			continue
		}
		slugs = append(slugs, url.QueryEscape(it.PropertySlug))
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + ComparisonParam + "=" + strings.Join(slugs, ",")
}

// ParseComparisonURL extracts the ordered slug list from a shareable URL.
func ParseComparisonURL(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return ParseComparisonParam(u.Query().Get(ComparisonParam))
}

// ParseComparisonParam splits a properties value on commas, dropping empty segments.
func ParseComparisonParam(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
