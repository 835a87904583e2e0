package httpserver

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"clarus_vitae/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxSearchLen    = 100
)

var (
	propertySorts = map[string]bool{"name": true, "-name": true, "price": true, "-price": true}
	reviewSorts   = map[string]bool{"-created_at": true, "created_at": true}
	categoryRe    = regexp.MustCompile(`^[A-Za-z_]{1,32}$`)
)

func parseLimit(v url.Values) (int, error) {
	ls := v.Get("limit")
	if ls == "" {
		return defaultPageSize, nil
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > maxPageSize {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", maxPageSize)
	}
	return l, nil
}

func optional(v url.Values, k string) *string {
	s := strings.TrimSpace(v.Get(k))
	if s == "" {
		return nil
	}
	return &s
}

// parsePropertiesQuery validates the directory filters: q, category, country,
// city, limit, offset and sort.
func parsePropertiesQuery(v url.Values) (domain.PropertiesQuery, error) {
	limit, err := parseLimit(v)
	if err != nil {
		return domain.PropertiesQuery{}, err
	}
	q := domain.PropertiesQuery{
		Q:        optional(v, "q"),
		Category: optional(v, "category"),
		Country:  optional(v, "country"),
		City:     optional(v, "city"),
		Sort:     "name",
		Limit:    limit,
	}
	if q.Q != nil && len(*q.Q) > maxSearchLen {
		return domain.PropertiesQuery{}, fmt.Errorf("q must be at most %d characters", maxSearchLen)
	}
	if q.Category != nil {
		if !categoryRe.MatchString(*q.Category) {
			return domain.PropertiesQuery{}, fmt.Errorf("category must be a single word")
		}
		up := strings.ToUpper(*q.Category)
		q.Category = &up
	}
	if q.Country != nil {
		up := strings.ToUpper(*q.Country)
		q.Country = &up
	}
	if off := v.Get("offset"); off != "" {
		o, err := strconv.Atoi(off)
		if err != nil || o < 0 {
			return domain.PropertiesQuery{}, fmt.Errorf("offset must be a non-negative integer")
		}
		q.Offset = o
	}
	if s := v.Get("sort"); s != "" {
		if !propertySorts[s] {
			return domain.PropertiesQuery{}, fmt.Errorf("sort must be one of name, -name, price, -price")
		}
		q.Sort = s
	}
	return q, nil
}

// parseReviewsPage reads limit, cursor and sort; newest first by default,
// matching the (property_id, status, created_at, id) index.
func parseReviewsPage(v url.Values) (domain.PageQuery, error) {
	limit, err := parseLimit(v)
	if err != nil {
		return domain.PageQuery{}, err
	}
	pg := domain.PageQuery{Limit: limit, Cursor: optional(v, "cursor"), Sort: "-created_at"}
	if s := v.Get("sort"); s != "" {
		if !reviewSorts[s] {
			return domain.PageQuery{}, fmt.Errorf("sort must be -created_at or created_at")
		}
		pg.Sort = s
	}
	return pg, nil
}
