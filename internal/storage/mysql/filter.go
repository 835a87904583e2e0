package mysql

import (
	"strings"

	"clarus_vitae/internal/domain"
)

// propertyOrder maps the public sort keys onto ORDER BY clauses. id breaks
// ties so OFFSET paging is stable.
var propertyOrder = map[string]string{
	"name":   "p.name ASC, p.id ASC",
	"-name":  "p.name DESC, p.id DESC",
	"price":  "p.price_from IS NULL, p.price_from ASC, p.id ASC",
	"-price": "p.price_from IS NULL, p.price_from DESC, p.id DESC",
}

const defaultPropertyOrder = "p.name ASC, p.id ASC"

// buildPropertiesWhere renders q's filters as a parameterised WHERE clause.
// It returns "" and no args when q has no filters.
func buildPropertiesWhere(q domain.PropertiesQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.Q != nil {
		if term := strings.TrimSpace(*q.Q); term != "" {
			like := "%" + escapeLike(term) + "%"
			conds = append(conds, "(p.name LIKE ? OR p.summary LIKE ? OR p.city LIKE ?)")
			args = append(args, like, like, like)
		}
	}
	if q.Category != nil {
		conds = append(conds, "p.category = ?")
		args = append(args, strings.ToUpper(*q.Category))
	}
	if q.Country != nil {
		conds = append(conds, "p.country = ?")
		args = append(args, *q.Country)
	}
	if q.City != nil {
		conds = append(conds, "p.city = ?")
		args = append(args, *q.City)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func orderClause(sort string) string {
	if o, ok := propertyOrder[sort]; ok {
		return o
	}
	return defaultPropertyOrder
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
