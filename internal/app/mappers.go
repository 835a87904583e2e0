package app

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

/********** alias registries (single source of truth) **********/

var propertyAliases = map[string][]string{
	"id":       {"id", "property_id", "propertyId", "uuid"},
	"slug":     {"slug", "handle", "url_slug"},
	"name":     {"name", "title", "property_name", "propertyName"},
	"category": {"category", "type", "property_type", "propertyType"},
	"country":  {"address.country", "location.country", "country", "countryCode", "country_code"},
	"city":     {"address.city", "location.city", "city", "locality"},
	"summary":  {"summary", "short_description", "shortDescription", "tagline", "description"},
}

var reviewAliases = map[string][]string{
	"source_id":  {"id", "review_id", "reviewId"},
	"author":     {"author", "author.name", "name", "reviewer", "reviewer.name"},
	"title":      {"title", "headline", "summary"},
	"text":       {"text", "body", "content", "comment", "review"},
	"status":     {"status", "moderation.status"},
	"created_at": {"created_at", "createdAt", "date", "published_at", "stay_date"},
	"goal":       {"goal_achievement", "goalAchievement", "outcome.goal", "outcome", "goals_met"},
}

var ratingAliases = map[string][]string{
	"overall":    {"overall_rating", "overallRating", "ratings.overall", "rating", "score"},
	"service":    {"service_rating", "serviceRating", "ratings.service"},
	"facilities": {"facilities_rating", "facilitiesRating", "ratings.facilities"},
	"dining":     {"dining_rating", "diningRating", "ratings.dining", "ratings.food"},
	"value":      {"value_rating", "valueRating", "ratings.value"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the string (or integral number) at path, or "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) *string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return &s
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// getIntFlexible: number from several paths (float64/int/string like "4,0").
func getIntFlexible(m map[string]any, paths ...string) *int {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			x := int(v + 0.5)
			return &x
		case int:
			x := v
			return &x
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				x := int(f + 0.5)
				return &x
			}
		}
	}
	return nil
}

// rating keeps values on the 1–5 scale and drops anything else.
func rating(m map[string]any, key string) *int {
	v := getIntFlexible(m, ratingAliases[key]...)
	if v == nil || *v < 1 || *v > 5 {
		return nil
	}
	return v
}

// firstSliceStrings: accept []any with either strings or {url/src}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if t != "" {
						out = append(out, t)
					}
				case map[string]any:
					if u, ok := t["url"].(string); ok && u != "" {
						out = append(out, u)
						continue
					}
					if u, ok := t["src"].(string); ok && u != "" {
						out = append(out, u)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// parseGoal maps free-form outcome labels onto the three categories.
func parseGoal(s string) *domain.GoalAchievement {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	var g domain.GoalAchievement
	switch norm {
	case "FULLY", "FULLY_ACHIEVED", "YES":
		g = domain.GoalFully
	case "PARTIALLY", "PARTIALLY_ACHIEVED", "PARTLY", "SOMEWHAT":
		g = domain.GoalPartially
	case "NOT_ACHIEVED", "NOT", "NO", "NONE":
		g = domain.GoalNotAchieved
	default:
		return nil
	}
	return &g
}

func parseTime(s string) *time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func stableID(prefix string, parts ...string) string {
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return prefix + hex.EncodeToString(sum[:])[:16]
}

/********** property mapper **********/

func mapProperty(slug string, p map[string]any) domain.Property {
	out := domain.Property{
		Slug:     slug,
		Category: firstNonEmptyAlias(p, propertyAliases, "category"),
		Country:  firstNonEmptyAlias(p, propertyAliases, "country"),
		City:     firstNonEmptyAlias(p, propertyAliases, "city"),
		Summary:  firstNonEmptyAlias(p, propertyAliases, "summary"),
		Images:   firstSliceStrings(p, "images", "photos", "gallery"),
	}
	if s := firstNonEmptyAlias(p, propertyAliases, "slug"); s != nil {
		out.Slug = *s
	}
	if s := firstNonEmptyAlias(p, propertyAliases, "id"); s != nil {
		out.ID = *s
	} else {
		out.ID = stableID("feed-", out.Slug)
	}
	out.Name = deref(firstNonEmptyAlias(p, propertyAliases, "name"))
	if out.Name == "" {
		out.Name = out.Slug
	}
	if out.Category != nil {
		c := strings.ToUpper(*out.Category)
		out.Category = &c
	}
	if v := getIntFlexible(p, "price_from", "priceFrom", "pricing.from", "min_price"); v != nil && *v >= 0 {
		out.PriceFrom = v
	}

	raw, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("context", "mapProperty").Msg("failed to marshal property to JSON")
	}
	out.RawJSON = raw
	return out
}

/********** reviews mapper **********/

// mapReviews drops entries without a usable overall rating; every stored
// review must carry one.
func mapReviews(propertyID string, in []map[string]any) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, r := range in {
		overall := rating(r, "overall")
		if overall == nil {
			log.Debug().Str("property", propertyID).Msg("skipping review without overall rating")
			continue
		}

		rv := domain.Review{
			PropertyID: propertyID,
			Author:     firstNonEmptyAlias(r, reviewAliases, "author"),
			Title:      firstNonEmptyAlias(r, reviewAliases, "title"),
			Text:       firstNonEmptyAlias(r, reviewAliases, "text"),
			Status:     domain.ReviewApproved,
			ReviewRecord: domain.ReviewRecord{
				OverallRating:    overall,
				ServiceRating:    rating(r, "service"),
				FacilitiesRating: rating(r, "facilities"),
				DiningRating:     rating(r, "dining"),
				ValueRating:      rating(r, "value"),
			},
		}
		if g := firstNonEmptyAlias(r, reviewAliases, "goal"); g != nil {
			rv.GoalAchievement = parseGoal(*g)
		}
		if st := firstNonEmptyAlias(r, reviewAliases, "status"); st != nil {
			switch s := domain.ReviewStatus(strings.ToUpper(*st)); s {
			case domain.ReviewPending, domain.ReviewApproved, domain.ReviewRejected:
				rv.Status = s
			}
		}
		if ts := firstNonEmptyAlias(r, reviewAliases, "created_at"); ts != nil {
			rv.CreatedAt = parseTime(*ts)
		}

		// SourceID → prefer explicit; else synthesize stable hash.
		if s := firstNonEmptyAlias(r, reviewAliases, "source_id"); s != nil {
			rv.SourceID = s
		} else {
			id := stableID("", deref(rv.Author), deref(rv.Title), deref(rv.Text), strconv.Itoa(*overall))
			rv.SourceID = &id
		}

		if raw, err := json.Marshal(r); err == nil {
			rv.RawJSON = raw
		} else {
			log.Error().Err(err).Str("context", "mapReviews").Msg("marshal review failed")
		}
		out = append(out, rv)
	}
	return out
}
