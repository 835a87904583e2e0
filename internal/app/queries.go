package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clarus_vitae/internal/domain"
)

type QueryService struct {
	repo     domain.PropertyRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.PropertyRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func propertyKey(slug string) string { return "property:" + slug }

func reviewStatsKey(propertyID string) string { return "review-stats:" + propertyID }

// reviewsGenKey holds the generation of a property's cached review pages.
// Bumping it orphans every page variant at once; orphans age out by TTL.
func reviewsGenKey(propertyID string) string { return "reviews-gen:" + propertyID }

func reviewsKey(propertyID, gen string, limit int, sort string) string {
	return fmt.Sprintf("reviews:%s:%s:%d:%s", propertyID, gen, limit, sort)
}

func reviewsGen(ctx context.Context, c domain.Cache, propertyID string) string {
	var gen string
	if ok, _ := c.Get(ctx, reviewsGenKey(propertyID), &gen); !ok || gen == "" {
		return "0"
	}
	return gen
}

func (s *QueryService) GetProperty(ctx context.Context, slug string) (domain.PropertyView, error) {
	key := propertyKey(slug)
	var pv domain.PropertyView
	if ok, _ := s.cache.Get(ctx, key, &pv); ok {
		return pv, nil
	}
	p, err := s.repo.GetPropertyBySlug(ctx, slug)
	if err != nil {
		return domain.PropertyView{}, err
	}
	_ = s.cache.Set(ctx, key, p, int(s.cacheTTL.Seconds()))
	return p, nil
}

func (s *QueryService) ListProperties(ctx context.Context, q domain.PropertiesQuery) (domain.PropertiesPage, error) {
	return s.repo.ListProperties(ctx, q)
}

func (s *QueryService) ListReviews(ctx context.Context, slug string, pg domain.PageQuery) (domain.ReviewsPage, error) {
	p, err := s.GetProperty(ctx, slug)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	// only first pages are cached; cursor pages are read through
	cacheable := pg.Cursor == nil
	var key string
	var out domain.ReviewsPage
	if cacheable {
		key = reviewsKey(p.ID, reviewsGen(ctx, s.cache, p.ID), pg.Limit, pg.Sort)
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}

	rs, err := s.repo.ListReviews(ctx, p.ID, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy slice to avoid aliasing the repo's backing array
	copyRS := deepCopyReviewsPage(rs)

	if b, _ := json.Marshal(copyRS); cacheable && len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
	}
	return copyRS, nil
}

// GetReviewStats aggregates the approved reviews of the property with slug.
func (s *QueryService) GetReviewStats(ctx context.Context, slug string) (domain.ReviewStatsSummary, error) {
	p, err := s.GetProperty(ctx, slug)
	if err != nil {
		return domain.ReviewStatsSummary{}, err
	}
	return s.statsFor(ctx, p.ID)
}

func (s *QueryService) statsFor(ctx context.Context, propertyID string) (domain.ReviewStatsSummary, error) {
	key := reviewStatsKey(propertyID)
	var sum domain.ReviewStatsSummary
	if ok, _ := s.cache.Get(ctx, key, &sum); ok {
		return sum, nil
	}
	recs, err := s.repo.ListReviewRecords(ctx, propertyID)
	if err != nil {
		return domain.ReviewStatsSummary{}, err
	}
	sum = ComputeReviewStats(recs)
	_ = s.cache.Set(ctx, key, sum, int(s.cacheTTL.Seconds()))
	return sum, nil
}

// Compare builds the side-by-side export for up to MaxComparisonItems slugs,
// in the order given. Unknown slugs are skipped.
func (s *QueryService) Compare(ctx context.Context, slugs []string) ([]domain.ComparedProperty, error) {
	slugs = dedupe(slugs)
	if len(slugs) > domain.MaxComparisonItems {
		slugs = slugs[:domain.MaxComparisonItems]
	}
	if len(slugs) == 0 {
		return []domain.ComparedProperty{}, nil
	}

	props, err := s.repo.GetPropertiesBySlugs(ctx, slugs)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]domain.PropertyView, len(props))
	for _, p := range props {
		bySlug[p.Slug] = p
	}

	out := make([]domain.ComparedProperty, 0, len(slugs))
	for _, slug := range slugs {
		p, ok := bySlug[slug]
		if !ok {
			continue
		}
		stats, err := s.statsFor(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", slug, err)
		}
		cp := domain.ComparedProperty{Property: p, Stats: stats}
		if stats.OutcomeStats != nil {
			cp.GoalAchievementRate = ComputeGoalAchievementRate(*stats.OutcomeStats)
		}
		out = append(out, cp)
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{NextCursor: in.NextCursor}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
