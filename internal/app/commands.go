package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

type IngestionService struct {
	feed  domain.FeedClient
	repo  domain.PropertyRepository
	cache domain.Cache
	now   func() time.Time
}

func NewIngestionService(f domain.FeedClient, r domain.PropertyRepository, cache domain.Cache) *IngestionService {
	return &IngestionService{feed: f, repo: r, cache: cache, now: time.Now}
}

// IngestProperty pulls one property and its latest reviews from the partner
// feed. Missing or forbidden properties are recorded as misses, not errors.
func (s *IngestionService) IngestProperty(ctx context.Context, slug string, reviewCount int) error {
	p, err := s.feed.GetProperty(ctx, slug)
	if err != nil {
		if status, ok := missStatus(err); ok {
			_ = s.repo.LogMiss(ctx, slug, status, "property")
			// Evict any stale caches so we don't keep serving an old snapshot.
			s.invalidateProperty(ctx, slug)
			return nil
		}
		return err
	}

	prop := mapProperty(slug, p)
	if err := s.repo.UpsertProperty(ctx, prop); err != nil {
		return fmt.Errorf("upsert property %s: %w", slug, err)
	}
	s.invalidateProperty(ctx, slug)
	if prop.Slug != slug {
		s.invalidateProperty(ctx, prop.Slug)
	}

	// Reviews are best-effort on 404/401/403; the stats cache is dropped either way.
	revs, rerr := s.feed.GetReviews(ctx, slug, reviewCount)
	if rerr != nil {
		status, ok := missStatus(rerr)
		if !ok {
			return rerr
		}
		_ = s.repo.LogMiss(ctx, slug, status, "reviews")
	} else if mapped := mapReviews(prop.ID, revs); len(mapped) > 0 {
		if err := s.repo.UpsertReviews(ctx, mapped); err != nil {
			return fmt.Errorf("upsert reviews failed for %s: %w", slug, err)
		}
		log.Debug().Str("slug", slug).Int("reviews", len(mapped)).Int("skipped", len(revs)-len(mapped)).Msg("reviews upserted")
	}
	s.invalidateReviews(ctx, prop.ID)
	return nil
}

func missStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return 404, true
	case errors.Is(err, domain.ErrUnauthorized):
		return 403, true
	}
	return 0, false
}

func (s *IngestionService) invalidateProperty(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, propertyKey(slug))
}

// invalidateReviews drops the stats entry and moves review pages to a new
// generation, which covers every limit and sort.
func (s *IngestionService) invalidateReviews(ctx context.Context, propertyID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, reviewStatsKey(propertyID))
	gen := strconv.FormatInt(s.now().UnixNano(), 36)
	if err := s.cache.Set(ctx, reviewsGenKey(propertyID), gen, 0); err != nil {
		log.Warn().Err(err).Str("property", propertyID).Msg("review cache generation bump failed")
	}
}
