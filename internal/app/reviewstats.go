package app

import "clarus_vitae/internal/domain"

// ComputeReviewStats aggregates one property's reviews into the display summary.
// It never mutates its input and never fails: empty input yields a zero count
// with every average and the outcome block left nil.
//
// A record without OverallRating is skipped for the overall average (but still
// counted in TotalReviews). Upstream guarantees the field; callers should not
// rely on this fallback.
func ComputeReviewStats(reviews []domain.ReviewRecord) domain.ReviewStatsSummary {
	out := domain.ReviewStatsSummary{TotalReviews: len(reviews)}
	if len(reviews) == 0 {
		return out
	}

	var overall, service, facilities, dining, value tally
	var outcomes domain.OutcomeStats
	for _, r := range reviews {
		overall.add(r.OverallRating)
		service.add(r.ServiceRating)
		facilities.add(r.FacilitiesRating)
		dining.add(r.DiningRating)
		value.add(r.ValueRating)

		if r.GoalAchievement == nil {
			continue
		}
		switch *r.GoalAchievement {
		case domain.GoalFully:
			outcomes.FullyAchieved++
		case domain.GoalPartially:
			outcomes.PartiallyAchieved++
		case domain.GoalNotAchieved:
			outcomes.NotAchieved++
		default:
			// unknown category counts as absent
			continue
		}
		outcomes.TotalWithOutcomes++
	}

	out.AverageRating = overall.mean()
	out.DimensionAverages = domain.DimensionAverages{
		Service:    service.mean(),
		Facilities: facilities.mean(),
		Dining:     dining.mean(),
		Value:      value.mean(),
	}
	if outcomes.TotalWithOutcomes > 0 {
		out.OutcomeStats = &outcomes
	}
	return out
}

// ComputeGoalAchievementRate weights partial achievement at one half and
// returns an integer percentage, or nil when no review reported an outcome.
func ComputeGoalAchievementRate(o domain.OutcomeStats) *int {
	if o.TotalWithOutcomes <= 0 {
		return nil
	}
	// round(((full + partial*0.5) / total) * 100) in integers
	num := 100 * (2*o.FullyAchieved + o.PartiallyAchieved)
	den := 2 * o.TotalWithOutcomes
	rate := (2*num + den) / (2 * den)
	return &rate
}

// RoundTenth returns sum/n rounded to one decimal place, halves away from zero.
// Integer arithmetic keeps ties such as 4.05 exact. n must be positive.
func RoundTenth(sum, n int) float64 {
	if n <= 0 {
		return 0
	}
	var tenths int
	if sum >= 0 {
		tenths = (20*sum + n) / (2 * n)
	} else {
		tenths = (20*sum - n) / (2 * n)
	}
	return float64(tenths) / 10
}

type tally struct{ sum, n int }

func (t *tally) add(v *int) {
	if v == nil {
		return
	}
	t.sum += *v
	t.n++
}

func (t tally) mean() *float64 {
	if t.n == 0 {
		return nil
	}
	m := RoundTenth(t.sum, t.n)
	return &m
}
