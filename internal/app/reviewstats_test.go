package app_test

import (
	"reflect"
	"testing"

	"clarus_vitae/internal/app"
	"clarus_vitae/internal/domain"
)

func goal(g domain.GoalAchievement) *domain.GoalAchievement { return &g }

func overallOnly(vals ...int) []domain.ReviewRecord {
	out := make([]domain.ReviewRecord, 0, len(vals))
	for _, v := range vals {
		out = append(out, domain.ReviewRecord{OverallRating: ptr(v)})
	}
	return out
}

func fval(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func TestComputeReviewStats_Empty(t *testing.T) {
	for _, in := range [][]domain.ReviewRecord{nil, {}} {
		got := app.ComputeReviewStats(in)
		if got.TotalReviews != 0 || got.AverageRating != nil || got.OutcomeStats != nil {
			t.Fatalf("unexpected summary: %+v", got)
		}
		d := got.DimensionAverages
		if d.Service != nil || d.Facilities != nil || d.Dining != nil || d.Value != nil {
			t.Fatalf("expected nil dimensions, got %+v", d)
		}
	}
}

func TestComputeReviewStats_Average(t *testing.T) {
	cases := []struct {
		vals []int
		want float64
	}{
		{[]int{5, 4, 3, 4}, 4.0},
		{[]int{5, 5, 4}, 4.7},
		{[]int{1}, 1.0},
		{[]int{4, 5}, 4.5},
	}
	for _, c := range cases {
		got := app.ComputeReviewStats(overallOnly(c.vals...))
		if got.AverageRating == nil || *got.AverageRating != c.want {
			t.Fatalf("%v: want %v, got %v", c.vals, c.want, fval(got.AverageRating))
		}
		if got.TotalReviews != len(c.vals) {
			t.Fatalf("%v: total %d", c.vals, got.TotalReviews)
		}
	}
}

func TestRoundTenth_HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		sum, n int
		want   float64
	}{
		{81, 20, 4.1}, // 4.05
		{79, 20, 4.0}, // 3.95
		{14, 3, 4.7},  // 4.666…
		{13, 3, 4.3},  // 4.333…
		{-81, 20, -4.1},
		{0, 5, 0},
		{3, 0, 0},
	}
	for _, c := range cases {
		if got := app.RoundTenth(c.sum, c.n); got != c.want {
			t.Fatalf("RoundTenth(%d,%d) = %v, want %v", c.sum, c.n, got, c.want)
		}
	}
}

func TestComputeReviewStats_PartialDimensions(t *testing.T) {
	in := []domain.ReviewRecord{
		{OverallRating: ptr(5), ServiceRating: ptr(4)},
		{OverallRating: ptr(4), ServiceRating: ptr(5), ValueRating: ptr(3)},
		{OverallRating: ptr(3)},
	}
	got := app.ComputeReviewStats(in)
	if got.DimensionAverages.Service == nil || *got.DimensionAverages.Service != 4.5 {
		t.Fatalf("service: want 4.5, got %v", fval(got.DimensionAverages.Service))
	}
	if got.DimensionAverages.Value == nil || *got.DimensionAverages.Value != 3.0 {
		t.Fatalf("value: want 3.0, got %v", fval(got.DimensionAverages.Value))
	}
	// zero dining ratings means no data, not a zero rating
	if got.DimensionAverages.Dining != nil || got.DimensionAverages.Facilities != nil {
		t.Fatalf("expected nil dining/facilities, got %+v", got.DimensionAverages)
	}
}

func TestComputeReviewStats_OutcomePartition(t *testing.T) {
	in := []domain.ReviewRecord{
		{OverallRating: ptr(5), GoalAchievement: goal(domain.GoalFully)},
		{OverallRating: ptr(4), GoalAchievement: goal(domain.GoalFully)},
		{OverallRating: ptr(3), GoalAchievement: goal(domain.GoalPartially)},
		{OverallRating: ptr(2), GoalAchievement: goal(domain.GoalNotAchieved)},
		{OverallRating: ptr(4), GoalAchievement: goal("SOMEWHAT")},
		{OverallRating: ptr(4)},
	}
	got := app.ComputeReviewStats(in)
	o := got.OutcomeStats
	if o == nil {
		t.Fatalf("expected outcome stats")
	}
	want := domain.OutcomeStats{TotalWithOutcomes: 4, FullyAchieved: 2, PartiallyAchieved: 1, NotAchieved: 1}
	if *o != want {
		t.Fatalf("want %+v, got %+v", want, *o)
	}
	if o.FullyAchieved+o.PartiallyAchieved+o.NotAchieved != o.TotalWithOutcomes {
		t.Fatalf("partition broken: %+v", *o)
	}
	if o.TotalWithOutcomes > got.TotalReviews {
		t.Fatalf("more outcomes than reviews: %+v", got)
	}
}

func TestComputeReviewStats_NoOutcomes(t *testing.T) {
	got := app.ComputeReviewStats(overallOnly(3, 4))
	if got.OutcomeStats != nil {
		t.Fatalf("expected nil outcome stats, got %+v", *got.OutcomeStats)
	}
}

func TestComputeReviewStats_MissingOverallIsSkipped(t *testing.T) {
	in := []domain.ReviewRecord{
		{OverallRating: ptr(5)},
		{ServiceRating: ptr(2)},
		{OverallRating: ptr(4)},
	}
	got := app.ComputeReviewStats(in)
	if got.TotalReviews != 3 {
		t.Fatalf("total: %d", got.TotalReviews)
	}
	if got.AverageRating == nil || *got.AverageRating != 4.5 {
		t.Fatalf("want 4.5, got %v", fval(got.AverageRating))
	}

	none := app.ComputeReviewStats([]domain.ReviewRecord{{ServiceRating: ptr(3)}})
	if none.AverageRating != nil {
		t.Fatalf("expected nil average, got %v", *none.AverageRating)
	}
}

func TestComputeReviewStats_PureAndRepeatable(t *testing.T) {
	in := []domain.ReviewRecord{
		{OverallRating: ptr(5), ServiceRating: ptr(5), GoalAchievement: goal(domain.GoalFully)},
		{OverallRating: ptr(2), DiningRating: ptr(1)},
	}
	snapshot := make([]domain.ReviewRecord, len(in))
	copy(snapshot, in)

	a := app.ComputeReviewStats(in)
	b := app.ComputeReviewStats(in)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("not repeatable: %+v vs %+v", a, b)
	}
	if !reflect.DeepEqual(in, snapshot) {
		t.Fatalf("input mutated")
	}
	// outputs must not share pointers
	*a.AverageRating = 0
	if *b.AverageRating == 0 {
		t.Fatalf("summaries share state")
	}
}

func TestComputeReviewStats_Scenario(t *testing.T) {
	in := []domain.ReviewRecord{
		{OverallRating: ptr(5), ServiceRating: ptr(5), GoalAchievement: goal(domain.GoalFully)},
		{OverallRating: ptr(3), GoalAchievement: goal(domain.GoalPartially)},
		{OverallRating: ptr(4), ServiceRating: ptr(4)},
	}
	got := app.ComputeReviewStats(in)
	if got.TotalReviews != 3 {
		t.Fatalf("total: %d", got.TotalReviews)
	}
	if *got.AverageRating != 4.0 {
		t.Fatalf("average: %v", *got.AverageRating)
	}
	if *got.DimensionAverages.Service != 4.5 {
		t.Fatalf("service: %v", *got.DimensionAverages.Service)
	}
	want := domain.OutcomeStats{TotalWithOutcomes: 2, FullyAchieved: 1, PartiallyAchieved: 1}
	if got.OutcomeStats == nil || *got.OutcomeStats != want {
		t.Fatalf("outcomes: %+v", got.OutcomeStats)
	}
}

func TestComputeGoalAchievementRate(t *testing.T) {
	if r := app.ComputeGoalAchievementRate(domain.OutcomeStats{}); r != nil {
		t.Fatalf("expected nil rate, got %d", *r)
	}
	cases := []struct {
		in   domain.OutcomeStats
		want int
	}{
		{domain.OutcomeStats{TotalWithOutcomes: 4, FullyAchieved: 2, PartiallyAchieved: 2}, 75},
		{domain.OutcomeStats{TotalWithOutcomes: 3, FullyAchieved: 3}, 100},
		{domain.OutcomeStats{TotalWithOutcomes: 2, NotAchieved: 2}, 0},
		{domain.OutcomeStats{TotalWithOutcomes: 3, FullyAchieved: 1, PartiallyAchieved: 1, NotAchieved: 1}, 50},
		{domain.OutcomeStats{TotalWithOutcomes: 3, FullyAchieved: 2, NotAchieved: 1}, 67},
		{domain.OutcomeStats{TotalWithOutcomes: 8, PartiallyAchieved: 1, NotAchieved: 7}, 6}, // 6.25
	}
	for _, c := range cases {
		got := app.ComputeGoalAchievementRate(c.in)
		if got == nil || *got != c.want {
			t.Fatalf("%+v: want %d, got %v", c.in, c.want, got)
		}
	}
}
