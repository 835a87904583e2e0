package domain

import "time"

type GoalAchievement string

const (
	GoalFully       GoalAchievement = "FULLY"
	GoalPartially   GoalAchievement = "PARTIALLY"
	GoalNotAchieved GoalAchievement = "NOT_ACHIEVED"
)

// Valid reports whether g is one of the three known outcome categories.
func (g GoalAchievement) Valid() bool {
	switch g {
	case GoalFully, GoalPartially, GoalNotAchieved:
		return true
	}
	return false
}

// ReviewRecord is the rating/outcome slice of a review used for aggregation.
// Every optional value is a pointer so "absent" never collapses into zero.
type ReviewRecord struct {
	OverallRating    *int             `json:"overallRating"`
	ServiceRating    *int             `json:"serviceRating,omitempty"`
	FacilitiesRating *int             `json:"facilitiesRating,omitempty"`
	DiningRating     *int             `json:"diningRating,omitempty"`
	ValueRating      *int             `json:"valueRating,omitempty"`
	GoalAchievement  *GoalAchievement `json:"goalAchievement,omitempty"`
}

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

type Review struct {
	ReviewRecord
	ID         int64        `json:"id"`
	PropertyID string       `json:"propertyId"`
	SourceID   *string      `json:"-"`
	Author     *string      `json:"author,omitempty"`
	Title      *string      `json:"title,omitempty"`
	Text       *string      `json:"text,omitempty"`
	Status     ReviewStatus `json:"status"`
	CreatedAt  *time.Time   `json:"createdAt,omitempty"`
	RawJSON    []byte       `json:"-"`
}

// ReviewStatsSummary is derived on every call and never persisted.
type ReviewStatsSummary struct {
	TotalReviews      int               `json:"totalReviews"`
	AverageRating     *float64          `json:"averageRating"`
	DimensionAverages DimensionAverages `json:"dimensionAverages"`
	OutcomeStats      *OutcomeStats     `json:"outcomeStats"`
}

type DimensionAverages struct {
	Service    *float64 `json:"service"`
	Facilities *float64 `json:"facilities"`
	Dining     *float64 `json:"dining"`
	Value      *float64 `json:"value"`
}

type OutcomeStats struct {
	TotalWithOutcomes int `json:"totalWithOutcomes"`
	FullyAchieved     int `json:"fullyAchieved"`
	PartiallyAchieved int `json:"partiallyAchieved"`
	NotAchieved       int `json:"notAchieved"`
}
