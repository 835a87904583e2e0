package domain

type Property struct {
	ID        string
	Slug      string
	Name      string
	Category  *string // RESORT|CLINIC|RETREAT|...
	Country   *string
	City      *string
	Summary   *string
	PriceFrom *int // nightly, whole currency units
	Images    []string
	RawJSON   []byte // full feed payload
}

// PropertyView is the read model served by the directory endpoints.
type PropertyView struct {
	ID        string   `json:"id"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name"`
	Category  *string  `json:"category,omitempty"`
	Country   *string  `json:"country,omitempty"`
	City      *string  `json:"city,omitempty"`
	Summary   *string  `json:"summary,omitempty"`
	PriceFrom *int     `json:"priceFrom,omitempty"`
	Images    []string `json:"images,omitempty"`
}
