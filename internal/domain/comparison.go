package domain

// MaxComparisonItems bounds a ComparisonList.
const MaxComparisonItems = 4

// ComparisonStorageKey is the session storage key holding the serialized list.
const ComparisonStorageKey = "clarus-vitae-comparison"

type ComparisonItem struct {
	PropertyID   string `json:"propertyId"`
	PropertySlug string `json:"propertySlug"`
	PropertyName string `json:"propertyName"`
	AddedAt      string `json:"addedAt"` // RFC 3339
}

// ComparisonList is ordered by insertion. Items are unique by PropertyID.
type ComparisonList struct {
	Items []ComparisonItem `json:"items"`
}

func (l ComparisonList) MaxItems() int { return MaxComparisonItems }

func (l ComparisonList) IsFull() bool { return len(l.Items) >= MaxComparisonItems }

func (l ComparisonList) Contains(propertyID string) bool {
	for _, it := range l.Items {
		if it.PropertyID == propertyID {
			return true
		}
	}
	return false
}

// Clone returns a copy that does not share the backing array.
func (l ComparisonList) Clone() ComparisonList {
	out := ComparisonList{Items: make([]ComparisonItem, len(l.Items))}
	copy(out.Items, l.Items)
	return out
}
