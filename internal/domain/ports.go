package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrCodeInvalid     = errors.New("verification code invalid")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrTooManyAttempts = errors.New("verification code attempts exhausted")
	ErrInvalidCursor   = errors.New("invalid cursor")
)

type PropertyRepository interface {
	// Write paths
	UpsertProperty(ctx context.Context, p Property) error
	UpsertReviews(ctx context.Context, rs []Review) error
	LogMiss(ctx context.Context, slug string, status int, reason string) error

	// Read paths
	GetPropertyBySlug(ctx context.Context, slug string) (PropertyView, error)
	GetPropertiesBySlugs(ctx context.Context, slugs []string) ([]PropertyView, error)
	ListProperties(ctx context.Context, q PropertiesQuery) (PropertiesPage, error)
	ListReviews(ctx context.Context, propertyID string, pg PageQuery) (ReviewsPage, error)
	// ListReviewRecords returns rating slices of approved reviews only.
	ListReviewRecords(ctx context.Context, propertyID string) ([]ReviewRecord, error)
}

type FeedClient interface {
	GetProperty(ctx context.Context, slug string) (map[string]any, error)
	GetReviews(ctx context.Context, slug string, count int) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// SessionStorage is a string key/value store scoped to one visitor session.
// Set may fail (backend down, quota) and callers must tolerate that.
type SessionStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// StorageEvent carries the new value of a key. Value is nil when the key was removed.
type StorageEvent struct {
	Key    string
	Value  *string
	Origin string // browsing context that wrote the value
}

// StorageWatcher delivers changes made by other browsing contexts of the same
// session. Writes made by the watching context itself are not delivered.
// Delivery is at-least-once and unordered; the channel closes when ctx is done.
type StorageWatcher interface {
	Watch(ctx context.Context, key string) (<-chan StorageEvent, error)
}

// ContextBus signals the subscribers of one browsing context that the context
// itself wrote. Signals carry no payload; subscribers re-read state.
type ContextBus interface {
	Subscribe(topic string) (<-chan struct{}, func())
	Publish(topic string)
}

// TTLStore is a keyed cache with per-entry expiry.
type TTLStore interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically adds one to the counter at key and returns the new value.
	// ttl is applied only when the counter is created, so it lives a fixed time
	// from its first increment.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// SweepExpired drops expired entries and reports how many were removed.
	SweepExpired(ctx context.Context) (int, error)
}

type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// Read models & queries

type PropertiesQuery struct {
	Q        *string
	Category *string
	Country  *string
	City     *string
	Sort     string // name|-name|price|-price
	Limit    int
	Offset   int
}

type PageQuery struct {
	Limit  int
	Cursor *string
	Sort   string
}

type PropertiesPage struct {
	Items      []PropertyView `json:"items"`
	NextOffset *int           `json:"nextOffset,omitempty"`
}

type ReviewsPage struct {
	Items      []Review `json:"items"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

// ComparedProperty is one column of a comparison export.
type ComparedProperty struct {
	Property            PropertyView       `json:"property"`
	Stats               ReviewStatsSummary `json:"stats"`
	GoalAchievementRate *int               `json:"goalAchievementRate"`
}

// SessionBackend opens a per-session storage handle for one browsing context.
type SessionBackend interface {
	Open(sessionID, contextID string) SessionHandle
}

type SessionHandle interface {
	SessionStorage
	StorageWatcher
}
