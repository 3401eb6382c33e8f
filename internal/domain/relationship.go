package domain

import (
	"context"
	"time"
)

// Relationship is a directed "tracker observes tracked" edge
type Relationship struct {
	ID        string    `json:"id"`
	TrackerID string    `json:"trackerId"`
	TrackedID string    `json:"trackedId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelationshipRepository defines data access for tracking relationships.
// Create returns ErrRelationshipExists when the ordered pair is already stored.
type RelationshipRepository interface {
	Create(ctx context.Context, rel *Relationship) error
	Get(ctx context.Context, trackerID, trackedID string) (*Relationship, error)
	Delete(ctx context.Context, trackerID, trackedID string) error
	ListTracked(ctx context.Context, trackerID string) ([]string, error)
	Count(ctx context.Context) (int, error)
}
