package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

func TestProfileCodeUniqueness(t *testing.T) {
	ctx := context.Background()
	profiles := New().Profiles()

	if err := profiles.Create(ctx, &domain.Profile{ID: "a", TrackingCode: "PRT-000001"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := profiles.Create(ctx, &domain.Profile{ID: "b", TrackingCode: "PRT-000001"}); !errors.Is(err, domain.ErrTrackingCodeTaken) {
		t.Fatalf("expected ErrTrackingCodeTaken, got %v", err)
	}
	if err := profiles.Create(ctx, &domain.Profile{ID: "a", TrackingCode: "PRT-000002"}); !errors.Is(err, domain.ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
}

func TestProfileUpdateReleasesOldCode(t *testing.T) {
	ctx := context.Background()
	profiles := New().Profiles()
	_ = profiles.Create(ctx, &domain.Profile{ID: "a", TrackingCode: "PRT-000001"})
	_ = profiles.Create(ctx, &domain.Profile{ID: "b", TrackingCode: "PRT-000002"})

	p, _ := profiles.GetByID(ctx, "a")
	p.TrackingCode = "PRT-000002"
	if err := profiles.Update(ctx, p); !errors.Is(err, domain.ErrTrackingCodeTaken) {
		t.Fatalf("expected ErrTrackingCodeTaken, got %v", err)
	}

	p.TrackingCode = "PRT-000003"
	if err := profiles.Update(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if ok, _ := profiles.ExistsByTrackingCode(ctx, "PRT-000001"); ok {
		t.Fatalf("old code should be released")
	}
	got, err := profiles.GetByTrackingCode(ctx, "PRT-000003")
	if err != nil || got.ID != "a" {
		t.Fatalf("lookup by new code failed: %v", err)
	}
}

func TestRelationshipPairUnique(t *testing.T) {
	ctx := context.Background()
	rels := New().Relationships()

	if err := rels.Create(ctx, &domain.Relationship{ID: "1", TrackerID: "a", TrackedID: "b"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := rels.Create(ctx, &domain.Relationship{ID: "2", TrackerID: "a", TrackedID: "b"}); !errors.Is(err, domain.ErrRelationshipExists) {
		t.Fatalf("expected ErrRelationshipExists, got %v", err)
	}
	if err := rels.Create(ctx, &domain.Relationship{ID: "3", TrackerID: "b", TrackedID: "a"}); err != nil {
		t.Fatalf("reverse edge is a distinct relationship: %v", err)
	}
	if n, _ := rels.Count(ctx); n != 2 {
		t.Fatalf("expected 2 relationships, got %d", n)
	}
}

func TestLatestAmongOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	locations := New().Locations()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = locations.Append(ctx, &domain.LocationSample{ID: "1", UserID: "b", Timestamp: base.Add(2 * time.Minute)})
	_ = locations.Append(ctx, &domain.LocationSample{ID: "2", UserID: "c", Timestamp: base.Add(time.Minute)})
	_ = locations.Append(ctx, &domain.LocationSample{ID: "3", UserID: "x", Timestamp: base.Add(time.Hour)})

	got, err := locations.LatestAmong(ctx, []string{"b", "c"})
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if got.ID != "1" {
		t.Fatalf("expected sample 1, got %s", got.ID)
	}

	if _, err := locations.LatestAmong(ctx, []string{"nobody"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHistoryNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	locations := New().Locations()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"1", "2", "3"} {
		_ = locations.Append(ctx, &domain.LocationSample{ID: id, UserID: "a", Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	got, _ := locations.History(ctx, "a", 2)
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestResetTokenConsumeOnceAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	tokens := s.ResetTokens()

	_ = tokens.Save(ctx, "t1", "id-1", time.Hour)
	if id, err := tokens.Consume(ctx, "t1"); err != nil || id != "id-1" {
		t.Fatalf("consume failed: %q %v", id, err)
	}
	if _, err := tokens.Consume(ctx, "t1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("token must be single use, got %v", err)
	}

	_ = tokens.Save(ctx, "t2", "id-1", time.Hour)
	now = now.Add(2 * time.Hour)
	if _, err := tokens.Consume(ctx, "t2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestSessionRevocation(t *testing.T) {
	ctx := context.Background()
	sessions := New().Sessions()

	_ = sessions.Revoke(ctx, "s1", time.Hour)
	if ok, _ := sessions.IsRevoked(ctx, "s1"); !ok {
		t.Fatalf("expected s1 revoked")
	}
	if ok, _ := sessions.IsRevoked(ctx, "s2"); ok {
		t.Fatalf("s2 was never revoked")
	}
}
