package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestPartnerLocationEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "Bia", "PRT-702243", true)

	if _, err := f.relationships.Connect(ctx, "ana", "PRT-702243"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	ts := time.Date(2024, 5, 1, 15, 4, 5, 0, time.UTC)
	sample, err := f.locations.Record(ctx, "bia", RecordInput{
		Latitude:  -23.5505,
		Longitude: -46.6333,
		Accuracy:  ptr(12),
		Address:   "São Paulo, SP",
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := f.locations.ResolveLatest(ctx, "ana")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != sample.ID || got.Latitude != -23.5505 || got.Longitude != -46.6333 {
		t.Fatalf("unexpected location %+v", got)
	}
	if got.Address != "São Paulo, SP" || got.Name != "Bia" || got.Email != "bia@example.com" {
		t.Fatalf("unexpected annotation %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp changed: %v", got.Timestamp)
	}
	if f.events.count() != 1 || f.events.events[0].Type != domain.LocationInserted {
		t.Fatalf("expected one INSERT event, got %+v", f.events.events)
	}
}

func TestUnknownCodeEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)

	if _, err := f.relationships.Connect(ctx, "ana", "PRT-999999"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
	if _, err := f.locations.ResolveLatest(ctx, "ana"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveLatestAcrossPartners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "", "PRT-000002", true)
	f.seedProfile(t, "caio", "Caio", "PRT-000003", true)
	_, _ = f.relationships.Connect(ctx, "ana", "PRT-000002")
	_, _ = f.relationships.Connect(ctx, "ana", "PRT-000003")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, _ = f.locations.Record(ctx, "caio", RecordInput{Latitude: 1, Longitude: 1, Timestamp: base})
	_, _ = f.locations.Record(ctx, "bia", RecordInput{Latitude: 2, Longitude: 2, Timestamp: base.Add(time.Minute)})
	// Arrives later but was captured earlier.
	_, _ = f.locations.Record(ctx, "caio", RecordInput{Latitude: 3, Longitude: 3, Timestamp: base.Add(-time.Hour)})

	got, err := f.locations.ResolveLatest(ctx, "ana")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.UserID != "bia" {
		t.Fatalf("expected bia's sample, got %s", got.UserID)
	}
	if got.Name != domain.DefaultPartnerName {
		t.Fatalf("expected default name, got %q", got.Name)
	}
}

func TestResolveLatestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "Bia", "PRT-000002", true)

	if _, err := f.locations.ResolveLatest(ctx, "ana"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no partners: expected ErrNotFound, got %v", err)
	}

	_, _ = f.relationships.Connect(ctx, "ana", "PRT-000002")
	if _, err := f.locations.ResolveLatest(ctx, "ana"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no samples: expected ErrNotFound, got %v", err)
	}
}

func TestResolveLatestSkipsInactivePartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "Bia", "PRT-000002", true)
	_, _ = f.relationships.Connect(ctx, "ana", "PRT-000002")
	_, _ = f.locations.Record(ctx, "bia", RecordInput{Latitude: 1, Longitude: 1})

	if _, err := f.profiles.SetTrackingActive(ctx, "bia", false); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if _, err := f.locations.ResolveLatest(ctx, "ana"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("inactive partner must not resolve, got %v", err)
	}
}

func TestRecordFallsBackToCoordinates(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("redis down")

	sample, err := f.locations.Record(context.Background(), "ana", RecordInput{Latitude: -23.55052, Longitude: -46.633308})
	if err != nil {
		t.Fatalf("record must survive publish failure: %v", err)
	}
	if sample.Address != "-23.5505, -46.6333" {
		t.Fatalf("unexpected fallback address %q", sample.Address)
	}
	if sample.Timestamp.IsZero() {
		t.Fatalf("missing timestamp defaults to now")
	}
}

func TestRecordRejectsBadCoordinates(t *testing.T) {
	f := newFixture(t)
	for _, in := range []RecordInput{
		{Latitude: 91, Longitude: 0},
		{Latitude: 0, Longitude: -181},
		{Latitude: 0, Longitude: 0, Accuracy: ptr(-1)},
	} {
		if _, err := f.locations.Record(context.Background(), "ana", in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "Bia", "PRT-000002", true)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		_, _ = f.locations.Record(ctx, "bia", RecordInput{Latitude: 1, Longitude: 1, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	own, err := f.locations.History(ctx, "bia", "", 0)
	if err != nil {
		t.Fatalf("own history failed: %v", err)
	}
	if len(own) != DefaultHistoryLimit || !own[0].Timestamp.After(own[1].Timestamp) {
		t.Fatalf("expected %d newest-first samples, got %d", DefaultHistoryLimit, len(own))
	}

	if _, err := f.locations.History(ctx, "ana", "bia", 5); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without relationship, got %v", err)
	}

	_, _ = f.relationships.Connect(ctx, "ana", "PRT-000002")
	partner, err := f.locations.History(ctx, "ana", "bia", 500)
	if err != nil {
		t.Fatalf("partner history failed: %v", err)
	}
	if len(partner) != 25 {
		t.Fatalf("expected all 25 samples under the cap, got %d", len(partner))
	}
}

func TestPausedPartnerIsHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedProfile(t, "ana", "Ana", "PRT-000001", true)
	f.seedProfile(t, "bia", "Bia", "PRT-000002", true)
	if _, err := f.relationships.Connect(ctx, "ana", "PRT-000002"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if _, err := f.profiles.SetTrackingActive(ctx, "bia", false); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	if _, err := f.locations.Record(ctx, "bia", RecordInput{Latitude: -23.5, Longitude: -46.6}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if f.events.count() != 0 {
		t.Fatalf("paused samples must not be announced, got %d events", f.events.count())
	}

	if _, err := f.locations.ResolveLatest(ctx, "ana"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a paused partner, got %v", err)
	}
	if samples, err := f.locations.History(ctx, "ana", "bia", 10); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a paused partner, got %d samples, err %v", len(samples), err)
	}
	if own, err := f.locations.History(ctx, "bia", "", 10); err != nil || len(own) != 1 {
		t.Fatalf("expected the owner to keep reading own history, got %d samples, err %v", len(own), err)
	}

	owners, err := f.locations.VisibleOwners(ctx, "ana")
	if err != nil {
		t.Fatalf("visible owners failed: %v", err)
	}
	if len(owners) != 1 || owners[0] != "ana" {
		t.Fatalf("expected only the viewer itself, got %v", owners)
	}

	if _, err := f.profiles.SetTrackingActive(ctx, "bia", true); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	owners, _ = f.locations.VisibleOwners(ctx, "ana")
	if len(owners) != 2 {
		t.Fatalf("expected the resumed partner to be visible again, got %v", owners)
	}
}
