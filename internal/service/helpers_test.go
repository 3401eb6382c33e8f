package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/repository/memstore"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/security"
)

// sequence returns the given draws in order, then repeats the last one
func sequence(draws ...int) func() int {
	var mu sync.Mutex
	i := 0
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		n := draws[i]
		if i < len(draws)-1 {
			i++
		}
		return n
	}
}

type fixture struct {
	store         *memstore.Store
	codes         *CodeGenerator
	profiles      *ProfileService
	relationships *RelationshipService
	locations     *LocationService
	events        *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	codes := NewCodeGenerator(store.Profiles(), DefaultCodeMaxAttempts, nil)
	events := &recordingPublisher{}
	policy := security.NewAuthorizationService(store.Relationships(), store.Profiles(), nil)
	return &fixture{
		store:         store,
		codes:         codes,
		profiles:      NewProfileService(store.Profiles(), codes, nil),
		relationships: NewRelationshipService(store.Profiles(), store.Relationships(), nil),
		locations:     NewLocationService(store.Locations(), store.Profiles(), store.Relationships(), events, policy, nil),
		events:        events,
	}
}

// seedProfile stores a profile with a fixed code
func (f *fixture) seedProfile(t *testing.T, id, name, code string, active bool) *domain.Profile {
	t.Helper()
	p := &domain.Profile{
		ID:             id,
		Email:          id + "@example.com",
		DisplayName:    name,
		TrackingCode:   code,
		TrackingActive: active,
	}
	if err := f.store.Profiles().Create(context.Background(), p); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
	return p
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LocationEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.LocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
