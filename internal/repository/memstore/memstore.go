// Package memstore is an in-memory implementation of the domain repositories.
// It enforces the same uniqueness rules as the Postgres schema and backs the
// memory store driver and the package tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
)

// Store holds every table behind one lock
type Store struct {
	mu            sync.RWMutex
	identities    map[string]*domain.Identity
	profiles      map[string]*domain.Profile
	codes         map[string]string // tracking code -> profile id
	relationships map[pairKey]*domain.Relationship
	locations     map[string][]*domain.LocationSample
	resetTokens   map[string]resetToken
	revoked       map[string]time.Time
	now           func() time.Time
}

type pairKey struct {
	tracker string
	tracked string
}

type resetToken struct {
	identityID string
	expiresAt  time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		identities:    map[string]*domain.Identity{},
		profiles:      map[string]*domain.Profile{},
		codes:         map[string]string{},
		relationships: map[pairKey]*domain.Relationship{},
		locations:     map[string][]*domain.LocationSample{},
		resetTokens:   map[string]resetToken{},
		revoked:       map[string]time.Time{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Identities returns the identity repository view
func (s *Store) Identities() *IdentityRepository { return &IdentityRepository{s} }

// Profiles returns the profile repository view
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s} }

// Relationships returns the relationship repository view
func (s *Store) Relationships() *RelationshipRepository { return &RelationshipRepository{s} }

// Locations returns the location repository view
func (s *Store) Locations() *LocationRepository { return &LocationRepository{s} }

// ResetTokens returns the reset token repository view
func (s *Store) ResetTokens() *ResetTokenRepository { return &ResetTokenRepository{s} }

// Sessions returns the revoked session view
func (s *Store) Sessions() *SessionRepository { return &SessionRepository{s} }

// IdentityRepository implements domain.IdentityRepository
type IdentityRepository struct{ s *Store }

func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.identities {
		if strings.EqualFold(existing.Email, identity.Email) {
			return domain.ErrEmailTaken
		}
	}
	identity.CreatedAt = r.s.now()
	identity.UpdatedAt = identity.CreatedAt
	cp := *identity
	r.s.identities[identity.ID] = &cp
	return nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if identity, ok := r.s.identities[id]; ok {
		cp := *identity
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, identity := range r.s.identities {
		if strings.EqualFold(identity.Email, email) {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *IdentityRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	identity, ok := r.s.identities[id]
	if !ok {
		return domain.ErrNotFound
	}
	identity.PasswordHash = passwordHash
	identity.UpdatedAt = r.s.now()
	return nil
}

// ProfileRepository implements domain.ProfileRepository
type ProfileRepository struct{ s *Store }

func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.profiles[p.ID]; exists {
		return domain.ErrProfileExists
	}
	if p.TrackingCode != "" {
		if _, taken := r.s.codes[p.TrackingCode]; taken {
			return domain.ErrTrackingCodeTaken
		}
		r.s.codes[p.TrackingCode] = p.ID
	}
	p.CreatedAt = r.s.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.s.profiles[p.ID] = &cp
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if p, ok := r.s.profiles[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *ProfileRepository) GetByTrackingCode(ctx context.Context, code string) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.codes[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r.s.profiles[id]
	return &cp, nil
}

func (r *ProfileRepository) ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Profile
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ProfileRepository) ExistsByTrackingCode(ctx context.Context, code string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.codes[code]
	return ok, nil
}

func (r *ProfileRepository) Update(ctx context.Context, p *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.profiles[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.TrackingCode != current.TrackingCode {
		if p.TrackingCode != "" {
			if owner, taken := r.s.codes[p.TrackingCode]; taken && owner != p.ID {
				return domain.ErrTrackingCodeTaken
			}
			r.s.codes[p.TrackingCode] = p.ID
		}
		if current.TrackingCode != "" {
			delete(r.s.codes, current.TrackingCode)
		}
	}
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = r.s.now()
	cp := *p
	r.s.profiles[p.ID] = &cp
	return nil
}

func (r *ProfileRepository) Count(ctx context.Context) (int, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	active := 0
	for _, p := range r.s.profiles {
		if p.TrackingActive {
			active++
		}
	}
	return len(r.s.profiles), active, nil
}

// RelationshipRepository implements domain.RelationshipRepository
type RelationshipRepository struct{ s *Store }

func (r *RelationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := pairKey{rel.TrackerID, rel.TrackedID}
	if _, exists := r.s.relationships[key]; exists {
		return domain.ErrRelationshipExists
	}
	rel.CreatedAt = r.s.now()
	cp := *rel
	r.s.relationships[key] = &cp
	return nil
}

func (r *RelationshipRepository) Get(ctx context.Context, trackerID, trackedID string) (*domain.Relationship, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if rel, ok := r.s.relationships[pairKey{trackerID, trackedID}]; ok {
		cp := *rel
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *RelationshipRepository) Delete(ctx context.Context, trackerID, trackedID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.relationships, pairKey{trackerID, trackedID})
	return nil
}

func (r *RelationshipRepository) ListTracked(ctx context.Context, trackerID string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rels []*domain.Relationship
	for key, rel := range r.s.relationships {
		if key.tracker == trackerID {
			rels = append(rels, rel)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].CreatedAt.Before(rels[j].CreatedAt) })

	ids := make([]string, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.TrackedID)
	}
	return ids, nil
}

func (r *RelationshipRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.relationships), nil
}

// Rows returns the number of stored relationships for the pair; used by tests
// asserting idempotent connects
func (r *RelationshipRepository) Rows(trackerID, trackedID string) int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if _, ok := r.s.relationships[pairKey{trackerID, trackedID}]; ok {
		return 1
	}
	return 0
}

// LocationRepository implements domain.LocationRepository
type LocationRepository struct{ s *Store }

func (r *LocationRepository) Append(ctx context.Context, sample *domain.LocationSample) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sample.CreatedAt = r.s.now()
	cp := *sample
	r.s.locations[sample.UserID] = append(r.s.locations[sample.UserID], &cp)
	return nil
}

func (r *LocationRepository) LatestAmong(ctx context.Context, userIDs []string) (*domain.LocationSample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *domain.LocationSample
	for _, id := range userIDs {
		for _, sample := range r.s.locations[id] {
			if latest == nil || newer(sample, latest) {
				latest = sample
			}
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *LocationRepository) History(ctx context.Context, userID string, limit int) ([]*domain.LocationSample, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	samples := make([]*domain.LocationSample, 0, len(r.s.locations[userID]))
	for _, sample := range r.s.locations[userID] {
		cp := *sample
		samples = append(samples, &cp)
	}
	sort.SliceStable(samples, func(i, j int) bool { return newer(samples[i], samples[j]) })
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}

func (r *LocationRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, samples := range r.s.locations {
		n += len(samples)
	}
	return n, nil
}

// newer orders by capture time, then insertion time
func newer(a, b *domain.LocationSample) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// ResetTokenRepository keeps reset tokens in memory
type ResetTokenRepository struct{ s *Store }

func (r *ResetTokenRepository) Save(ctx context.Context, token, identityID string, ttl time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.resetTokens[token] = resetToken{identityID: identityID, expiresAt: r.s.now().Add(ttl)}
	return nil
}

func (r *ResetTokenRepository) Consume(ctx context.Context, token string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.resetTokens[token]
	delete(r.s.resetTokens, token)
	if !ok || !r.s.now().Before(t.expiresAt) {
		return "", domain.ErrNotFound
	}
	return t.identityID, nil
}

// SessionRepository tracks revoked sessions in memory
type SessionRepository struct{ s *Store }

func (r *SessionRepository) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ttl > 0 {
		r.s.revoked[sessionID] = r.s.now().Add(ttl)
	}
	return nil
}

func (r *SessionRepository) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	until, ok := r.s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !r.s.now().Before(until) {
		delete(r.s.revoked, sessionID)
		return false, nil
	}
	return true, nil
}
