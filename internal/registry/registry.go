package registry

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"atlasdesk.org/internal/auth"
	"atlasdesk.org/internal/obs"
)

const defaultCacheTTL = 30 * time.Second

// Service is the Identity Registry: the persistent correlation store that
// unifies anonymous, credentialed and federated identities behind one
// audit id. Validate outcomes are cached; see validationCache for the
// staleness contract.
type Service struct {
	store             Store
	mode              auth.Mode
	cache             *validationCache
	cacheTTL          time.Duration
	allowUnregistered bool
	now               func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithCacheTTL bounds how long a Validate outcome may be reused. Zero
// disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithAllowUnregistered accepts correlation ids with no backing record.
// Off by default: registry presence is required.
func WithAllowUnregistered(allow bool) Option {
	return func(s *Service) { s.allowUnregistered = allow }
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the registry over the given store. The mode is the
// active authentication mode; new records are stamped with it.
func NewService(store Store, mode auth.Mode, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry: store is required")
	}
	svc := &Service{
		store:    store,
		mode:     mode,
		cacheTTL: defaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.cache = newValidationCache(svc.cacheTTL, svc.now)
	return svc, nil
}

// RegisterAnonymous creates an anonymous correlation record, or returns
// the existing audit id when the email was registered before. Idempotence
// is keyed on email: a duplicate registration never mints a second id.
func (s *Service) RegisterAnonymous(ctx context.Context, name, email, organization, sessionID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	if existing, err := s.store.FindAnonymousByEmail(ctx, email); err == nil {
		return existing.AuditID, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	rec := &Record{
		AuditID:      uuid.NewString(),
		Kind:         KindAnonymous,
		Email:        email,
		DisplayName:  name,
		Organization: strings.TrimSpace(organization),
		Mode:         s.mode,
		RegisteredAt: s.now().UTC(),
		SessionID:    strings.TrimSpace(sessionID),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", err
	}
	s.cache.set(rec.AuditID, true)
	return rec.AuditID, nil
}

// ResolveOrCreateForCredentialed looks up the record keyed by the
// credential store's user id, creating it on first sight. Last login is
// refreshed on every call.
func (s *Service) ResolveOrCreateForCredentialed(ctx context.Context, externalUserID string, claims map[string]string) (string, error) {
	externalUserID = strings.TrimSpace(externalUserID)
	if externalUserID == "" {
		return "", fmt.Errorf("%w: external user id is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	existing, err := s.store.FindByExternalUserID(ctx, externalUserID)
	switch {
	case err == nil:
		if err := s.store.TouchLogin(ctx, existing.AuditID, now); err != nil {
			return "", err
		}
		return existing.AuditID, nil
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	rec := &Record{
		AuditID:        uuid.NewString(),
		Kind:           KindCredentialed,
		Email:          claims[auth.ClaimEmail],
		DisplayName:    claims["name"],
		Mode:           s.mode,
		RegisteredAt:   now,
		ExternalUserID: externalUserID,
		Roles:          auth.MapClaimsToRoles(claims),
		LastLoginAt:    now,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", err
	}
	s.cache.set(rec.AuditID, true)
	return rec.AuditID, nil
}

// ResolveOrCreateForFederated is the same pattern keyed by the provider's
// subject id; tenant id and granted scopes from the claim map are stored
// alongside.
func (s *Service) ResolveOrCreateForFederated(ctx context.Context, subjectID string, claimMap map[string]string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	existing, err := s.store.FindBySubjectID(ctx, subjectID)
	switch {
	case err == nil:
		if err := s.store.TouchLogin(ctx, existing.AuditID, now); err != nil {
			return "", err
		}
		return existing.AuditID, nil
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	rec := &Record{
		AuditID:      uuid.NewString(),
		Kind:         KindFederated,
		Email:        claimMap[auth.ClaimEmail],
		DisplayName:  claimMap["name"],
		Mode:         s.mode,
		RegisteredAt: now,
		SubjectID:    subjectID,
		TenantID:     claimMap["tid"],
		Scopes:       splitScopes(claimMap["scp"]),
		LastLoginAt:  now,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return "", err
	}
	s.cache.set(rec.AuditID, true)
	return rec.AuditID, nil
}

// Validate reports whether the audit id currently resolves to a record of
// any kind. Outcomes are cached for the configured TTL; a cached result is
// trusted for its full TTL even if the record is removed meanwhile.
func (s *Service) Validate(ctx context.Context, auditID string) (bool, error) {
	auditID = strings.TrimSpace(auditID)
	if auditID == "" {
		return false, fmt.Errorf("%w: audit id is required", ErrInvalidInput)
	}
	if s.allowUnregistered {
		return true, nil
	}
	if valid, ok := s.cache.get(auditID); ok {
		obs.RegistryCacheResult("hit")
		return valid, nil
	}
	obs.RegistryCacheResult("miss")

	_, err := s.store.FindByAuditID(ctx, auditID)
	switch {
	case err == nil:
		s.cache.set(auditID, true)
		return true, nil
	case errors.Is(err, ErrNotFound):
		s.cache.set(auditID, false)
		return false, nil
	default:
		return false, err
	}
}

// GetByAuditID returns the full record, used for claims enrichment when
// issuing service tokens and for audit display.
func (s *Service) GetByAuditID(ctx context.Context, auditID string) (*Record, error) {
	auditID = strings.TrimSpace(auditID)
	if auditID == "" {
		return nil, fmt.Errorf("%w: audit id is required", ErrInvalidInput)
	}
	return s.store.FindByAuditID(ctx, auditID)
}

// Revoke removes the backing record so the audit id stops resolving. The
// validation cache is left untouched: outstanding cached results stay
// valid until their TTL lapses. Revocation is eventually consistent.
func (s *Service) Revoke(ctx context.Context, auditID string) error {
	auditID = strings.TrimSpace(auditID)
	if auditID == "" {
		return fmt.Errorf("%w: audit id is required", ErrInvalidInput)
	}
	return s.store.Remove(ctx, auditID)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}

func splitScopes(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
