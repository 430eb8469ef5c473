package registry

import (
	"errors"
	"time"

	"atlasdesk.org/internal/auth"
)

var (
	ErrNotFound     = errors.New("registry: not found")
	ErrInvalidInput = errors.New("registry: invalid input")
)

// Kind tags the identity variant of a correlation record.
type Kind string

const (
	// KindAnonymous records are created by unauthenticated registration.
	// Their primary key is the audit id itself.
	KindAnonymous Kind = "anonymous"
	// KindCredentialed records are keyed by the opaque user id issued by
	// the credential store.
	KindCredentialed Kind = "credentialed"
	// KindFederated records are keyed by the external provider's subject id.
	KindFederated Kind = "federated"
)

// Record is the tagged union of the three identity shapes. All variants
// share the audit id, the single cross-mode correlation key; the variant
// fields below the tag are only populated for their own kind. The audit id
// is immutable once assigned and never reused.
type Record struct {
	AuditID      string
	Kind         Kind
	Email        string
	DisplayName  string
	Organization string
	Mode         auth.Mode
	RegisteredAt time.Time

	// Anonymous
	SessionID    string
	WorkshopRole string

	// Credentialed
	ExternalUserID string
	Roles          []string

	// Federated
	SubjectID string
	TenantID  string
	Scopes    []string

	// Credentialed and federated records refresh this on every issuance.
	LastLoginAt time.Time
}
