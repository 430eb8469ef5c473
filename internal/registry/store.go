package registry

import (
	"context"
	"time"
)

// Store persists correlation records. Storage may be partitioned by
// variant, but FindByAuditID presents one logical keyspace: it must locate
// a record of any kind by its audit id.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	FindByAuditID(ctx context.Context, auditID string) (*Record, error)
	FindAnonymousByEmail(ctx context.Context, email string) (*Record, error)
	FindByExternalUserID(ctx context.Context, externalUserID string) (*Record, error)
	FindBySubjectID(ctx context.Context, subjectID string) (*Record, error)
	TouchLogin(ctx context.Context, auditID string, at time.Time) error

	// Remove deletes a record. Normal operation never calls this: records
	// are not hard-deleted. It exists as the explicit trigger that makes a
	// correlation id stop resolving, invalidating outstanding service
	// tokens once cached validations expire.
	Remove(ctx context.Context, auditID string) error
}
