package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"atlasdesk.org/internal/auth"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Each variant lives in its own
// table; the audit id is the shared correlation key across all three, and
// FindByAuditID dispatches over the partitions in turn.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, rec *Record) error {
	switch rec.Kind {
	case KindAnonymous:
		_, err := s.db.ExecContext(ctx,
			`insert into identity_anonymous(audit_id, email, display_name, organization, mode, registered_at, session_id, workshop_role)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			rec.AuditID, strings.ToLower(rec.Email), rec.DisplayName, rec.Organization,
			rec.Mode.String(), rec.RegisteredAt, rec.SessionID, rec.WorkshopRole,
		)
		return err
	case KindCredentialed:
		_, err := s.db.ExecContext(ctx,
			`insert into identity_credentialed(external_user_id, audit_id, email, display_name, mode, registered_at, roles, last_login_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			rec.ExternalUserID, rec.AuditID, strings.ToLower(rec.Email), rec.DisplayName,
			rec.Mode.String(), rec.RegisteredAt, strings.Join(rec.Roles, ","), rec.LastLoginAt,
		)
		return err
	case KindFederated:
		_, err := s.db.ExecContext(ctx,
			`insert into identity_federated(subject_id, audit_id, email, display_name, mode, registered_at, tenant_id, scopes, last_login_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			rec.SubjectID, rec.AuditID, strings.ToLower(rec.Email), rec.DisplayName,
			rec.Mode.String(), rec.RegisteredAt, rec.TenantID, strings.Join(rec.Scopes, " "), rec.LastLoginAt,
		)
		return err
	default:
		return ErrInvalidInput
	}
}

func (s *PGStore) FindByAuditID(ctx context.Context, auditID string) (*Record, error) {
	if rec, err := s.findAnonymous(ctx, `audit_id=$1`, auditID); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if rec, err := s.findCredentialed(ctx, `audit_id=$1`, auditID); err == nil {
		return rec, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.findFederated(ctx, `audit_id=$1`, auditID)
}

func (s *PGStore) FindAnonymousByEmail(ctx context.Context, email string) (*Record, error) {
	return s.findAnonymous(ctx, `email=$1`, strings.ToLower(email))
}

func (s *PGStore) FindByExternalUserID(ctx context.Context, externalUserID string) (*Record, error) {
	return s.findCredentialed(ctx, `external_user_id=$1`, externalUserID)
}

func (s *PGStore) FindBySubjectID(ctx context.Context, subjectID string) (*Record, error) {
	return s.findFederated(ctx, `subject_id=$1`, subjectID)
}

func (s *PGStore) TouchLogin(ctx context.Context, auditID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update identity_credentialed set last_login_at=$2 where audit_id=$1`, auditID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	res, err = s.db.ExecContext(ctx,
		`update identity_federated set last_login_at=$2 where audit_id=$1`, auditID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Remove(ctx context.Context, auditID string) error {
	for _, table := range []string{"identity_anonymous", "identity_credentialed", "identity_federated"} {
		res, err := s.db.ExecContext(ctx, `delete from `+table+` where audit_id=$1`, auditID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}
	return ErrNotFound
}

func (s *PGStore) findAnonymous(ctx context.Context, where string, arg any) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select audit_id, email, display_name, organization, mode, registered_at, session_id, workshop_role
		 from identity_anonymous where `+where, arg)
	rec := Record{Kind: KindAnonymous}
	var mode string
	err := row.Scan(&rec.AuditID, &rec.Email, &rec.DisplayName, &rec.Organization,
		&mode, &rec.RegisteredAt, &rec.SessionID, &rec.WorkshopRole)
	if err != nil {
		return nil, mapScanErr(err)
	}
	rec.Mode = auth.Mode(mode)
	return &rec, nil
}

func (s *PGStore) findCredentialed(ctx context.Context, where string, arg any) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select external_user_id, audit_id, email, display_name, mode, registered_at, roles, last_login_at
		 from identity_credentialed where `+where, arg)
	rec := Record{Kind: KindCredentialed}
	var mode, roles string
	err := row.Scan(&rec.ExternalUserID, &rec.AuditID, &rec.Email, &rec.DisplayName,
		&mode, &rec.RegisteredAt, &roles, &rec.LastLoginAt)
	if err != nil {
		return nil, mapScanErr(err)
	}
	rec.Mode = auth.Mode(mode)
	rec.Roles = splitStored(roles, ",")
	return &rec, nil
}

func (s *PGStore) findFederated(ctx context.Context, where string, arg any) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`select subject_id, audit_id, email, display_name, mode, registered_at, tenant_id, scopes, last_login_at
		 from identity_federated where `+where, arg)
	rec := Record{Kind: KindFederated}
	var mode, scopes string
	err := row.Scan(&rec.SubjectID, &rec.AuditID, &rec.Email, &rec.DisplayName,
		&mode, &rec.RegisteredAt, &rec.TenantID, &scopes, &rec.LastLoginAt)
	if err != nil {
		return nil, mapScanErr(err)
	}
	rec.Mode = auth.Mode(mode)
	rec.Scopes = splitStored(scopes, " ")
	return &rec, nil
}

func mapScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func splitStored(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
