package auth

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const maxFailedAttempts = 5

// MemoryCredentialStore is an in-process CredentialStore for development
// and tests. It mirrors the external collaborator's contract, including
// lockout after repeated failures, so the distinct locked outcome can be
// exercised without the real system.
type MemoryCredentialStore struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	user     CredentialUser
	hash     []byte
	failures int
	locked   bool
}

// NewMemoryCredentialStore returns an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{accounts: make(map[string]*memoryAccount)}
}

// AddUser registers an account with a bcrypt-hashed password.
func (s *MemoryCredentialStore) AddUser(user CredentialUser, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user.Email)] = &memoryAccount{user: user, hash: hash}
	return nil
}

// VerifyPassword implements CredentialStore.
func (s *MemoryCredentialStore) VerifyPassword(ctx context.Context, email, password string) (*CredentialUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Unknown account and wrong password are indistinguishable.
		return nil, ErrInvalidCredentials
	}
	if acct.locked {
		return nil, ErrAccountLocked
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		acct.failures++
		if acct.failures >= maxFailedAttempts {
			acct.locked = true
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}
	acct.failures = 0
	user := acct.user
	return &user, nil
}

// ChangePassword implements CredentialStore.
func (s *MemoryCredentialStore) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID != userID {
			continue
		}
		if acct.locked {
			return ErrAccountLocked
		}
		if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(currentPassword)); err != nil {
			return ErrInvalidCredentials
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		acct.hash = hash
		return nil
	}
	return ErrInvalidCredentials
}

// RequestPasswordReset implements CredentialStore. The caller-facing flow
// reports success regardless; this only records whether the account exists.
func (s *MemoryCredentialStore) RequestPasswordReset(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]; !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// Unlock clears the lockout for an account, for administrative recovery.
func (s *MemoryCredentialStore) Unlock(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[strings.ToLower(email)]; ok {
		acct.locked = false
		acct.failures = 0
	}
}
