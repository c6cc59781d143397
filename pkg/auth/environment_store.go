package auth

import (
	"os"
	"time"
)

const (
	EnvEmail    = "KPTNCOOK_EMAIL"
	EnvPassword = "KPTNCOOK_PASSWORD"
	EnvAPIKey   = "KPTNCOOK_API_KEY"
)

// EnvironmentStore reads the account from KPTNCOOK_* variables. It is
// read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. A non-empty email must match
// KPTNCOOK_EMAIL.
func (e *EnvironmentStore) Retrieve(email string) (*Account, error) {
	envEmail := normalizeEmail(os.Getenv(EnvEmail))
	password := os.Getenv(EnvPassword)

	if envEmail == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if email != "" && normalizeEmail(email) != envEmail {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Email:        envEmail,
		Password:     password,
		APIKey:       os.Getenv(EnvAPIKey),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(email string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist for email
func (e *EnvironmentStore) Exists(email string) bool {
	_, err := e.Retrieve(email)
	return err == nil
}
