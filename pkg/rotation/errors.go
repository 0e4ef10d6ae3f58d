package rotation

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by the typed errors below.
var (
	ErrUnknownStep              = errors.New("unknown rotation step")
	ErrNoCurrentVersion         = errors.New("no version labelled current")
	ErrNoPendingVersion         = errors.New("pending version not found")
	ErrPendingCredentialMissing = errors.New("pending credential is not live")
	ErrCredentialRejected       = errors.New("credential rejected by authority")

	// ErrCredentialNotFound is returned by authorities when the credential
	// does not exist. Revocation treats it as already retired.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrVersionNotFound is returned by stores when no version matches a selector.
	ErrVersionNotFound = errors.New("secret version not found")
)

// AuthorityError reports a failed call to the credential authority.
type AuthorityError struct {
	Op           string
	Principal    string
	CredentialID string
	Err          error
}

func (e *AuthorityError) Error() string {
	if e.CredentialID != "" {
		return fmt.Sprintf("authority %s for %s (key %s): %v", e.Op, e.Principal, e.CredentialID, e.Err)
	}
	return fmt.Sprintf("authority %s for %s: %v", e.Op, e.Principal, e.Err)
}

func (e *AuthorityError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed call to the versioned secret store.
type StoreError struct {
	Op        string
	RecordID  string
	VersionID string
	Err       error
}

func (e *StoreError) Error() string {
	if e.VersionID != "" {
		return fmt.Sprintf("store %s on %s (version %s): %v", e.Op, e.RecordID, e.VersionID, e.Err)
	}
	return fmt.Sprintf("store %s on %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IntegrityError reports that the store and the authority disagree in a way
// the engine refuses to repair on its own.
type IntegrityError struct {
	RecordID string
	Reason   string
	Err      error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.RecordID, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// ValidationFailure reports that the pending credential did not authenticate.
type ValidationFailure struct {
	CredentialID string
	Err          error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("credential %s failed validation: %v", e.CredentialID, e.Err)
}

func (e *ValidationFailure) Unwrap() error {
	return e.Err
}

// IsIntegrityError reports whether err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
