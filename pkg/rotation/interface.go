package rotation

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Step identifies which part of the rotation protocol an invocation runs.
// Values are the wire names used by the secret store's rotation scheduler.
type Step string

const (
	// StepCreateCredential issues a new credential and stores it as the pending version.
	StepCreateCredential Step = "createSecret"

	// StepSetCredential is part of the scheduler protocol but has nothing to do
	// for access keys: the authority already holds the credential after create.
	StepSetCredential Step = "setSecret"

	// StepValidateCredential authenticates with the pending credential.
	StepValidateCredential Step = "testSecret"

	// StepPromoteAndRevoke makes the pending version current and retires the
	// credential referenced by the previous version.
	StepPromoteAndRevoke Step = "finishSecret"
)

// Steps returns the protocol steps in the order the scheduler invokes them.
func Steps() []Step {
	return []Step{
		StepCreateCredential,
		StepSetCredential,
		StepValidateCredential,
		StepPromoteAndRevoke,
	}
}

// ParseStep converts a wire step name into a Step.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, s)
	}
	return step, nil
}

// Valid reports whether s is one of the known protocol steps.
func (s Step) Valid() bool {
	switch s {
	case StepCreateCredential, StepSetCredential, StepValidateCredential, StepPromoteAndRevoke:
		return true
	}
	return false
}

// String returns the wire name.
func (s Step) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown steps.
func (s *Step) UnmarshalText(text []byte) error {
	step, err := ParseStep(string(text))
	if err != nil {
		return err
	}
	*s = step
	return nil
}

// Stage is a label attached to a secret version. The store keeps each stage on
// at most one version of a record.
type Stage string

const (
	StageCurrent  Stage = "AWSCURRENT"
	StagePending  Stage = "AWSPENDING"
	StagePrevious Stage = "AWSPREVIOUS"
)

// CredentialStatus mirrors the authority's activation state of a credential.
type CredentialStatus string

const (
	CredentialActive   CredentialStatus = "Active"
	CredentialInactive CredentialStatus = "Inactive"
)

// Credential is an access key pair owned by the credential authority.
// Secret is only populated on the Credential returned by Create.
type Credential struct {
	ID        string
	Secret    string
	Status    CredentialStatus
	CreatedAt time.Time
}

// Payload is the value written into a secret version.
type Payload struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// Credential returns the credential described by the payload.
func (p Payload) Credential() Credential {
	return Credential{ID: p.AccessKeyID, Secret: p.SecretAccessKey, Status: CredentialActive}
}

// PayloadFor builds the payload stored for a freshly issued credential.
func PayloadFor(c Credential) Payload {
	return Payload{AccessKeyID: c.ID, SecretAccessKey: c.Secret}
}

// SecretVersion is one version of a secret record. Payload is nil when the
// version was obtained from a listing rather than a read.
type SecretVersion struct {
	ID        string
	Stages    []Stage
	Payload   *Payload
	CreatedAt time.Time
}

// HasStage reports whether the version carries the given stage label.
func (v SecretVersion) HasStage(stage Stage) bool {
	for _, s := range v.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// VersionSelector picks a version to read. An empty selector reads the
// current version; when both fields are set the version must hold the stage.
type VersionSelector struct {
	VersionID string
	Stage     Stage
}

// CredentialAuthority issues and retires credentials for a principal.
type CredentialAuthority interface {
	Create(ctx context.Context, principal string) (Credential, error)
	List(ctx context.Context, principal string) ([]Credential, error)
	Disable(ctx context.Context, principal, credentialID string) error
	Delete(ctx context.Context, principal, credentialID string) error

	// Authenticate exercises cred as the principal itself. It returns false
	// with a nil error when the authority rejects the credential.
	Authenticate(ctx context.Context, principal string, cred Credential) (bool, error)
}

// VersionedSecretStore keeps secret payloads in labelled versions.
type VersionedSecretStore interface {
	GetVersion(ctx context.Context, recordID string, sel VersionSelector) (SecretVersion, error)

	// ListVersions returns the labelled versions of the record, oldest first.
	ListVersions(ctx context.Context, recordID string) ([]SecretVersion, error)

	// PutVersion writes a new version. Replaying the same versionID with the
	// same payload must not create a second version.
	PutVersion(ctx context.Context, recordID, versionID string, payload Payload, stage Stage) error

	// MoveStage moves toLabel from fromVersionID onto toVersionID and leaves
	// fromVersionID labelled fromLabel. Retrying a completed move is harmless.
	MoveStage(ctx context.Context, recordID, fromVersionID, toVersionID string, fromLabel, toLabel Stage) error
}

// AlertSink receives failure reports. Delivery is best-effort.
type AlertSink interface {
	Publish(ctx context.Context, message string) error
}

// Notifier tells the credential owner that a rotation happened. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// accessKeyIDPattern matches long-term and temporary access key identifiers.
var accessKeyIDPattern = regexp.MustCompile(`^(AKIA|ASIA)[A-Z0-9]{12,124}$`)

// IsAccessKeyID reports whether id looks like an identifier issued by the
// authority, as opposed to a placeholder written when the record was seeded.
func IsAccessKeyID(id string) bool {
	return accessKeyIDPattern.MatchString(id)
}
