package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// IAMClientAPI defines the IAM operations used by IAMAuthority.
// This allows for mocking in tests
type IAMClientAPI interface {
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error)
	DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

// STSClientAPI defines the STS operation used by the sts probe.
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Probe names accepted by NewIAMAuthority.
const (
	ProbeIAM = "iam"
	ProbeSTS = "sts"
)

// Probe performs one authenticated call signed with cred and reports whether
// AWS accepted the key.
type Probe func(ctx context.Context, principal string, cred rotation.Credential) (bool, error)

// IAMAuthority is the CredentialAuthority backed by IAM access keys.
type IAMAuthority struct {
	client IAMClientAPI
	probe  Probe
	logger *logging.Logger
}

// IAMOption configures an IAMAuthority.
type IAMOption func(*IAMAuthority)

// WithIAMClient sets a custom IAM client (for testing)
func WithIAMClient(client IAMClientAPI) IAMOption {
	return func(a *IAMAuthority) {
		a.client = client
	}
}

// WithProbe replaces the authentication probe (for testing)
func WithProbe(p Probe) IAMOption {
	return func(a *IAMAuthority) {
		a.probe = p
	}
}

// WithIAMLogger sets the logger.
func WithIAMLogger(l *logging.Logger) IAMOption {
	return func(a *IAMAuthority) {
		a.logger = l
	}
}

// NewIAMAuthority creates an authority from cfg. probe selects how a new key
// is tested: "iam" lists the principal's keys, "sts" asks for the caller
// identity. Empty means "iam".
func NewIAMAuthority(cfg aws.Config, probe string, opts ...IAMOption) (*IAMAuthority, error) {
	a := &IAMAuthority{logger: logging.Discard()}
	for _, opt := range opts {
		opt(a)
	}

	if a.client == nil {
		a.client = iam.NewFromConfig(cfg)
	}
	if a.probe == nil {
		switch probe {
		case "", ProbeIAM:
			a.probe = IAMProbe(func(c aws.Config) IAMClientAPI { return iam.NewFromConfig(c) }, cfg)
		case ProbeSTS:
			a.probe = STSProbe(func(c aws.Config) STSClientAPI { return sts.NewFromConfig(c) }, cfg)
		default:
			return nil, fmt.Errorf("unknown validation probe %q (want %q or %q)", probe, ProbeIAM, ProbeSTS)
		}
	}
	return a, nil
}

// Create issues a new access key. IAM refuses a third key per user, which the
// engine's precheck avoids by removing untracked keys first.
func (a *IAMAuthority) Create(ctx context.Context, principal string) (rotation.Credential, error) {
	out, err := a.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(principal)})
	if err != nil {
		return rotation.Credential{}, fmt.Errorf("failed to create access key: %w", err)
	}
	if out.AccessKey == nil {
		return rotation.Credential{}, fmt.Errorf("CreateAccessKey returned no key for %s", principal)
	}

	k := out.AccessKey
	cred := rotation.Credential{
		ID:     aws.ToString(k.AccessKeyId),
		Secret: aws.ToString(k.SecretAccessKey),
		Status: rotation.CredentialStatus(k.Status),
	}
	if k.CreateDate != nil {
		cred.CreatedAt = *k.CreateDate
	}
	return cred, nil
}

// List returns every access key of principal, following pagination.
func (a *IAMAuthority) List(ctx context.Context, principal string) ([]rotation.Credential, error) {
	var creds []rotation.Credential

	paginator := iam.NewListAccessKeysPaginator(a.client, &iam.ListAccessKeysInput{UserName: aws.String(principal)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list access keys: %w", err)
		}
		for _, m := range page.AccessKeyMetadata {
			cred := rotation.Credential{
				ID:     aws.ToString(m.AccessKeyId),
				Status: rotation.CredentialStatus(m.Status),
			}
			if m.CreateDate != nil {
				cred.CreatedAt = *m.CreateDate
			}
			creds = append(creds, cred)
		}
	}
	return creds, nil
}

// Disable marks a key inactive.
func (a *IAMAuthority) Disable(ctx context.Context, principal, id string) error {
	_, err := a.client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		UserName:    aws.String(principal),
		AccessKeyId: aws.String(id),
		Status:      iamtypes.StatusTypeInactive,
	})
	if err != nil {
		if hasCode(err, codeNoSuchEntity) {
			return credentialNotFound(id, err)
		}
		return fmt.Errorf("failed to disable access key %s: %w", id, err)
	}
	return nil
}

// Delete removes a key.
func (a *IAMAuthority) Delete(ctx context.Context, principal, id string) error {
	_, err := a.client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    aws.String(principal),
		AccessKeyId: aws.String(id),
	})
	if err != nil {
		if hasCode(err, codeNoSuchEntity) {
			return credentialNotFound(id, err)
		}
		return fmt.Errorf("failed to delete access key %s: %w", id, err)
	}
	return nil
}

// Authenticate runs the configured probe with cred.
func (a *IAMAuthority) Authenticate(ctx context.Context, principal string, cred rotation.Credential) (bool, error) {
	ok, err := a.probe(ctx, principal, cred)
	if err != nil {
		return false, err
	}
	if !ok {
		a.logger.Warn("AWS rejected access key %s for %s", cred.ID, principal)
	}
	return ok, nil
}

// IAMProbe lists the principal's access keys while signed with the new key.
// newClient builds the client from a config carrying the new key.
func IAMProbe(newClient func(aws.Config) IAMClientAPI, base aws.Config) Probe {
	return func(ctx context.Context, principal string, cred rotation.Credential) (bool, error) {
		client := newClient(withStaticCredentials(base, cred.ID, cred.Secret))
		_, err := client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: aws.String(principal)})
		if err != nil {
			if isRejection(err) {
				return false, nil
			}
			return false, fmt.Errorf("iam probe failed: %w", err)
		}
		return true, nil
	}
}

// STSProbe asks STS who the new key belongs to. The key is accepted only when
// the caller is the principal itself.
func STSProbe(newClient func(aws.Config) STSClientAPI, base aws.Config) Probe {
	return func(ctx context.Context, principal string, cred rotation.Credential) (bool, error) {
		client := newClient(withStaticCredentials(base, cred.ID, cred.Secret))
		out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			if isRejection(err) {
				return false, nil
			}
			return false, fmt.Errorf("sts probe failed: %w", err)
		}
		return isUserARN(aws.ToString(out.Arn), principal), nil
	}
}

// isUserARN reports whether arn names the IAM user principal, with or
// without a path: arn:aws:iam::123456789012:user/ops/ci-deployer.
func isUserARN(arn, principal string) bool {
	_, resource, ok := strings.Cut(arn, ":user/")
	if !ok {
		return false
	}
	return resource == principal || strings.HasSuffix(resource, "/"+principal)
}
