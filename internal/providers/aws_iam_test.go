package providers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/keyrotate/internal/providers"
	"github.com/systmms/keyrotate/pkg/rotation"
	"github.com/systmms/keyrotate/tests/fakes"
)

const iamUser = "ci-deployer"

func newAuthority(t *testing.T, client *fakes.FakeIAMClient) *providers.IAMAuthority {
	t.Helper()
	a, err := providers.NewIAMAuthority(aws.Config{Region: "us-east-1"}, providers.ProbeIAM,
		providers.WithIAMClient(client),
		providers.WithProbe(func(context.Context, string, rotation.Credential) (bool, error) { return true, nil }),
	)
	require.NoError(t, err)
	return a
}

func TestIAMAuthority_CreateAndList(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeIAMClient(iamUser, "AKIAOLD0000000000001")
	a := newAuthority(t, client)
	ctx := context.Background()

	cred, err := a.Create(ctx, iamUser)
	require.NoError(t, err)
	assert.True(t, rotation.IsAccessKeyID(cred.ID))
	assert.NotEmpty(t, cred.Secret)
	assert.Equal(t, rotation.CredentialActive, cred.Status)

	live, err := a.List(ctx, iamUser)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "AKIAOLD0000000000001", live[0].ID)
	assert.Equal(t, cred.ID, live[1].ID)
	assert.Empty(t, live[1].Secret, "listing never returns secrets")

	_, err = a.Create(ctx, iamUser)
	require.Error(t, err, "IAM refuses a third key")
}

func TestIAMAuthority_ListFollowsPages(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeIAMClient(iamUser, "AKIAOLD0000000000001", "AKIAOLD0000000000002")
	client.PageSize = 1
	a := newAuthority(t, client)

	live, err := a.List(context.Background(), iamUser)
	require.NoError(t, err)
	assert.Len(t, live, 2)
	assert.Equal(t, 2, len(client.Calls))
}

func TestIAMAuthority_DisableAndDelete(t *testing.T) {
	t.Parallel()

	const id = "AKIAOLD0000000000001"
	client := fakes.NewFakeIAMClient(iamUser, id)
	a := newAuthority(t, client)
	ctx := context.Background()

	require.NoError(t, a.Disable(ctx, iamUser, id))
	assert.Equal(t, iamtypes.StatusTypeInactive, client.Status(iamUser, id))

	require.NoError(t, a.Delete(ctx, iamUser, id))
	assert.Empty(t, client.KeyIDs(iamUser))

	err := a.Disable(ctx, iamUser, id)
	assert.ErrorIs(t, err, rotation.ErrCredentialNotFound)
	err = a.Delete(ctx, iamUser, id)
	assert.ErrorIs(t, err, rotation.ErrCredentialNotFound)
}

func TestIAMAuthority_ServiceErrorsAreNotNotFound(t *testing.T) {
	t.Parallel()

	client := fakes.NewFakeIAMClient(iamUser, "AKIAOLD0000000000001")
	client.Errors["DeleteAccessKey"] = fakes.APIError("ServiceFailure", "internal error")
	a := newAuthority(t, client)

	err := a.Delete(context.Background(), iamUser, "AKIAOLD0000000000001")
	require.Error(t, err)
	assert.NotErrorIs(t, err, rotation.ErrCredentialNotFound)
}

func TestNewIAMAuthority_UnknownProbe(t *testing.T) {
	t.Parallel()

	_, err := providers.NewIAMAuthority(aws.Config{}, "ldap", providers.WithIAMClient(fakes.NewFakeIAMClient(iamUser)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ldap")
}

// signedAs reports the access key id cfg signs with.
func signedAs(t *testing.T, cfg aws.Config) string {
	t.Helper()
	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	return creds.AccessKeyID
}

func TestIAMProbe(t *testing.T) {
	t.Parallel()

	const good = "AKIANEW0000000000001"

	tests := []struct {
		name    string
		keyID   string
		listErr error
		want    bool
		wantErr bool
	}{
		{name: "accepted", keyID: good, want: true},
		{name: "unknown key", keyID: "AKIANEW0000000000002", listErr: fakes.APIError("InvalidClientTokenId", "The security token included in the request is invalid."), want: false},
		{name: "bad signature", keyID: good, listErr: fakes.APIError("SignatureDoesNotMatch", "signature mismatch"), want: false},
		{name: "service failure", keyID: good, listErr: fakes.APIError("ServiceUnavailable", "try again"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var usedKey string
			probe := providers.IAMProbe(func(cfg aws.Config) providers.IAMClientAPI {
				usedKey = signedAs(t, cfg)
				client := fakes.NewFakeIAMClient(iamUser, good)
				if tt.listErr != nil {
					client.Errors["ListAccessKeys"] = tt.listErr
				}
				return client
			}, aws.Config{Region: "us-east-1"})

			ok, err := probe(context.Background(), iamUser, rotation.Credential{ID: tt.keyID, Secret: "s"})
			assert.Equal(t, tt.keyID, usedKey, "probe must sign with the key under test")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSTSProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arn     string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "principal", arn: "arn:aws:iam::123456789012:user/ci-deployer", want: true},
		{name: "principal with path", arn: "arn:aws:iam::123456789012:user/ops/ci-deployer", want: true},
		{name: "different user", arn: "arn:aws:iam::123456789012:user/someone-else", want: false},
		{name: "suffix is not a match", arn: "arn:aws:iam::123456789012:user/old-ci-deployer", want: false},
		{name: "assumed role", arn: "arn:aws:sts::123456789012:assumed-role/admin/session", want: false},
		{name: "rejected", err: fakes.APIError("InvalidClientTokenId", "invalid"), want: false},
		{name: "network", err: errors.New("dial tcp: timeout"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			probe := providers.STSProbe(func(aws.Config) providers.STSClientAPI {
				return &fakes.FakeSTSClient{Arn: tt.arn, Err: tt.err}
			}, aws.Config{})

			ok, err := probe(context.Background(), iamUser, rotation.Credential{ID: "AKIANEW0000000000001", Secret: "s"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIAMAuthority_AuthenticateUsesProbe(t *testing.T) {
	t.Parallel()

	var probed rotation.Credential
	a, err := providers.NewIAMAuthority(aws.Config{}, "",
		providers.WithIAMClient(fakes.NewFakeIAMClient(iamUser)),
		providers.WithProbe(func(_ context.Context, principal string, cred rotation.Credential) (bool, error) {
			probed = cred
			return principal == iamUser, nil
		}))
	require.NoError(t, err)

	cred := rotation.Credential{ID: "AKIANEW0000000000001", Secret: "s"}
	ok, err := a.Authenticate(context.Background(), iamUser, cred)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cred, probed)

	ok, err = a.Authenticate(context.Background(), "other", cred)
	require.NoError(t, err)
	assert.False(t, ok)
}
