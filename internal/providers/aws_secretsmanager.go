package providers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager operations
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecretVersionIds(ctx context.Context, params *secretsmanager.ListSecretVersionIdsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretVersionIdsOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error)
}

// SecretsManagerStore is the VersionedSecretStore backed by Secrets Manager.
// Version ids are the rotation tokens and stages are the native staging labels.
type SecretsManagerStore struct {
	client SecretsManagerClientAPI
	logger *logging.Logger
}

// SecretsManagerOption configures a SecretsManagerStore.
type SecretsManagerOption func(*SecretsManagerStore)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) SecretsManagerOption {
	return func(s *SecretsManagerStore) {
		s.client = client
	}
}

// WithSecretsManagerLogger sets the logger.
func WithSecretsManagerLogger(l *logging.Logger) SecretsManagerOption {
	return func(s *SecretsManagerStore) {
		s.logger = l
	}
}

// NewSecretsManagerStore creates a store from cfg.
func NewSecretsManagerStore(cfg aws.Config, opts ...SecretsManagerOption) *SecretsManagerStore {
	s := &SecretsManagerStore{logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = secretsmanager.NewFromConfig(cfg)
	}
	return s
}

// GetVersion reads one version with its payload. An empty selector reads
// the current version.
func (s *SecretsManagerStore) GetVersion(ctx context.Context, recordID string, sel rotation.VersionSelector) (rotation.SecretVersion, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(recordID)}
	if sel.VersionID != "" {
		input.VersionId = aws.String(sel.VersionID)
	}
	if sel.Stage != "" {
		input.VersionStage = aws.String(string(sel.Stage))
	}

	out, err := s.client.GetSecretValue(ctx, input)
	if err != nil {
		if hasCode(err, codeResourceNotFound) {
			return rotation.SecretVersion{}, versionNotFound(recordID, err)
		}
		return rotation.SecretVersion{}, fmt.Errorf("failed to get secret value: %w", err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return rotation.SecretVersion{}, fmt.Errorf("secret '%s' has no value", recordID)
	}

	payload, err := rotation.DecodePayload(raw)
	if err != nil {
		return rotation.SecretVersion{}, fmt.Errorf("secret '%s' version %s: %w", recordID, aws.ToString(out.VersionId), err)
	}

	v := rotation.SecretVersion{
		ID:      aws.ToString(out.VersionId),
		Stages:  toStages(out.VersionStages),
		Payload: &payload,
	}
	if out.CreatedDate != nil {
		v.CreatedAt = *out.CreatedDate
	}
	return v, nil
}

// ListVersions lists the labelled versions oldest first. Versions without a
// staging label are deprecated and skipped.
func (s *SecretsManagerStore) ListVersions(ctx context.Context, recordID string) ([]rotation.SecretVersion, error) {
	var versions []rotation.SecretVersion

	paginator := secretsmanager.NewListSecretVersionIdsPaginator(s.client, &secretsmanager.ListSecretVersionIdsInput{
		SecretId: aws.String(recordID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if hasCode(err, codeResourceNotFound) {
				return nil, versionNotFound(recordID, err)
			}
			return nil, fmt.Errorf("failed to list secret versions: %w", err)
		}
		for _, entry := range page.Versions {
			if len(entry.VersionStages) == 0 {
				continue
			}
			versions = append(versions, fromListEntry(entry))
		}
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})
	return versions, nil
}

// PutVersion writes payload as version versionID. The version id is passed as
// ClientRequestToken, so a replay with identical content is accepted by AWS
// and a replay with different content fails with ResourceExistsException.
func (s *SecretsManagerStore) PutVersion(ctx context.Context, recordID, versionID string, payload rotation.Payload, stage rotation.Stage) error {
	body, err := rotation.EncodePayload(payload)
	if err != nil {
		return err
	}

	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(recordID),
		ClientRequestToken: aws.String(versionID),
		SecretString:       aws.String(body),
		VersionStages:      []string{string(stage)},
	})
	if err != nil {
		if hasCode(err, codeResourceExists) {
			return fmt.Errorf("version %s of '%s' already exists with different contents: %w", versionID, recordID, err)
		}
		return fmt.Errorf("failed to put secret value: %w", err)
	}
	return nil
}

// MoveStage moves toLabel from fromVersionID to toVersionID. Secrets Manager
// attaches fromLabel (AWSPREVIOUS for AWSCURRENT) to the old version itself.
// The pending label is then removed from the promoted version so that each
// label is held by exactly one version.
func (s *SecretsManagerStore) MoveStage(ctx context.Context, recordID, fromVersionID, toVersionID string, fromLabel, toLabel rotation.Stage) error {
	_, err := s.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(recordID),
		VersionStage:        aws.String(string(toLabel)),
		RemoveFromVersionId: aws.String(fromVersionID),
		MoveToVersionId:     aws.String(toVersionID),
	})
	if err != nil {
		return fmt.Errorf("failed to move %s to version %s: %w", toLabel, toVersionID, err)
	}

	if toLabel == rotation.StageCurrent && fromLabel != rotation.StagePrevious {
		s.logger.Warn("Secrets Manager always labels the replaced version %s; %s ignored", rotation.StagePrevious, fromLabel)
	}

	_, err = s.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            aws.String(recordID),
		VersionStage:        aws.String(string(rotation.StagePending)),
		RemoveFromVersionId: aws.String(toVersionID),
	})
	if err != nil && !hasCode(err, codeInvalidParameter) {
		return fmt.Errorf("failed to clear %s from version %s: %w", rotation.StagePending, toVersionID, err)
	}
	return nil
}

// ProvisionOptions describes a new rotated record.
type ProvisionOptions struct {
	RecordID       string
	RotationLambda string
	RotateAfter    time.Duration
	Description    string
}

// Provisioner creates a record ready for its first rotation.
type Provisioner interface {
	Provision(ctx context.Context, opts ProvisionOptions) error
}

// placeholderPayload seeds new records. Its id is not an access key id, so
// the first finish step has nothing to revoke.
var placeholderPayload = rotation.Payload{
	AccessKeyID:     "access_id_placeholder",
	SecretAccessKey: "secret_access_key_placeholder",
}

// Provision creates a record seeded with a placeholder payload and attaches
// the rotation schedule.
func (s *SecretsManagerStore) Provision(ctx context.Context, opts ProvisionOptions) error {
	body, err := rotation.EncodePayload(placeholderPayload)
	if err != nil {
		return err
	}

	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(opts.RecordID),
		SecretString: aws.String(body),
	}
	if opts.Description != "" {
		input.Description = aws.String(opts.Description)
	}
	if _, err := s.client.CreateSecret(ctx, input); err != nil {
		if !hasCode(err, codeResourceExists) {
			return fmt.Errorf("failed to create secret '%s': %w", opts.RecordID, err)
		}
		s.logger.Info("Secret %s already exists; updating its rotation schedule", opts.RecordID)
	}

	if opts.RotationLambda == "" {
		return nil
	}

	days := int64(opts.RotateAfter / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	_, err = s.client.RotateSecret(ctx, &secretsmanager.RotateSecretInput{
		SecretId:          aws.String(opts.RecordID),
		RotationLambdaARN: aws.String(opts.RotationLambda),
		RotationRules:     &types.RotationRulesType{AutomaticallyAfterDays: aws.Int64(days)},
		RotateImmediately: aws.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("failed to schedule rotation for '%s': %w", opts.RecordID, err)
	}
	return nil
}

func fromListEntry(entry types.SecretVersionsListEntry) rotation.SecretVersion {
	v := rotation.SecretVersion{
		ID:     aws.ToString(entry.VersionId),
		Stages: toStages(entry.VersionStages),
	}
	if entry.CreatedDate != nil {
		v.CreatedAt = *entry.CreatedDate
	}
	return v
}

func toStages(labels []string) []rotation.Stage {
	stages := make([]rotation.Stage, 0, len(labels))
	for _, l := range labels {
		stages = append(stages, rotation.Stage(l))
	}
	return stages
}
