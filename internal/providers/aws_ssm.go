package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations
// This allows for mocking in tests
type SSMClientAPI interface {
	GetParameterHistory(ctx context.Context, params *ssm.GetParameterHistoryInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterHistoryOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	LabelParameterVersion(ctx context.Context, params *ssm.LabelParameterVersionInput, optFns ...func(*ssm.Options)) (*ssm.LabelParameterVersionOutput, error)
	UnlabelParameterVersion(ctx context.Context, params *ssm.UnlabelParameterVersionInput, optFns ...func(*ssm.Options)) (*ssm.UnlabelParameterVersionOutput, error)
}

// Parameter labels standing in for the staging labels. SSM reserves the
// "aws" prefix, so the stage names cannot be used verbatim.
const (
	ssmLabelCurrent  = "current"
	ssmLabelPending  = "pending"
	ssmLabelPrevious = "previous"

	// ssmTokenLabelPrefix marks the label carrying the rotation token of a version.
	ssmTokenLabelPrefix = "token-"
)

var stageLabels = map[rotation.Stage]string{
	rotation.StageCurrent:  ssmLabelCurrent,
	rotation.StagePending:  ssmLabelPending,
	rotation.StagePrevious: ssmLabelPrevious,
}

// ParameterStore is the VersionedSecretStore backed by a SecureString
// parameter. Each parameter version is a secret version. The version id is
// the rotation token, kept as a "token-<id>" label; versions written outside
// the rotator are identified by their version number.
type ParameterStore struct {
	client SSMClientAPI
	keyID  string
	logger *logging.Logger
}

// SSMStoreOption is a functional option for configuring a ParameterStore.
type SSMStoreOption func(*ParameterStore)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) SSMStoreOption {
	return func(p *ParameterStore) {
		p.client = client
	}
}

// WithKMSKey encrypts new parameter versions with a customer managed key.
func WithKMSKey(keyID string) SSMStoreOption {
	return func(p *ParameterStore) {
		p.keyID = keyID
	}
}

// WithSSMLogger sets the logger.
func WithSSMLogger(l *logging.Logger) SSMStoreOption {
	return func(p *ParameterStore) {
		p.logger = l
	}
}

// NewParameterStore creates a store from cfg.
func NewParameterStore(cfg aws.Config, opts ...SSMStoreOption) *ParameterStore {
	p := &ParameterStore{logger: logging.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = ssm.NewFromConfig(cfg)
	}
	return p
}

type parameterVersion struct {
	number  int64
	labels  []string
	value   string
	version rotation.SecretVersion
}

// history returns every version of the parameter, oldest first.
func (p *ParameterStore) history(ctx context.Context, name string) ([]parameterVersion, error) {
	var out []parameterVersion

	paginator := ssm.NewGetParameterHistoryPaginator(p.client, &ssm.GetParameterHistoryInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if hasCode(err, codeParameterNotFound) {
				return nil, versionNotFound(name, err)
			}
			return nil, fmt.Errorf("failed to read parameter history: %w", err)
		}
		for _, h := range page.Parameters {
			out = append(out, toParameterVersion(h))
		}
	}
	return out, nil
}

func toParameterVersion(h types.ParameterHistory) parameterVersion {
	pv := parameterVersion{
		number: h.Version,
		labels: h.Labels,
		value:  aws.ToString(h.Value),
	}

	pv.version.ID = strconv.FormatInt(h.Version, 10)
	for _, l := range h.Labels {
		if token, ok := strings.CutPrefix(l, ssmTokenLabelPrefix); ok {
			pv.version.ID = token
			continue
		}
		for stage, label := range stageLabels {
			if l == label {
				pv.version.Stages = append(pv.version.Stages, stage)
			}
		}
	}
	if h.LastModifiedDate != nil {
		pv.version.CreatedAt = *h.LastModifiedDate
	}
	return pv
}

func findParameterVersion(versions []parameterVersion, sel rotation.VersionSelector) *parameterVersion {
	stage := sel.Stage
	if sel.VersionID == "" && stage == "" {
		stage = rotation.StageCurrent
	}
	for i := range versions {
		v := &versions[i]
		if sel.VersionID != "" && v.version.ID != sel.VersionID {
			continue
		}
		if stage != "" && !v.version.HasStage(stage) {
			continue
		}
		return v
	}
	return nil
}

// GetVersion reads one version with its payload.
func (p *ParameterStore) GetVersion(ctx context.Context, recordID string, sel rotation.VersionSelector) (rotation.SecretVersion, error) {
	versions, err := p.history(ctx, recordID)
	if err != nil {
		return rotation.SecretVersion{}, err
	}

	pv := findParameterVersion(versions, sel)
	if pv == nil {
		return rotation.SecretVersion{}, fmt.Errorf("parameter %s has no version matching %+v: %w", recordID, sel, rotation.ErrVersionNotFound)
	}

	payload, err := rotation.DecodePayload([]byte(pv.value))
	if err != nil {
		return rotation.SecretVersion{}, fmt.Errorf("parameter %s version %d: %w", recordID, pv.number, err)
	}
	v := pv.version
	v.Payload = &payload
	return v, nil
}

// ListVersions lists versions holding a stage label, oldest first.
func (p *ParameterStore) ListVersions(ctx context.Context, recordID string) ([]rotation.SecretVersion, error) {
	versions, err := p.history(ctx, recordID)
	if err != nil {
		return nil, err
	}

	var out []rotation.SecretVersion
	for _, pv := range versions {
		if len(pv.version.Stages) > 0 {
			out = append(out, pv.version)
		}
	}
	return out, nil
}

// PutVersion writes payload as a new parameter version labelled with stage
// and the token. SSM has no request tokens, so a replay is detected through
// the token label.
func (p *ParameterStore) PutVersion(ctx context.Context, recordID, versionID string, payload rotation.Payload, stage rotation.Stage) error {
	label, ok := stageLabels[stage]
	if !ok {
		return fmt.Errorf("unsupported stage %q", stage)
	}
	body, err := rotation.EncodePayload(payload)
	if err != nil {
		return err
	}

	versions, err := p.history(ctx, recordID)
	if err != nil {
		return err
	}
	if existing := findParameterVersion(versions, rotation.VersionSelector{VersionID: versionID}); existing != nil {
		if existing.value == body {
			p.logger.Debug("Parameter %s already holds version %s", recordID, versionID)
			return nil
		}
		return fmt.Errorf("version %s of parameter %s already exists with different contents", versionID, recordID)
	}

	input := &ssm.PutParameterInput{
		Name:      aws.String(recordID),
		Value:     aws.String(body),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if p.keyID != "" {
		input.KeyId = aws.String(p.keyID)
	}
	out, err := p.client.PutParameter(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to put parameter: %w", err)
	}

	return p.label(ctx, recordID, out.Version, label, ssmTokenLabelPrefix+versionID)
}

// MoveStage moves toLabel onto toVersionID and fromLabel onto fromVersionID.
// Attaching a label in SSM detaches it from any other version.
func (p *ParameterStore) MoveStage(ctx context.Context, recordID, fromVersionID, toVersionID string, fromLabel, toLabel rotation.Stage) error {
	toName, ok := stageLabels[toLabel]
	if !ok {
		return fmt.Errorf("unsupported stage %q", toLabel)
	}
	fromName, ok := stageLabels[fromLabel]
	if !ok {
		return fmt.Errorf("unsupported stage %q", fromLabel)
	}

	versions, err := p.history(ctx, recordID)
	if err != nil {
		return err
	}
	from := findParameterVersion(versions, rotation.VersionSelector{VersionID: fromVersionID})
	to := findParameterVersion(versions, rotation.VersionSelector{VersionID: toVersionID})
	if from == nil || to == nil {
		return fmt.Errorf("move %s -> %s on %s: %w", fromVersionID, toVersionID, recordID, rotation.ErrVersionNotFound)
	}
	if !from.version.HasStage(toLabel) {
		if to.version.HasStage(toLabel) {
			return nil
		}
		return fmt.Errorf("%s is not attached to version %s of %s", toLabel, fromVersionID, recordID)
	}

	if err := p.label(ctx, recordID, to.number, toName); err != nil {
		return err
	}
	if err := p.label(ctx, recordID, from.number, fromName); err != nil {
		return err
	}

	if to.version.HasStage(rotation.StagePending) {
		_, err := p.client.UnlabelParameterVersion(ctx, &ssm.UnlabelParameterVersionInput{
			Name:             aws.String(recordID),
			ParameterVersion: aws.Int64(to.number),
			Labels:           []string{ssmLabelPending},
		})
		if err != nil {
			return fmt.Errorf("failed to remove %s from parameter version %d: %w", ssmLabelPending, to.number, err)
		}
	}
	return nil
}

func (p *ParameterStore) label(ctx context.Context, name string, version int64, labels ...string) error {
	out, err := p.client.LabelParameterVersion(ctx, &ssm.LabelParameterVersionInput{
		Name:             aws.String(name),
		ParameterVersion: aws.Int64(version),
		Labels:           labels,
	})
	if err != nil {
		if hasCode(err, codeParameterVersionNotFound) {
			return versionNotFound(name, err)
		}
		return fmt.Errorf("failed to label parameter version %d: %w", version, err)
	}
	if len(out.InvalidLabels) > 0 {
		return fmt.Errorf("SSM rejected labels %v on parameter %s", out.InvalidLabels, name)
	}
	return nil
}

// Provision creates the parameter with a placeholder payload labelled
// current. Parameter Store has no rotation schedule, so RotationLambda and
// RotateAfter are ignored; schedule `keyrotate rotate` externally instead.
func (p *ParameterStore) Provision(ctx context.Context, opts ProvisionOptions) error {
	if _, err := p.history(ctx, opts.RecordID); err == nil {
		p.logger.Info("Parameter %s already exists; leaving it unchanged", opts.RecordID)
		return nil
	} else if !errors.Is(err, rotation.ErrVersionNotFound) {
		return err
	}

	body, err := rotation.EncodePayload(placeholderPayload)
	if err != nil {
		return err
	}

	input := &ssm.PutParameterInput{
		Name:  aws.String(opts.RecordID),
		Value: aws.String(body),
		Type:  types.ParameterTypeSecureString,
	}
	if opts.Description != "" {
		input.Description = aws.String(opts.Description)
	}
	if p.keyID != "" {
		input.KeyId = aws.String(p.keyID)
	}
	out, err := p.client.PutParameter(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create parameter %s: %w", opts.RecordID, err)
	}

	if opts.RotationLambda != "" {
		p.logger.Warn("Parameter Store cannot invoke %s on a schedule; run 'keyrotate rotate' from a scheduler instead", opts.RotationLambda)
	}
	return p.label(ctx, opts.RecordID, out.Version, ssmLabelCurrent)
}
