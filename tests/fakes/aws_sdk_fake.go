package fakes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// APIError builds an AWS API error with the given code.
func APIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message, Fault: smithy.FaultClient}
}

// SMVersion is one version of a fake Secrets Manager secret.
type SMVersion struct {
	ID      string
	Value   string
	Stages  []string
	Created time.Time
}

// FakeSecretsManagerClient is an in-memory Secrets Manager with real staging
// label rules: a label is held by one version, moving AWSCURRENT labels the
// replaced version AWSPREVIOUS, and unlabelled versions are not listed.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to versions in creation order.
	Secrets map[string][]*SMVersion

	// Errors maps an operation name to an error to return.
	Errors map[string]error

	// PageSize limits ListSecretVersionIds results per page. Zero returns one page.
	PageSize int

	// Rotations records RotateSecret requests.
	Rotations []*secretsmanager.RotateSecretInput

	// Calls records operation names in order.
	Calls []string

	clock time.Time
}

// NewFakeSecretsManagerClient creates an empty client.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string][]*SMVersion),
		Errors:  make(map[string]error),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddVersion appends a version to a secret, creating it when needed.
func (f *FakeSecretsManagerClient) AddVersion(name, versionID, value string, stages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	f.Secrets[name] = append(f.Secrets[name], &SMVersion{
		ID:      versionID,
		Value:   value,
		Stages:  append([]string(nil), stages...),
		Created: f.clock,
	})
}

// StagesOf maps version id to labels for the labelled versions of a secret.
func (f *FakeSecretsManagerClient) StagesOf(name string) map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string)
	for _, v := range f.Secrets[name] {
		if len(v.Stages) > 0 {
			out[v.ID] = append([]string(nil), v.Stages...)
		}
	}
	return out
}

// Value returns the stored value of a version.
func (f *FakeSecretsManagerClient) Value(name, versionID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.Secrets[name] {
		if v.ID == versionID {
			return v.Value, true
		}
	}
	return "", false
}

func (f *FakeSecretsManagerClient) begin(op, name string) ([]*SMVersion, error) {
	f.Calls = append(f.Calls, op)
	if err := f.Errors[op]; err != nil {
		return nil, err
	}
	versions, ok := f.Secrets[name]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
		}
	}
	return versions, nil
}

// GetSecretValue reads by version id and/or stage, defaulting to AWSCURRENT.
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	versions, err := f.begin("GetSecretValue", name)
	if err != nil {
		return nil, err
	}

	id := aws.ToString(params.VersionId)
	stage := aws.ToString(params.VersionStage)
	if id == "" && stage == "" {
		stage = "AWSCURRENT"
	}
	for _, v := range versions {
		if id != "" && v.ID != id {
			continue
		}
		if stage != "" && !hasLabel(v.Stages, stage) {
			continue
		}
		created := v.Created
		return &secretsmanager.GetSecretValueOutput{
			Name:          aws.String(name),
			SecretString:  aws.String(v.Value),
			VersionId:     aws.String(v.ID),
			VersionStages: append([]string(nil), v.Stages...),
			CreatedDate:   &created,
		}, nil
	}
	return nil, &smtypes.ResourceNotFoundException{
		Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret value for VersionId: %s, VersionStage: %s", id, stage)),
	}
}

// ListSecretVersionIds lists labelled versions, newest first like AWS.
func (f *FakeSecretsManagerClient) ListSecretVersionIds(ctx context.Context, params *secretsmanager.ListSecretVersionIdsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretVersionIdsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	versions, err := f.begin("ListSecretVersionIds", name)
	if err != nil {
		return nil, err
	}

	var entries []smtypes.SecretVersionsListEntry
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if len(v.Stages) == 0 && !aws.ToBool(params.IncludeDeprecated) {
			continue
		}
		created := v.Created
		entries = append(entries, smtypes.SecretVersionsListEntry{
			VersionId:     aws.String(v.ID),
			VersionStages: append([]string(nil), v.Stages...),
			CreatedDate:   &created,
		})
	}

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(*params.NextToken)
	}
	end := len(entries)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}
	out := &secretsmanager.ListSecretVersionIdsOutput{Name: aws.String(name), Versions: entries[start:end]}
	if end < len(entries) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// PutSecretValue adds a version named by ClientRequestToken.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	versions, err := f.begin("PutSecretValue", name)
	if err != nil {
		return nil, err
	}

	id := aws.ToString(params.ClientRequestToken)
	value := aws.ToString(params.SecretString)
	for _, v := range versions {
		if v.ID == id {
			if v.Value == value {
				return &secretsmanager.PutSecretValueOutput{Name: aws.String(name), VersionId: aws.String(id)}, nil
			}
			return nil, &smtypes.ResourceExistsException{
				Message: aws.String("You can't modify an existing version, you can only create a new version."),
			}
		}
	}

	stages := params.VersionStages
	if len(stages) == 0 {
		stages = []string{"AWSCURRENT"}
	}
	for _, s := range stages {
		f.detach(name, s)
	}
	f.clock = f.clock.Add(time.Minute)
	f.Secrets[name] = append(f.Secrets[name], &SMVersion{ID: id, Value: value, Stages: append([]string(nil), stages...), Created: f.clock})
	return &secretsmanager.PutSecretValueOutput{Name: aws.String(name), VersionId: aws.String(id), VersionStages: stages}, nil
}

// UpdateSecretVersionStage moves or removes a staging label.
func (f *FakeSecretsManagerClient) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	versions, err := f.begin("UpdateSecretVersionStage", name)
	if err != nil {
		return nil, err
	}

	stage := aws.ToString(params.VersionStage)
	find := func(id string) *SMVersion {
		for _, v := range versions {
			if v.ID == id {
				return v
			}
		}
		return nil
	}

	var from, to *SMVersion
	if id := aws.ToString(params.RemoveFromVersionId); id != "" {
		from = find(id)
		if from == nil || !hasLabel(from.Stages, stage) {
			return nil, APIError("InvalidParameterException",
				fmt.Sprintf("The staging label %s is not attached to version %s", stage, id))
		}
	}
	if id := aws.ToString(params.MoveToVersionId); id != "" {
		to = find(id)
		if to == nil {
			return nil, &smtypes.ResourceNotFoundException{Message: aws.String("version not found: " + id)}
		}
		if from == nil && f.holder(name, stage) != nil && f.holder(name, stage) != to {
			return nil, APIError("InvalidParameterException",
				fmt.Sprintf("The staging label %s is attached to another version; specify RemoveFromVersionId", stage))
		}
	}

	if from != nil {
		from.Stages = removeLabel(from.Stages, stage)
	}
	if to != nil && !hasLabel(to.Stages, stage) {
		to.Stages = append(to.Stages, stage)
	}
	if stage == "AWSCURRENT" && from != nil && to != nil && from != to {
		f.detach(name, "AWSPREVIOUS")
		from.Stages = append(from.Stages, "AWSPREVIOUS")
	}
	return &secretsmanager.UpdateSecretVersionStageOutput{Name: aws.String(name)}, nil
}

// CreateSecret creates a secret with one AWSCURRENT version.
func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "CreateSecret")
	if err := f.Errors["CreateSecret"]; err != nil {
		return nil, err
	}
	name := aws.ToString(params.Name)
	if _, ok := f.Secrets[name]; ok {
		return nil, &smtypes.ResourceExistsException{Message: aws.String("The operation failed because the secret " + name + " already exists.")}
	}

	id := aws.ToString(params.ClientRequestToken)
	if id == "" {
		id = fmt.Sprintf("initial-%d", len(f.Secrets)+1)
	}
	f.clock = f.clock.Add(time.Minute)
	f.Secrets[name] = []*SMVersion{{ID: id, Value: aws.ToString(params.SecretString), Stages: []string{"AWSCURRENT"}, Created: f.clock}}
	return &secretsmanager.CreateSecretOutput{Name: aws.String(name), VersionId: aws.String(id)}, nil
}

// RotateSecret records the rotation configuration.
func (f *FakeSecretsManagerClient) RotateSecret(ctx context.Context, params *secretsmanager.RotateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.RotateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.begin("RotateSecret", aws.ToString(params.SecretId)); err != nil {
		return nil, err
	}
	f.Rotations = append(f.Rotations, params)
	return &secretsmanager.RotateSecretOutput{Name: params.SecretId}, nil
}

func (f *FakeSecretsManagerClient) holder(name, stage string) *SMVersion {
	for _, v := range f.Secrets[name] {
		if hasLabel(v.Stages, stage) {
			return v
		}
	}
	return nil
}

func (f *FakeSecretsManagerClient) detach(name, stage string) {
	for _, v := range f.Secrets[name] {
		v.Stages = removeLabel(v.Stages, stage)
	}
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func removeLabel(labels []string, label string) []string {
	out := labels[:0:0]
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

// FakeSSMClient is an in-memory Parameter Store with parameter history and
// label semantics: attaching a label detaches it from other versions.
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to their history, oldest first.
	Parameters map[string][]ssmtypes.ParameterHistory

	// Errors maps an operation name to an error to return.
	Errors map[string]error

	// PageSize limits GetParameterHistory results per page. Zero returns one page.
	PageSize int

	// Calls records operation names in order.
	Calls []string

	clock time.Time
}

// NewFakeSSMClient creates an empty client.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string][]ssmtypes.ParameterHistory),
		Errors:     make(map[string]error),
		clock:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddVersion appends a parameter version with the given labels.
func (f *FakeSSMClient) AddVersion(name, value string, labels ...string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendVersion(name, value, labels)
}

func (f *FakeSSMClient) appendVersion(name, value string, labels []string) int64 {
	for _, l := range labels {
		f.detach(name, l)
	}
	f.clock = f.clock.Add(time.Minute)
	modified := f.clock
	version := int64(len(f.Parameters[name]) + 1)
	f.Parameters[name] = append(f.Parameters[name], ssmtypes.ParameterHistory{
		Name:             aws.String(name),
		Value:            aws.String(value),
		Version:          version,
		Labels:           append([]string(nil), labels...),
		Type:             ssmtypes.ParameterTypeSecureString,
		LastModifiedDate: &modified,
	})
	return version
}

// LabelsOf maps version number to labels for the labelled versions.
func (f *FakeSSMClient) LabelsOf(name string) map[int64][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64][]string)
	for _, h := range f.Parameters[name] {
		if len(h.Labels) > 0 {
			out[h.Version] = append([]string(nil), h.Labels...)
		}
	}
	return out
}

func (f *FakeSSMClient) begin(op, name string) ([]ssmtypes.ParameterHistory, error) {
	f.Calls = append(f.Calls, op)
	if err := f.Errors[op]; err != nil {
		return nil, err
	}
	history, ok := f.Parameters[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("parameter " + name + " not found")}
	}
	return history, nil
}

func (f *FakeSSMClient) detach(name, label string) {
	history := f.Parameters[name]
	for i := range history {
		history[i].Labels = removeLabel(history[i].Labels, label)
	}
}

// GetParameterHistory pages through the versions of a parameter.
func (f *FakeSSMClient) GetParameterHistory(ctx context.Context, params *ssm.GetParameterHistoryInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterHistoryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history, err := f.begin("GetParameterHistory", aws.ToString(params.Name))
	if err != nil {
		return nil, err
	}

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(*params.NextToken)
	}
	end := len(history)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	page := make([]ssmtypes.ParameterHistory, 0, end-start)
	for _, h := range history[start:end] {
		h.Labels = append([]string(nil), h.Labels...)
		page = append(page, h)
	}
	out := &ssm.GetParameterHistoryOutput{Parameters: page}
	if end < len(history) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// PutParameter appends a version. Overwrite is required for existing parameters.
func (f *FakeSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "PutParameter")
	if err := f.Errors["PutParameter"]; err != nil {
		return nil, err
	}
	name := aws.ToString(params.Name)
	if _, ok := f.Parameters[name]; ok && !aws.ToBool(params.Overwrite) {
		return nil, APIError("ParameterAlreadyExists", "The parameter already exists.")
	}
	version := f.appendVersion(name, aws.ToString(params.Value), nil)
	return &ssm.PutParameterOutput{Version: version}, nil
}

// LabelParameterVersion attaches labels, rejecting names SSM reserves.
func (f *FakeSSMClient) LabelParameterVersion(ctx context.Context, params *ssm.LabelParameterVersionInput, optFns ...func(*ssm.Options)) (*ssm.LabelParameterVersionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.Name)
	history, err := f.begin("LabelParameterVersion", name)
	if err != nil {
		return nil, err
	}

	idx := int(aws.ToInt64(params.ParameterVersion)) - 1
	if idx < 0 || idx >= len(history) {
		return nil, APIError("ParameterVersionNotFound", "The specified parameter version was not found.")
	}

	out := &ssm.LabelParameterVersionOutput{ParameterVersion: aws.ToInt64(params.ParameterVersion)}
	for _, l := range params.Labels {
		lower := strings.ToLower(l)
		if strings.HasPrefix(lower, "aws") || strings.HasPrefix(lower, "ssm") || (l != "" && l[0] >= '0' && l[0] <= '9') {
			out.InvalidLabels = append(out.InvalidLabels, l)
			continue
		}
		f.detach(name, l)
		history[idx].Labels = append(history[idx].Labels, l)
	}
	return out, nil
}

// UnlabelParameterVersion removes labels from a version.
func (f *FakeSSMClient) UnlabelParameterVersion(ctx context.Context, params *ssm.UnlabelParameterVersionInput, optFns ...func(*ssm.Options)) (*ssm.UnlabelParameterVersionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.Name)
	history, err := f.begin("UnlabelParameterVersion", name)
	if err != nil {
		return nil, err
	}

	idx := int(aws.ToInt64(params.ParameterVersion)) - 1
	if idx < 0 || idx >= len(history) {
		return nil, APIError("ParameterVersionNotFound", "The specified parameter version was not found.")
	}

	out := &ssm.UnlabelParameterVersionOutput{}
	for _, l := range params.Labels {
		if !hasLabel(history[idx].Labels, l) {
			out.InvalidLabels = append(out.InvalidLabels, l)
			continue
		}
		history[idx].Labels = removeLabel(history[idx].Labels, l)
		out.RemovedLabels = append(out.RemovedLabels, l)
	}
	return out, nil
}

// FakeIAMClient is an in-memory IAM access key API. Like IAM it refuses a
// third key per user.
type FakeIAMClient struct {
	mu sync.Mutex

	// Keys maps user name to its keys in creation order.
	Keys map[string][]iamtypes.AccessKey

	// Errors maps an operation name to an error to return.
	Errors map[string]error

	// PageSize limits ListAccessKeys results per page. Zero returns one page.
	PageSize int

	// ListAccessKeysFunc allows custom behavior for ListAccessKeys
	ListAccessKeysFunc func(ctx context.Context, params *iam.ListAccessKeysInput) (*iam.ListAccessKeysOutput, error)

	// Calls records operation names in order.
	Calls []string

	next int
}

// NewFakeIAMClient creates a client where user holds the given key ids.
func NewFakeIAMClient(user string, keyIDs ...string) *FakeIAMClient {
	f := &FakeIAMClient{
		Keys:   make(map[string][]iamtypes.AccessKey),
		Errors: make(map[string]error),
	}
	for _, id := range keyIDs {
		created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		f.Keys[user] = append(f.Keys[user], iamtypes.AccessKey{
			UserName:        aws.String(user),
			AccessKeyId:     aws.String(id),
			SecretAccessKey: aws.String("secret-" + id),
			Status:          iamtypes.StatusTypeActive,
			CreateDate:      &created,
		})
	}
	return f
}

// KeyIDs returns the key ids of user in creation order.
func (f *FakeIAMClient) KeyIDs(user string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.Keys[user]))
	for _, k := range f.Keys[user] {
		ids = append(ids, aws.ToString(k.AccessKeyId))
	}
	return ids
}

// Status returns the status of a key.
func (f *FakeIAMClient) Status(user, id string) iamtypes.StatusType {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.Keys[user] {
		if aws.ToString(k.AccessKeyId) == id {
			return k.Status
		}
	}
	return ""
}

func (f *FakeIAMClient) begin(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errors[op]
}

func (f *FakeIAMClient) index(user, id string) int {
	for i, k := range f.Keys[user] {
		if aws.ToString(k.AccessKeyId) == id {
			return i
		}
	}
	return -1
}

func noSuchKey(user, id string) error {
	return APIError("NoSuchEntity", fmt.Sprintf("The Access Key with id %s cannot be found for user %s.", id, user))
}

// CreateAccessKey issues a key.
func (f *FakeIAMClient) CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateAccessKey"); err != nil {
		return nil, err
	}
	user := aws.ToString(params.UserName)
	if len(f.Keys[user]) >= 2 {
		return nil, APIError("LimitExceeded", "Cannot exceed quota for AccessKeysPerUser: 2")
	}

	f.next++
	created := time.Date(2024, 6, 1, 0, f.next, 0, 0, time.UTC)
	key := iamtypes.AccessKey{
		UserName:        aws.String(user),
		AccessKeyId:     aws.String(fmt.Sprintf("AKIANEW%013d", f.next)),
		SecretAccessKey: aws.String(fmt.Sprintf("new-secret-%d", f.next)),
		Status:          iamtypes.StatusTypeActive,
		CreateDate:      &created,
	}
	f.Keys[user] = append(f.Keys[user], key)
	return &iam.CreateAccessKeyOutput{AccessKey: &key}, nil
}

// ListAccessKeys pages through the key metadata of a user.
func (f *FakeIAMClient) ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error) {
	if f.ListAccessKeysFunc != nil {
		return f.ListAccessKeysFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListAccessKeys"); err != nil {
		return nil, err
	}
	keys := f.Keys[aws.ToString(params.UserName)]

	start := 0
	if params.Marker != nil {
		start, _ = strconv.Atoi(*params.Marker)
	}
	end := len(keys)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &iam.ListAccessKeysOutput{}
	for _, k := range keys[start:end] {
		out.AccessKeyMetadata = append(out.AccessKeyMetadata, iamtypes.AccessKeyMetadata{
			UserName:    k.UserName,
			AccessKeyId: k.AccessKeyId,
			Status:      k.Status,
			CreateDate:  k.CreateDate,
		})
	}
	if end < len(keys) {
		out.IsTruncated = true
		out.Marker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// UpdateAccessKey changes a key's status.
func (f *FakeIAMClient) UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateAccessKey"); err != nil {
		return nil, err
	}
	user, id := aws.ToString(params.UserName), aws.ToString(params.AccessKeyId)
	i := f.index(user, id)
	if i < 0 {
		return nil, noSuchKey(user, id)
	}
	f.Keys[user][i].Status = params.Status
	return &iam.UpdateAccessKeyOutput{}, nil
}

// DeleteAccessKey removes a key.
func (f *FakeIAMClient) DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteAccessKey"); err != nil {
		return nil, err
	}
	user, id := aws.ToString(params.UserName), aws.ToString(params.AccessKeyId)
	i := f.index(user, id)
	if i < 0 {
		return nil, noSuchKey(user, id)
	}
	keys := f.Keys[user]
	f.Keys[user] = append(keys[:i:i], keys[i+1:]...)
	return &iam.DeleteAccessKeyOutput{}, nil
}

// FakeSTSClient returns a fixed caller identity.
type FakeSTSClient struct {
	Arn   string
	Err   error
	Calls int
}

// GetCallerIdentity returns Arn or Err.
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Arn:     aws.String(f.Arn),
		Account: aws.String("123456789012"),
		UserId:  aws.String("AIDAFAKEUSER"),
	}, nil
}

// FakeSNSClient records published messages.
type FakeSNSClient struct {
	mu        sync.Mutex
	Published []*sns.PublishInput
	Err       error
}

// Publish records params and returns Err.
func (f *FakeSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, params)
	if f.Err != nil {
		return nil, f.Err
	}
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("msg-%d", len(f.Published)))}, nil
}

// FakeSESClient records sent emails.
type FakeSESClient struct {
	mu   sync.Mutex
	Sent []*sesv2.SendEmailInput
	Err  error
}

// SendEmail records params and returns Err.
func (f *FakeSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, params)
	if f.Err != nil {
		return nil, f.Err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String(fmt.Sprintf("email-%d", len(f.Sent)))}, nil
}
