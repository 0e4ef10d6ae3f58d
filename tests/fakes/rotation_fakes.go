// Package fakes provides test doubles for keyrotate testing.
package fakes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/systmms/keyrotate/pkg/rotation"
)

// FakeAuthority is an in-memory CredentialAuthority. Like IAM it refuses to
// issue a third key for a principal.
type FakeAuthority struct {
	mu sync.Mutex

	// Keys maps principal to its keys in creation order.
	Keys map[string][]rotation.Credential

	// Rejected lists key ids that fail authentication although they exist.
	Rejected map[string]bool

	// Errors maps an operation name (Create, List, Disable, Delete, Authenticate) to an error to return.
	Errors map[string]error

	// Mock behaviors
	CreateFunc       func(ctx context.Context, principal string) (rotation.Credential, error)
	AuthenticateFunc func(ctx context.Context, principal string, cred rotation.Credential) (bool, error)

	// Recorded calls for verification, formatted as "Op:principal:keyID".
	Calls []string

	nextID int
}

// NewFakeAuthority creates an authority where principal holds the given keys.
func NewFakeAuthority(principal string, keyIDs ...string) *FakeAuthority {
	f := &FakeAuthority{
		Keys:     make(map[string][]rotation.Credential),
		Rejected: make(map[string]bool),
		Errors:   make(map[string]error),
	}
	for _, id := range keyIDs {
		f.AddKey(principal, id)
	}
	return f
}

// KeyID returns a well-formed fake access key id.
func KeyID(n int) string {
	return fmt.Sprintf("AKIAFAKE%012d", n)
}

// AddKey adds an active key for principal.
func (f *FakeAuthority) AddKey(principal, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys[principal] = append(f.Keys[principal], rotation.Credential{
		ID:        id,
		Secret:    "secret-" + id,
		Status:    rotation.CredentialActive,
		CreatedAt: time.Now(),
	})
}

// KeyIDs returns the ids of principal's keys in creation order.
func (f *FakeAuthority) KeyIDs(principal string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.Keys[principal]))
	for _, k := range f.Keys[principal] {
		ids = append(ids, k.ID)
	}
	return ids
}

// Key returns a key by id.
func (f *FakeAuthority) Key(principal, id string) (rotation.Credential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.Keys[principal] {
		if k.ID == id {
			return k, true
		}
	}
	return rotation.Credential{}, false
}

// CallCount returns how many recorded calls start with op.
func (f *FakeAuthority) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if len(c) >= len(op)+1 && c[:len(op)+1] == op+":" {
			n++
		}
	}
	return n
}

func (f *FakeAuthority) record(op, principal, id string) error {
	f.Calls = append(f.Calls, op+":"+principal+":"+id)
	return f.Errors[op]
}

// Create issues a new key.
func (f *FakeAuthority) Create(ctx context.Context, principal string) (rotation.Credential, error) {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, principal)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Create", principal, ""); err != nil {
		return rotation.Credential{}, err
	}
	if len(f.Keys[principal]) >= 2 {
		return rotation.Credential{}, fmt.Errorf("LimitExceeded: cannot exceed quota for AccessKeysPerUser: 2")
	}

	f.nextID++
	cred := rotation.Credential{
		ID:        KeyID(1000 + f.nextID),
		Secret:    fmt.Sprintf("fake-secret-%d", f.nextID),
		Status:    rotation.CredentialActive,
		CreatedAt: time.Now(),
	}
	f.Keys[principal] = append(f.Keys[principal], cred)
	return cred, nil
}

// List returns principal's keys without secrets.
func (f *FakeAuthority) List(ctx context.Context, principal string) ([]rotation.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("List", principal, ""); err != nil {
		return nil, err
	}
	out := make([]rotation.Credential, 0, len(f.Keys[principal]))
	for _, k := range f.Keys[principal] {
		k.Secret = ""
		out = append(out, k)
	}
	return out, nil
}

// Disable marks a key inactive.
func (f *FakeAuthority) Disable(ctx context.Context, principal, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Disable", principal, id); err != nil {
		return err
	}
	keys := f.Keys[principal]
	for i := range keys {
		if keys[i].ID == id {
			keys[i].Status = rotation.CredentialInactive
			return nil
		}
	}
	return fmt.Errorf("access key %s: %w", id, rotation.ErrCredentialNotFound)
}

// Delete removes a key.
func (f *FakeAuthority) Delete(ctx context.Context, principal, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Delete", principal, id); err != nil {
		return err
	}
	keys := f.Keys[principal]
	for i := range keys {
		if keys[i].ID == id {
			f.Keys[principal] = append(keys[:i:i], keys[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("access key %s: %w", id, rotation.ErrCredentialNotFound)
}

// Authenticate succeeds for existing, active, non-rejected keys whose secret matches.
func (f *FakeAuthority) Authenticate(ctx context.Context, principal string, cred rotation.Credential) (bool, error) {
	if f.AuthenticateFunc != nil {
		return f.AuthenticateFunc(ctx, principal, cred)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Authenticate", principal, cred.ID); err != nil {
		return false, err
	}
	if f.Rejected[cred.ID] {
		return false, nil
	}
	for _, k := range f.Keys[principal] {
		if k.ID == cred.ID {
			return k.Status == rotation.CredentialActive && k.Secret == cred.Secret, nil
		}
	}
	return false, nil
}

// FakeStore is an in-memory VersionedSecretStore with Secrets Manager
// labelling rules: a stage lives on one version at a time, and versions
// without any stage are no longer listed.
type FakeStore struct {
	mu sync.Mutex

	// Records maps record id to its versions in creation order.
	Records map[string][]*rotation.SecretVersion

	// Errors maps an operation name (GetVersion, ListVersions, PutVersion, MoveStage) to an error to return.
	Errors map[string]error

	// MoveStageFunc allows custom behavior for MoveStage
	MoveStageFunc func(ctx context.Context, recordID, fromVersionID, toVersionID string, fromLabel, toLabel rotation.Stage) error

	// Calls records operation names in order.
	Calls []string

	clock time.Time
}

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Records: make(map[string][]*rotation.SecretVersion),
		Errors:  make(map[string]error),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Seed adds a version to a record with the given stages.
func (f *FakeStore) Seed(recordID, versionID, keyID string, stages ...rotation.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	f.Records[recordID] = append(f.Records[recordID], &rotation.SecretVersion{
		ID:        versionID,
		Stages:    append([]rotation.Stage(nil), stages...),
		Payload:   &rotation.Payload{AccessKeyID: keyID, SecretAccessKey: "secret-" + keyID},
		CreatedAt: f.clock,
	})
}

// StagesOf returns a map of version id to stages for the labelled versions.
func (f *FakeStore) StagesOf(recordID string) map[string][]rotation.Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]rotation.Stage)
	for _, v := range f.Records[recordID] {
		if len(v.Stages) > 0 {
			stages := append([]rotation.Stage(nil), v.Stages...)
			sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
			out[v.ID] = stages
		}
	}
	return out
}

// Version returns a copy of a stored version.
func (f *FakeStore) Version(recordID, versionID string) (rotation.SecretVersion, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v := f.find(recordID, versionID); v != nil {
		return copyVersion(v), true
	}
	return rotation.SecretVersion{}, false
}

// CallCount returns how often op was called.
func (f *FakeStore) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *FakeStore) find(recordID, versionID string) *rotation.SecretVersion {
	for _, v := range f.Records[recordID] {
		if v.ID == versionID {
			return v
		}
	}
	return nil
}

func (f *FakeStore) holder(recordID string, stage rotation.Stage) *rotation.SecretVersion {
	for _, v := range f.Records[recordID] {
		if v.HasStage(stage) {
			return v
		}
	}
	return nil
}

func (f *FakeStore) record(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errors[op]
}

// GetVersion reads a version by id and/or stage.
func (f *FakeStore) GetVersion(ctx context.Context, recordID string, sel rotation.VersionSelector) (rotation.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetVersion"); err != nil {
		return rotation.SecretVersion{}, err
	}
	if _, ok := f.Records[recordID]; !ok {
		return rotation.SecretVersion{}, fmt.Errorf("record %s: %w", recordID, rotation.ErrVersionNotFound)
	}

	var v *rotation.SecretVersion
	switch {
	case sel.VersionID != "":
		v = f.find(recordID, sel.VersionID)
		if v != nil && sel.Stage != "" && !v.HasStage(sel.Stage) {
			v = nil
		}
	case sel.Stage != "":
		v = f.holder(recordID, sel.Stage)
	default:
		v = f.holder(recordID, rotation.StageCurrent)
	}
	if v == nil {
		return rotation.SecretVersion{}, fmt.Errorf("%s %+v: %w", recordID, sel, rotation.ErrVersionNotFound)
	}
	return copyVersion(v), nil
}

// ListVersions lists labelled versions without payloads.
func (f *FakeStore) ListVersions(ctx context.Context, recordID string) ([]rotation.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListVersions"); err != nil {
		return nil, err
	}
	versions, ok := f.Records[recordID]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", recordID, rotation.ErrVersionNotFound)
	}
	var out []rotation.SecretVersion
	for _, v := range versions {
		if len(v.Stages) == 0 {
			continue
		}
		c := copyVersion(v)
		c.Payload = nil
		out = append(out, c)
	}
	return out, nil
}

// PutVersion adds a version, moving stage onto it.
func (f *FakeStore) PutVersion(ctx context.Context, recordID, versionID string, payload rotation.Payload, stage rotation.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PutVersion"); err != nil {
		return err
	}
	if _, ok := f.Records[recordID]; !ok {
		return fmt.Errorf("record %s: %w", recordID, rotation.ErrVersionNotFound)
	}
	if existing := f.find(recordID, versionID); existing != nil {
		if existing.Payload != nil && *existing.Payload == payload {
			return nil
		}
		return errors.New("ResourceExistsException: a version with this token already exists with different contents")
	}

	f.removeStage(recordID, stage)
	f.clock = f.clock.Add(time.Minute)
	p := payload
	f.Records[recordID] = append(f.Records[recordID], &rotation.SecretVersion{
		ID:        versionID,
		Stages:    []rotation.Stage{stage},
		Payload:   &p,
		CreatedAt: f.clock,
	})
	return nil
}

// MoveStage moves toLabel from one version to another.
func (f *FakeStore) MoveStage(ctx context.Context, recordID, fromVersionID, toVersionID string, fromLabel, toLabel rotation.Stage) error {
	if f.MoveStageFunc != nil {
		return f.MoveStageFunc(ctx, recordID, fromVersionID, toVersionID, fromLabel, toLabel)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MoveStage"); err != nil {
		return err
	}
	from := f.find(recordID, fromVersionID)
	to := f.find(recordID, toVersionID)
	if from == nil || to == nil {
		return fmt.Errorf("move %s -> %s: %w", fromVersionID, toVersionID, rotation.ErrVersionNotFound)
	}
	if !from.HasStage(toLabel) {
		if to.HasStage(toLabel) {
			return nil
		}
		return fmt.Errorf("InvalidParameterException: %s is not attached to version %s", toLabel, fromVersionID)
	}

	f.removeStage(recordID, toLabel)
	f.removeStage(recordID, fromLabel)
	to.Stages = withoutStage(to.Stages, rotation.StagePending)
	to.Stages = append(to.Stages, toLabel)
	from.Stages = append(from.Stages, fromLabel)
	return nil
}

func (f *FakeStore) removeStage(recordID string, stage rotation.Stage) {
	for _, v := range f.Records[recordID] {
		v.Stages = withoutStage(v.Stages, stage)
	}
}

func withoutStage(stages []rotation.Stage, stage rotation.Stage) []rotation.Stage {
	out := stages[:0:0]
	for _, s := range stages {
		if s != stage {
			out = append(out, s)
		}
	}
	return out
}

func copyVersion(v *rotation.SecretVersion) rotation.SecretVersion {
	c := *v
	c.Stages = append([]rotation.Stage(nil), v.Stages...)
	if v.Payload != nil {
		p := *v.Payload
		c.Payload = &p
	}
	return c
}

// FakeAlertSink records published alerts.
type FakeAlertSink struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

// Publish records message and returns Err.
func (f *FakeAlertSink) Publish(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, message)
	return f.Err
}

// Count returns the number of published alerts.
func (f *FakeAlertSink) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages)
}

// Notification is one message sent through FakeNotifier.
type Notification struct {
	Recipient string
	Subject   string
	Body      string
}

// FakeNotifier records sent notifications.
type FakeNotifier struct {
	mu   sync.Mutex
	Sent []Notification
	Err  error
}

// Send records the notification and returns Err.
func (f *FakeNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, Notification{Recipient: recipient, Subject: subject, Body: body})
	return f.Err
}
