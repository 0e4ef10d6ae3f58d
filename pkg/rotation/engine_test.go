package rotation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/keyrotate/internal/metrics"
	"github.com/systmms/keyrotate/pkg/rotation"
	"github.com/systmms/keyrotate/tests/fakes"
)

const (
	principal = "ci-deployer"
	record    = "/access-key/ci-deployer"
)

var (
	credA = fakes.KeyID(1)
	credB = fakes.KeyID(2)
	credC = fakes.KeyID(3)
)

type harness struct {
	authority *fakes.FakeAuthority
	store     *fakes.FakeStore
	alerts    *fakes.FakeAlertSink
	notifier  *fakes.FakeNotifier
	slept     []time.Duration
	engine    *rotation.Engine
}

func newHarness(t *testing.T, live ...string) *harness {
	t.Helper()

	h := &harness{
		authority: fakes.NewFakeAuthority(principal, live...),
		store:     fakes.NewFakeStore(),
		alerts:    &fakes.FakeAlertSink{},
		notifier:  &fakes.FakeNotifier{},
	}

	engine, err := rotation.NewEngine(
		rotation.Config{
			Principal:  principal,
			Recipient:  "owner@example.com",
			ConsoleURL: "https://console.aws.amazon.com/secretsmanager/home",
		},
		h.authority,
		h.store,
		rotation.WithAlertSink(h.alerts),
		rotation.WithNotifier(h.notifier),
		rotation.WithMetrics(metrics.New()),
		rotation.WithSleep(func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		}),
	)
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *harness) run(step rotation.Step, token string) error {
	return h.engine.Run(context.Background(), rotation.Invocation{RecordID: record, Step: step, Token: token})
}

func TestNewEngine_Validation(t *testing.T) {
	t.Parallel()

	authority := fakes.NewFakeAuthority(principal)
	store := fakes.NewFakeStore()

	tests := []struct {
		name      string
		cfg       rotation.Config
		authority rotation.CredentialAuthority
		store     rotation.VersionedSecretStore
		wantErr   string
	}{
		{name: "missing principal", cfg: rotation.Config{}, authority: authority, store: store, wantErr: "principal"},
		{name: "missing authority", cfg: rotation.Config{Principal: principal}, store: store, wantErr: "authority"},
		{name: "missing store", cfg: rotation.Config{Principal: principal}, authority: authority, wantErr: "store"},
		{name: "valid", cfg: rotation.Config{Principal: principal}, authority: authority, store: store},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine, err := rotation.NewEngine(tt.cfg, tt.authority, tt.store)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, principal, engine.Principal())
		})
	}
}

func TestPrecheck_SingleVersionAlwaysProceeds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		live []string
	}{
		{name: "no live keys", live: nil},
		{name: "current key live", live: []string{credA}},
		{name: "current key and orphan", live: []string{credA, credB}},
		{name: "placeholder current with two keys", live: []string{credB, credC}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.live...)
			current := credA
			if tt.name == "placeholder current with two keys" {
				current = "access_id_test"
			}
			h.store.Seed(record, "v1", current, rotation.StageCurrent)

			proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
			require.NoError(t, err)
			assert.True(t, proceed)
		})
	}
}

func TestPrecheck_InterruptedRotation(t *testing.T) {
	t.Parallel()

	t.Run("pending key live skips create", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credB, credC)
		h.store.Seed(record, "v1", credA, rotation.StagePrevious)
		h.store.Seed(record, "v2", credB, rotation.StageCurrent)
		h.store.Seed(record, "v3", credC, rotation.StagePending)

		proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
		require.NoError(t, err)
		assert.False(t, proceed)
		assert.Zero(t, h.alerts.Count())
		assert.Equal(t, []string{credB, credC}, h.authority.KeyIDs(principal))
	})

	t.Run("pending key missing is an integrity error", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credB)
		h.store.Seed(record, "v1", credA, rotation.StagePrevious)
		h.store.Seed(record, "v2", credB, rotation.StageCurrent)
		h.store.Seed(record, "v3", credC, rotation.StagePending)

		proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
		require.Error(t, err)
		assert.False(t, proceed)

		var ie *rotation.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.ErrorIs(t, err, rotation.ErrPendingCredentialMissing)
		assert.Equal(t, record, ie.RecordID)
		assert.Equal(t, 1, h.alerts.Count())
		assert.Contains(t, h.alerts.Messages[0], "Error in Precheck")
		assert.Zero(t, h.authority.CallCount("Delete"), "integrity errors must not repair anything")
	})

	t.Run("three versions without pending proceeds", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credB)
		h.store.Seed(record, "v1", credA, rotation.StagePrevious)
		h.store.Seed(record, "v2", credB, rotation.StageCurrent)
		h.store.Seed(record, "v3", credC, "custom")

		proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
		require.NoError(t, err)
		assert.True(t, proceed)
	})
}

func TestPrecheck_DeletesOrphanKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		versions int
		orphan   string
	}{
		{name: "one version", versions: 1, orphan: credB},
		{name: "two versions", versions: 2, orphan: credC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.orphan, credA)
			if tt.versions == 2 {
				h.store.Seed(record, "v0", fakes.KeyID(99), rotation.StagePrevious)
			}
			h.store.Seed(record, "v1", credA, rotation.StageCurrent)

			proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
			require.NoError(t, err)
			assert.True(t, proceed)
			assert.Equal(t, []string{credA}, h.authority.KeyIDs(principal))
			assert.Equal(t, 1, h.authority.CallCount("Delete"))
		})
	}
}

func TestPrecheck_LeavesKeysWhenCurrentIsNotLive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credB, credC)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)

	proceed, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Equal(t, []string{credB, credC}, h.authority.KeyIDs(principal))
}

func TestPrecheck_OnlyReconcilesCreate(t *testing.T) {
	t.Parallel()

	for _, step := range []rotation.Step{rotation.StepSetCredential, rotation.StepValidateCredential, rotation.StepPromoteAndRevoke} {
		step := step
		t.Run(step.String(), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, credA, credB)
			h.store.Seed(record, "v1", credA, rotation.StageCurrent)
			h.store.Seed(record, "v2", credB, rotation.StagePending)

			proceed, err := h.engine.Precheck(context.Background(), record, step)
			require.NoError(t, err)
			assert.True(t, proceed)
			assert.Len(t, h.authority.KeyIDs(principal), 2, "the pending key must survive later steps")
		})
	}
}

func TestPrecheck_CollaboratorFailures(t *testing.T) {
	t.Parallel()

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)
		h.store.Errors["ListVersions"] = errors.New("throttled")

		_, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
		var se *rotation.StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "ListVersions", se.Op)
		assert.Equal(t, 1, h.alerts.Count())
	})

	t.Run("authority failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)
		h.authority.Errors["List"] = errors.New("access denied")

		_, err := h.engine.Precheck(context.Background(), record, rotation.StepCreateCredential)
		var ae *rotation.AuthorityError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, principal, ae.Principal)
		assert.Equal(t, 1, h.alerts.Count())
	})
}

func TestCreateCredential(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)

	require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))

	keys := h.authority.KeyIDs(principal)
	require.Len(t, keys, 2)
	assert.Equal(t, map[string][]rotation.Stage{
		"v1": {rotation.StageCurrent},
		"v2": {rotation.StagePending},
	}, h.store.StagesOf(record))

	v2, ok := h.store.Version(record, "v2")
	require.True(t, ok)
	require.NotNil(t, v2.Payload)
	assert.Equal(t, keys[1], v2.Payload.AccessKeyID)
	created, _ := h.authority.Key(principal, keys[1])
	assert.Equal(t, created.Secret, v2.Payload.SecretAccessKey)
}

func TestCreateCredential_RetryIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v0", fakes.KeyID(98), rotation.StagePrevious)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)

	require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))
	require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))

	assert.Equal(t, 1, h.authority.CallCount("Create"), "a replayed create must not issue a second key")
	assert.Len(t, h.authority.KeyIDs(principal), 2)
}

func TestCreateCredential_HealsCrashBeforeStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)
	h.store.Errors["PutVersion"] = errors.New("connection reset")

	err := h.run(rotation.StepCreateCredential, "v2")
	var se *rotation.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "v2", se.VersionID)
	assert.Len(t, h.authority.KeyIDs(principal), 2, "the issued key is orphaned")

	delete(h.store.Errors, "PutVersion")
	require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))

	keys := h.authority.KeyIDs(principal)
	require.Len(t, keys, 2)
	assert.Equal(t, credA, keys[0])
	v2, ok := h.store.Version(record, "v2")
	require.True(t, ok)
	assert.Equal(t, keys[1], v2.Payload.AccessKeyID, "the orphan was replaced by the stored key")
}

func TestValidateCredential(t *testing.T) {
	t.Parallel()

	t.Run("pending key authenticates", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)
		require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))
		before := h.store.StagesOf(record)
		keysBefore := h.authority.KeyIDs(principal)

		require.NoError(t, h.run(rotation.StepValidateCredential, "v2"))

		assert.Equal(t, []time.Duration{rotation.DefaultGracePeriod}, h.slept)
		assert.Equal(t, before, h.store.StagesOf(record))
		assert.Equal(t, keysBefore, h.authority.KeyIDs(principal))
	})

	t.Run("rejected key fails validation", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)
		require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))
		pending := h.authority.KeyIDs(principal)[1]
		h.authority.Rejected[pending] = true

		err := h.run(rotation.StepValidateCredential, "v2")
		var vf *rotation.ValidationFailure
		require.ErrorAs(t, err, &vf)
		assert.Equal(t, pending, vf.CredentialID)
		assert.ErrorIs(t, err, rotation.ErrCredentialRejected)
		assert.Equal(t, 1, h.alerts.Count())
		assert.Len(t, h.authority.KeyIDs(principal), 2, "validation must not mutate the authority")
	})

	t.Run("token without pending stage", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)

		err := h.run(rotation.StepValidateCredential, "v1")
		var se *rotation.StoreError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, rotation.ErrVersionNotFound)
	})

	t.Run("authentication call fails", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, credA)
		h.store.Seed(record, "v1", credA, rotation.StageCurrent)
		require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))
		h.authority.Errors["Authenticate"] = errors.New("endpoint unreachable")

		err := h.run(rotation.StepValidateCredential, "v2")
		var ae *rotation.AuthorityError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "AuthenticateKey", ae.Op)
	})
}

func TestPromoteAndRevoke_FullCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)

	require.NoError(t, h.run(rotation.StepCreateCredential, "v2"))
	credBID := h.authority.KeyIDs(principal)[1]
	assert.Equal(t, []string{credA, credBID}, h.authority.KeyIDs(principal))

	require.NoError(t, h.run(rotation.StepSetCredential, "v2"))
	require.NoError(t, h.run(rotation.StepValidateCredential, "v2"))
	require.NoError(t, h.run(rotation.StepPromoteAndRevoke, "v2"))

	assert.Equal(t, map[string][]rotation.Stage{
		"v1": {rotation.StagePrevious},
		"v2": {rotation.StageCurrent},
	}, h.store.StagesOf(record))
	assert.Equal(t, []string{credBID}, h.authority.KeyIDs(principal))
	assert.Equal(t, 1, h.authority.CallCount("Disable"))
	assert.Zero(t, h.alerts.Count())

	require.Len(t, h.notifier.Sent, 1)
	assert.Equal(t, "owner@example.com", h.notifier.Sent[0].Recipient)
	assert.Equal(t, rotation.NotificationSubject, h.notifier.Sent[0].Subject)
	assert.Contains(t, h.notifier.Sent[0].Body, "https://console.aws.amazon.com/secretsmanager/home")
}

func TestPromoteAndRevoke_DisablesBeforeDelete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA, credB)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)
	h.store.Seed(record, "v2", credB, rotation.StagePending)

	require.NoError(t, h.run(rotation.StepPromoteAndRevoke, "v2"))

	var retire []string
	for _, c := range h.authority.Calls {
		if c == "Disable:"+principal+":"+credA || c == "Delete:"+principal+":"+credA {
			retire = append(retire, c)
		}
	}
	assert.Equal(t, []string{"Disable:" + principal + ":" + credA, "Delete:" + principal + ":" + credA}, retire)
}

func TestPromoteAndRevoke_IsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA, credB)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)
	h.store.Seed(record, "v2", credB, rotation.StagePending)

	want := map[string][]rotation.Stage{
		"v1": {rotation.StagePrevious},
		"v2": {rotation.StageCurrent},
	}

	for run := 1; run <= 2; run++ {
		require.NoError(t, h.run(rotation.StepPromoteAndRevoke, "v2"), "run %d", run)
		assert.Equal(t, want, h.store.StagesOf(record), "run %d", run)
		assert.Equal(t, []string{credB}, h.authority.KeyIDs(principal), "run %d", run)
	}
	assert.Equal(t, 1, h.store.CallCount("MoveStage"), "the second run must not move labels again")
	assert.Zero(t, h.alerts.Count())
}

func TestPromoteAndRevoke_NoCurrentVersion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA, credB)
	h.store.Seed(record, "v1", credA, rotation.StagePrevious)
	h.store.Seed(record, "v2", credB, rotation.StagePending)
	before := h.store.StagesOf(record)

	err := h.run(rotation.StepPromoteAndRevoke, "v2")
	require.Error(t, err)
	assert.True(t, rotation.IsIntegrityError(err))
	assert.ErrorIs(t, err, rotation.ErrNoCurrentVersion)

	assert.Equal(t, before, h.store.StagesOf(record), "store must be unmodified")
	assert.Zero(t, h.store.CallCount("MoveStage"))
	assert.Zero(t, h.authority.CallCount("Disable"))
	assert.Equal(t, 1, h.alerts.Count())
	assert.Empty(t, h.notifier.Sent)
}

func TestPromoteAndRevoke_UnknownToken(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)

	err := h.run(rotation.StepPromoteAndRevoke, "missing")
	assert.ErrorIs(t, err, rotation.ErrNoPendingVersion)
	assert.Equal(t, map[string][]rotation.Stage{"v1": {rotation.StageCurrent}}, h.store.StagesOf(record))
}

func TestPromoteAndRevoke_SkipsPlaceholderPrevious(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credB)
	h.store.Seed(record, "seed", "access_id_test", rotation.StageCurrent)
	h.store.Seed(record, "v2", credB, rotation.StagePending)

	require.NoError(t, h.run(rotation.StepPromoteAndRevoke, "v2"))

	assert.Zero(t, h.authority.CallCount("Disable"))
	assert.Zero(t, h.authority.CallCount("Delete"))
	assert.Equal(t, []string{credB}, h.authority.KeyIDs(principal))
	assert.Len(t, h.notifier.Sent, 1)
}

func TestPromoteAndRevoke_CustomCredentialIDPredicate(t *testing.T) {
	t.Parallel()

	const legacy = "legacy-key-0001"
	authority := fakes.NewFakeAuthority(principal, legacy, credB)
	store := fakes.NewFakeStore()
	store.Seed(record, "v1", legacy, rotation.StageCurrent)
	store.Seed(record, "v2", credB, rotation.StagePending)

	engine, err := rotation.NewEngine(rotation.Config{Principal: principal}, authority, store,
		rotation.WithCredentialIDPredicate(func(id string) bool {
			return id == legacy || rotation.IsAccessKeyID(id)
		}))
	require.NoError(t, err)

	require.NoError(t, engine.Run(context.Background(), rotation.Invocation{RecordID: record, Step: rotation.StepPromoteAndRevoke, Token: "v2"}))
	assert.Equal(t, 1, authority.CallCount("Disable"))
	assert.Equal(t, []string{credB}, authority.KeyIDs(principal))
}

func TestPromoteAndRevoke_DeleteFailureKeepsKeyDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA, credB)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)
	h.store.Seed(record, "v2", credB, rotation.StagePending)
	h.authority.Errors["Delete"] = errors.New("throttled")

	err := h.run(rotation.StepPromoteAndRevoke, "v2")
	var ae *rotation.AuthorityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "DeleteKey", ae.Op)
	assert.Equal(t, credA, ae.CredentialID)

	old, ok := h.authority.Key(principal, credA)
	require.True(t, ok)
	assert.Equal(t, rotation.CredentialInactive, old.Status)
	assert.Empty(t, h.notifier.Sent, "the owner is only notified after full completion")
}

func TestPromoteAndRevoke_NotifierFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA, credB)
	h.store.Seed(record, "v1", credA, rotation.StageCurrent)
	h.store.Seed(record, "v2", credB, rotation.StagePending)
	h.notifier.Err = errors.New("mailbox unavailable")

	require.NoError(t, h.run(rotation.StepPromoteAndRevoke, "v2"))
	assert.Len(t, h.notifier.Sent, 1)
}

func TestRun_AlertFailureDoesNotMaskError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, credA)
	h.store.Seed(record, "v1", credA, rotation.StagePrevious)
	h.alerts.Err = errors.New("topic deleted")

	err := h.run(rotation.StepPromoteAndRevoke, "v1")
	assert.ErrorIs(t, err, rotation.ErrNoCurrentVersion)
	assert.Equal(t, 1, h.alerts.Count())
}

func TestRun_RejectsBadInvocations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		inv     rotation.Invocation
		wantErr error
	}{
		{name: "unknown step", inv: rotation.Invocation{RecordID: record, Step: "rotateSecret", Token: "t"}, wantErr: rotation.ErrUnknownStep},
		{name: "missing token", inv: rotation.Invocation{RecordID: record, Step: rotation.StepCreateCredential}},
		{name: "missing record", inv: rotation.Invocation{Step: rotation.StepCreateCredential, Token: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, credA)
			err := h.engine.Run(context.Background(), tt.inv)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, h.store.Calls, "bad invocations fail before any I/O")
		})
	}
}

func TestRun_GracePeriodOverride(t *testing.T) {
	t.Parallel()

	authority := fakes.NewFakeAuthority(principal, credA)
	store := fakes.NewFakeStore()
	store.Seed(record, "v1", credA, rotation.StageCurrent)

	var slept time.Duration
	engine, err := rotation.NewEngine(rotation.Config{Principal: principal, GracePeriod: 3 * time.Second}, authority, store,
		rotation.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = d
			return nil
		}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, engine.Run(ctx, rotation.Invocation{RecordID: record, Step: rotation.StepCreateCredential, Token: "v2"}))
	require.NoError(t, engine.Run(ctx, rotation.Invocation{RecordID: record, Step: rotation.StepValidateCredential, Token: "v2"}))
	assert.Equal(t, 3*time.Second, slept)
}

func TestRun_CancelledDuringGracePeriod(t *testing.T) {
	t.Parallel()

	authority := fakes.NewFakeAuthority(principal, credA)
	store := fakes.NewFakeStore()
	store.Seed(record, "v1", credA, rotation.StageCurrent)
	engine, err := rotation.NewEngine(rotation.Config{Principal: principal, GracePeriod: time.Hour}, authority, store)
	require.NoError(t, err)

	require.NoError(t, engine.Run(context.Background(), rotation.Invocation{RecordID: record, Step: rotation.StepCreateCredential, Token: "v2"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = engine.Run(ctx, rotation.Invocation{RecordID: record, Step: rotation.StepValidateCredential, Token: "v2"})
	var vf *rotation.ValidationFailure
	require.ErrorAs(t, err, &vf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, authority.CallCount("Authenticate"))
}
