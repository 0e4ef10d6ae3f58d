package rotation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/internal/metrics"
)

// interruptedVersionCount is the number of labelled versions a record holds
// when a create step ran but the cycle never finished: current, previous and pending.
const interruptedVersionCount = 3

// Precheck reconciles the record with the principal's live credentials
// before a step runs. It returns false when the step already took effect and
// must be skipped.
//
// Only the create step is reconciled. Between create and finish the principal
// legitimately holds two keys, so later steps must not treat that as drift.
func (e *Engine) Precheck(ctx context.Context, recordID string, step Step) (bool, error) {
	versions, err := invoke(ctx, e, "ListVersions", storeErr("ListVersions", recordID, ""),
		func(ctx context.Context) ([]SecretVersion, error) {
			return e.store.ListVersions(ctx, recordID)
		})
	if err != nil {
		return false, err
	}

	live, err := invoke(ctx, e, "ListKeys", e.authorityErr("ListKeys", ""),
		func(ctx context.Context) ([]Credential, error) {
			return e.authority.List(ctx, e.cfg.Principal)
		})
	if err != nil {
		return false, err
	}

	e.logger.Debug("Record %s has %d versions; principal has %d keys", recordID, len(versions), len(live))

	if step != StepCreateCredential {
		e.metrics.PrecheckOutcome(metrics.PrecheckProceed)
		return true, nil
	}

	if len(versions) == interruptedVersionCount {
		proceed, handled, err := e.checkInterrupted(ctx, recordID, versions, live)
		if handled || err != nil {
			return proceed, err
		}
	}

	if len(versions) <= 2 {
		healed, err := e.removeOrphans(ctx, recordID, live)
		if err != nil {
			return false, err
		}
		if healed {
			e.metrics.PrecheckOutcome(metrics.PrecheckHealed)
			return true, nil
		}
	}

	e.metrics.PrecheckOutcome(metrics.PrecheckProceed)
	return true, nil
}

// checkInterrupted handles a record left with a pending version. handled is
// false when no version carries the pending label.
func (e *Engine) checkInterrupted(ctx context.Context, recordID string, versions []SecretVersion, live []Credential) (proceed, handled bool, err error) {
	e.logger.Info("Record %s holds %d versions; checking for an interrupted rotation", recordID, len(versions))

	var pendingFound bool
	for _, v := range versions {
		if v.HasStage(StagePending) {
			pendingFound = true
			break
		}
	}
	if !pendingFound {
		return true, false, nil
	}

	pending, err := invoke(ctx, e, "GetPendingVersion", storeErr("GetPendingVersion", recordID, ""),
		func(ctx context.Context) (SecretVersion, error) {
			return e.store.GetVersion(ctx, recordID, VersionSelector{Stage: StagePending})
		})
	if err != nil {
		return false, true, err
	}
	if pending.Payload == nil {
		ierr := &IntegrityError{RecordID: recordID, Reason: "pending version has no payload", Err: ErrPendingCredentialMissing}
		e.metrics.PrecheckOutcome(metrics.PrecheckIntegrity)
		return false, true, e.fail(ctx, "Precheck", ierr)
	}

	if findCredential(live, pending.Payload.AccessKeyID) {
		e.logger.Info("Key %s matches the pending version; skipping create", pending.Payload.AccessKeyID)
		e.metrics.PrecheckOutcome(metrics.PrecheckSkip)
		return false, true, nil
	}

	ierr := &IntegrityError{
		RecordID: recordID,
		Reason:   fmt.Sprintf("pending version %s references key %s which is not live for %s", pending.ID, pending.Payload.AccessKeyID, e.cfg.Principal),
		Err:      ErrPendingCredentialMissing,
	}
	e.metrics.PrecheckOutcome(metrics.PrecheckIntegrity)
	return false, true, e.fail(ctx, "Precheck", ierr)
}

// removeOrphans deletes every live key the current version does not
// reference. It reports whether anything was deleted.
func (e *Engine) removeOrphans(ctx context.Context, recordID string, live []Credential) (bool, error) {
	if len(live) <= 1 {
		e.logger.Info("Principal %s has %d key(s); nothing to reconcile", e.cfg.Principal, len(live))
		return false, nil
	}

	current, err := invoke(ctx, e, "GetCurrentVersion", storeErr("GetCurrentVersion", recordID, ""),
		func(ctx context.Context) (SecretVersion, error) {
			return e.store.GetVersion(ctx, recordID, VersionSelector{Stage: StageCurrent})
		})
	if err != nil {
		return false, err
	}

	var currentID string
	if current.Payload != nil {
		currentID = current.Payload.AccessKeyID
	}

	// Deleting every key would lock the principal out; leave the
	// decision to whoever seeded the record.
	if !findCredential(live, currentID) {
		e.logger.Warn("Current version of %s references key %q which is not live; leaving %d keys untouched",
			recordID, currentID, len(live))
		return false, nil
	}

	e.logger.Info("Principal %s has %d keys; removing keys not tracked as current", e.cfg.Principal, len(live))

	var deleted bool
	for _, cred := range live {
		if cred.ID == currentID {
			continue
		}
		id := cred.ID
		err := invokeErr(ctx, e, "DeleteKey", e.authorityErr("DeleteKey", id), func(ctx context.Context) error {
			return e.authority.Delete(ctx, e.cfg.Principal, id)
		})
		if err != nil {
			return deleted, err
		}
		e.logger.Info("Access key %s has been deleted for user %s", id, e.cfg.Principal)
		e.metrics.OrphanDeleted()
		deleted = true
	}
	return deleted, nil
}

// CreateCredential issues a key and stores it as the pending version named
// token. Replays of the same token rely on the store rejecting or absorbing
// the duplicate write.
func (e *Engine) CreateCredential(ctx context.Context, recordID, token string) error {
	cred, err := invoke(ctx, e, "CreateKey", e.authorityErr("CreateKey", ""),
		func(ctx context.Context) (Credential, error) {
			return e.authority.Create(ctx, e.cfg.Principal)
		})
	if err != nil {
		return err
	}
	e.logger.Info("Access key %s has been created for user %s", cred.ID, e.cfg.Principal)

	err = invokeErr(ctx, e, "PutPendingVersion", storeErr("PutPendingVersion", recordID, token),
		func(ctx context.Context) error {
			return e.store.PutVersion(ctx, recordID, token, PayloadFor(cred), StagePending)
		})
	if err != nil {
		return err
	}

	e.logger.Info("Secret version %s added to %s for access key %s (secret %s)",
		token, recordID, cred.ID, logging.Secret(cred.Secret))
	return nil
}

// ValidateCredential waits for propagation, then authenticates as the
// principal with the pending key. It changes nothing in either collaborator.
func (e *Engine) ValidateCredential(ctx context.Context, recordID, token string) error {
	pending, err := invoke(ctx, e, "GetPendingVersion", storeErr("GetPendingVersion", recordID, token),
		func(ctx context.Context) (SecretVersion, error) {
			return e.store.GetVersion(ctx, recordID, VersionSelector{VersionID: token, Stage: StagePending})
		})
	if err != nil {
		return err
	}
	if pending.Payload == nil {
		return e.fail(ctx, "ValidateKey", &ValidationFailure{Err: fmt.Errorf("version %s has no payload", token)})
	}
	cred := pending.Payload.Credential()

	e.logger.Debug("Waiting %s for key %s to propagate", e.cfg.GracePeriod, cred.ID)
	if err := e.sleep(ctx, e.cfg.GracePeriod); err != nil {
		return e.fail(ctx, "ValidateKey", &ValidationFailure{CredentialID: cred.ID, Err: err})
	}

	ok, err := invoke(ctx, e, "AuthenticateKey", e.authorityErr("AuthenticateKey", cred.ID),
		func(ctx context.Context) (bool, error) {
			return e.authority.Authenticate(ctx, e.cfg.Principal, cred)
		})
	if err != nil {
		return err
	}
	if !ok {
		return e.fail(ctx, "ValidateKey", &ValidationFailure{CredentialID: cred.ID, Err: ErrCredentialRejected})
	}

	e.logger.Info("Authentication test for access key %s passed", cred.ID)
	return nil
}

// PromoteAndRevoke moves the current label onto token, retires the key of
// the previous version and notifies the owner.
func (e *Engine) PromoteAndRevoke(ctx context.Context, recordID, token string) error {
	if err := e.promote(ctx, recordID, token); err != nil {
		return err
	}
	if err := e.revoke(ctx, recordID); err != nil {
		return err
	}
	e.notifyOwner(ctx, recordID, token)
	return nil
}

func (e *Engine) promote(ctx context.Context, recordID, token string) error {
	versions, err := invoke(ctx, e, "ListVersions", storeErr("ListVersions", recordID, ""),
		func(ctx context.Context) ([]SecretVersion, error) {
			return e.store.ListVersions(ctx, recordID)
		})
	if err != nil {
		return err
	}

	var current *SecretVersion
	var target bool
	for i := range versions {
		if versions[i].HasStage(StageCurrent) && current == nil {
			current = &versions[i]
		}
		if versions[i].ID == token {
			target = true
		}
	}

	if current == nil {
		return e.fail(ctx, "PromoteVersion", &IntegrityError{
			RecordID: recordID,
			Reason:   "no version is labelled current; refusing to choose one",
			Err:      ErrNoCurrentVersion,
		})
	}
	if current.ID == token {
		e.logger.Info("Version %s of %s is already current", token, recordID)
		return nil
	}
	if !target {
		return e.fail(ctx, "PromoteVersion", &IntegrityError{
			RecordID: recordID,
			Reason:   fmt.Sprintf("version %s does not exist", token),
			Err:      ErrNoPendingVersion,
		})
	}

	fromID := current.ID
	err = invokeErr(ctx, e, "PromoteVersion", storeErr("PromoteVersion", recordID, token),
		func(ctx context.Context) error {
			return e.store.MoveStage(ctx, recordID, fromID, token, StagePrevious, StageCurrent)
		})
	if err != nil {
		return err
	}

	e.logger.Info("Secret rotation successful for %s: %s is current, %s is previous", recordID, token, fromID)
	return nil
}

func (e *Engine) revoke(ctx context.Context, recordID string) error {
	versions, err := invoke(ctx, e, "ListVersions", storeErr("ListVersions", recordID, ""),
		func(ctx context.Context) ([]SecretVersion, error) {
			return e.store.ListVersions(ctx, recordID)
		})
	if err != nil {
		return err
	}

	for _, v := range versions {
		if !v.HasStage(StagePrevious) {
			continue
		}

		versionID := v.ID
		previous, err := invoke(ctx, e, "GetPreviousVersion", storeErr("GetPreviousVersion", recordID, versionID),
			func(ctx context.Context) (SecretVersion, error) {
				return e.store.GetVersion(ctx, recordID, VersionSelector{VersionID: versionID})
			})
		if err != nil {
			return err
		}
		if previous.Payload == nil || !e.isCredentialID(previous.Payload.AccessKeyID) {
			e.logger.Info("Previous version %s of %s holds no issued key; nothing to revoke", versionID, recordID)
			continue
		}

		if err := e.retire(ctx, previous.Payload.AccessKeyID); err != nil {
			return err
		}
	}
	return nil
}

// retire disables and then deletes a key. A key that no longer exists is
// treated as already retired so a repeated finish step succeeds.
func (e *Engine) retire(ctx context.Context, id string) error {
	err := invokeErr(ctx, e, "DisableKey", e.authorityErr("DisableKey", id), func(ctx context.Context) error {
		return ignoreNotFound(e.authority.Disable(ctx, e.cfg.Principal, id))
	})
	if err != nil {
		return err
	}
	e.logger.Info("Access key %s has been disabled for user %s", id, e.cfg.Principal)

	err = invokeErr(ctx, e, "DeleteKey", e.authorityErr("DeleteKey", id), func(ctx context.Context) error {
		return ignoreNotFound(e.authority.Delete(ctx, e.cfg.Principal, id))
	})
	if err != nil {
		return err
	}
	e.logger.Info("Access key %s has been deleted for user %s", id, e.cfg.Principal)
	e.metrics.CredentialRevoked()
	return nil
}

func (e *Engine) notifyOwner(ctx context.Context, recordID, token string) {
	if e.cfg.Recipient == "" {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The access key of %s has been rotated.\n", e.cfg.Principal)
	fmt.Fprintf(&b, "The new key is stored in secret %s (version %s).\n", recordID, token)
	if e.cfg.ConsoleURL != "" {
		fmt.Fprintf(&b, "Find it at %s\n", e.cfg.ConsoleURL)
	}
	b.WriteString("All previous access keys have been revoked and will no longer work.\n")

	if err := e.notifier.Send(ctx, e.cfg.Recipient, NotificationSubject, b.String()); err != nil {
		e.logger.Warn("op=NotifyOwner: failed to notify %s: %v", e.cfg.Recipient, err)
		return
	}
	e.logger.Info("Notified %s about the access key rotation", e.cfg.Recipient)
}

func findCredential(live []Credential, id string) bool {
	if id == "" {
		return false
	}
	for _, c := range live {
		if c.ID == id {
			return true
		}
	}
	return false
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrCredentialNotFound) {
		return nil
	}
	return err
}
