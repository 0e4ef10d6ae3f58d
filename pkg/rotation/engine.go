package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/internal/metrics"
)

// DefaultGracePeriod is how long ValidateCredential waits for a new access
// key to propagate before authenticating with it.
const DefaultGracePeriod = 10 * time.Second

// NotificationSubject is the subject line of the owner notification.
const NotificationSubject = "AWS Access Key Rotation"

// Config is the fixed configuration of an engine instance.
type Config struct {
	// Principal is the IAM user whose access key is rotated.
	Principal string

	// Recipient receives the completion notification. Empty disables it.
	Recipient string

	// ConsoleURL is where the owner can read the new key; included in the notification.
	ConsoleURL string

	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
}

// Invocation is one step request from the scheduler.
type Invocation struct {
	RecordID string
	Step     Step
	Token    string
}

// Engine runs the rotation steps for a single principal.
type Engine struct {
	cfg       Config
	authority CredentialAuthority
	store     VersionedSecretStore
	alerts    AlertSink
	notifier  Notifier
	logger    *logging.Logger
	metrics   *metrics.StepMetrics

	sleep          func(ctx context.Context, d time.Duration) error
	isCredentialID func(id string) bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlertSink sets where failures are published.
func WithAlertSink(sink AlertSink) Option {
	return func(e *Engine) {
		e.alerts = sink
	}
}

// WithNotifier sets how the owner is told about a completed rotation.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the step metrics recorder.
func WithMetrics(m *metrics.StepMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSleep replaces the wait used for the propagation grace period (for testing).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithCredentialIDPredicate replaces IsAccessKeyID as the check applied
// before revoking the credential of a previous version.
func WithCredentialIDPredicate(fn func(id string) bool) Option {
	return func(e *Engine) {
		e.isCredentialID = fn
	}
}

// NewEngine creates an engine for cfg.Principal.
func NewEngine(cfg Config, authority CredentialAuthority, store VersionedSecretStore, opts ...Option) (*Engine, error) {
	if cfg.Principal == "" {
		return nil, errors.New("principal is required")
	}
	if authority == nil {
		return nil, errors.New("credential authority is required")
	}
	if store == nil {
		return nil, errors.New("secret store is required")
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	e := &Engine{
		cfg:            cfg,
		authority:      authority,
		store:          store,
		alerts:         nopAlertSink{},
		notifier:       nopNotifier{},
		logger:         logging.Discard(),
		sleep:          sleepContext,
		isCredentialID: IsAccessKeyID,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("principal", cfg.Principal)

	return e, nil
}

// Principal returns the principal this engine rotates.
func (e *Engine) Principal() string {
	return e.cfg.Principal
}

// Run executes one protocol step. Steps never advance on their own: the
// scheduler calls Run once per step, in order, and retries failed steps.
func (e *Engine) Run(ctx context.Context, inv Invocation) (err error) {
	if !inv.Step.Valid() {
		return e.fail(ctx, "Run", fmt.Errorf("%w: %q", ErrUnknownStep, inv.Step))
	}
	if inv.RecordID == "" || inv.Token == "" {
		return e.fail(ctx, "Run", errors.New("record id and token are required"))
	}

	step := inv.Step.String()
	started := time.Now()
	e.metrics.StepStarted(step)
	e.logger.Info("Step: %s, record: %s, token: %s", step, inv.RecordID, inv.Token)

	status := "success"
	defer func() {
		if err != nil {
			status = "failure"
		}
		e.metrics.StepCompleted(step, status, time.Since(started))
	}()

	proceed, err := e.Precheck(ctx, inv.RecordID, inv.Step)
	if err != nil {
		return err
	}
	if !proceed {
		status = "skipped"
		e.logger.Info("Precheck found %s already completed for %s; skipping", step, inv.RecordID)
		return nil
	}

	switch inv.Step {
	case StepCreateCredential:
		return e.CreateCredential(ctx, inv.RecordID, inv.Token)
	case StepSetCredential:
		e.logger.Debug("Nothing to set for %s: the authority already holds the pending key", inv.RecordID)
		return nil
	case StepValidateCredential:
		return e.ValidateCredential(ctx, inv.RecordID, inv.Token)
	case StepPromoteAndRevoke:
		return e.PromoteAndRevoke(ctx, inv.RecordID, inv.Token)
	}
	return nil
}

// fail logs err under op, publishes it to the alert sink and returns it
// unchanged. A failing alert sink never replaces the original error.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	e.logger.Error("op=%s: %v", op, err)
	if perr := e.alerts.Publish(ctx, fmt.Sprintf("Error in %s: %v", op, err)); perr != nil {
		e.logger.Warn("op=%s: failed to publish alert: %v", op, perr)
	}
	return err
}

// invoke runs one collaborator call. On failure the error is typed by wrap,
// then logged and alerted exactly once.
func invoke[T any](ctx context.Context, e *Engine, op string, wrap func(error) error, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, e.fail(ctx, op, wrap(err))
	}
	return v, nil
}

func invokeErr(ctx context.Context, e *Engine, op string, wrap func(error) error, fn func(context.Context) error) error {
	_, err := invoke(ctx, e, op, wrap, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (e *Engine) authorityErr(op, credentialID string) func(error) error {
	return func(err error) error {
		return &AuthorityError{Op: op, Principal: e.cfg.Principal, CredentialID: credentialID, Err: err}
	}
}

func storeErr(op, recordID, versionID string) func(error) error {
	return func(err error) error {
		return &StoreError{Op: op, RecordID: recordID, VersionID: versionID, Err: err}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type nopAlertSink struct{}

func (nopAlertSink) Publish(context.Context, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string, string) error { return nil }
