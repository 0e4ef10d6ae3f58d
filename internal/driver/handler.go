// Package driver adapts step invocations from the secret store's rotation
// scheduler to the rotation engine.
package driver

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	kerrors "github.com/systmms/keyrotate/internal/errors"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/internal/metrics"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// Event is the invocation payload sent by the rotation scheduler.
type Event struct {
	// SecretId is the ARN or name of the record being rotated.
	SecretId string `json:"SecretId"`

	// ClientRequestToken is the version id of the new secret version.
	ClientRequestToken string `json:"ClientRequestToken"`

	// Step is the wire name of the protocol step.
	Step string `json:"Step"`
}

// Invocation converts the event into an engine invocation. The step is not
// validated here; the engine rejects unknown steps and raises an alert.
func (ev Event) Invocation() rotation.Invocation {
	return rotation.Invocation{
		RecordID: ev.SecretId,
		Step:     rotation.Step(ev.Step),
		Token:    ev.ClientRequestToken,
	}
}

// Response is returned for every successful step, including skipped ones.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Success is the response for any non-fatal outcome.
var Success = Response{StatusCode: 200, Body: "success"}

// Runner runs one rotation step.
type Runner interface {
	Run(ctx context.Context, inv rotation.Invocation) error
}

// PushConfig names the Pushgateway metrics are sent to after each invocation.
type PushConfig struct {
	URL string
	Job string

	// Timeout bounds the push so a slow gateway cannot eat the invocation deadline.
	Timeout time.Duration
}

// Handler runs scheduler events against an engine.
type Handler struct {
	engine  Runner
	metrics *metrics.StepMetrics
	push    PushConfig
	logger  *logging.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMetricsPush pushes m to the gateway in cfg after every invocation.
func WithMetricsPush(m *metrics.StepMetrics, cfg PushConfig) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
		h.push = cfg
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *logging.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates a handler for engine.
func NewHandler(engine Runner, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine: engine,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.push.Timeout <= 0 {
		h.push.Timeout = 5 * time.Second
	}
	if h.push.Job == "" {
		h.push.Job = "keyrotate"
	}
	return h
}

// Handle runs one step. Any error is returned as is so the scheduler marks
// the step failed and retries it.
func (h *Handler) Handle(ctx context.Context, ev Event) (Response, error) {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}

	err := h.engine.Run(ctx, ev.Invocation())
	h.pushMetrics(ctx, logger, ev.SecretId)

	if err != nil {
		logger.Error("Step %s for %s failed (retryable: %t): %v", ev.Step, ev.SecretId, kerrors.IsRetryable(err), err)
		return Response{}, err
	}
	return Success, nil
}

func (h *Handler) pushMetrics(ctx context.Context, logger *logging.Logger, recordID string) {
	if h.metrics == nil || h.push.URL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.push.Timeout)
	defer cancel()

	if err := h.metrics.Push(ctx, h.push.URL, h.push.Job, recordID); err != nil {
		logger.Warn("Failed to push metrics: %v", err)
	}
}
