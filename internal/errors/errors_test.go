package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/keyrotate/internal/errors"
	"github.com/systmms/keyrotate/internal/logging"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
	assert.Contains(t, errMsg, "💡")
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "probe",
		Value:      "console",
		Message:    "unknown validation probe",
		Suggestion: "Use 'iam' or 'sts'",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "in field 'probe'")
	assert.Contains(t, errMsg, "(value: console)")
	assert.Contains(t, errMsg, "unknown validation probe")
	assert.Contains(t, errMsg, "'iam' or 'sts'")
}

// TestProviderErrorRedactsSecrets verifies wrapped secrets stay redacted
func TestProviderErrorRedactsSecrets(t *testing.T) {
	t.Parallel()

	secretValue := "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"

	baseErr := fmt.Errorf("authentication failed with key: %s", logging.Secret(secretValue))
	providerErr := errors.ProviderError("sts", "GetCallerIdentity", baseErr)

	errMsg := providerErr.Error()

	assert.Contains(t, errMsg, "sts error during GetCallerIdentity")
	assert.Contains(t, errMsg, "[REDACTED]")
	assert.NotContains(t, errMsg, secretValue, "Actual secret value must not appear")
	assert.ErrorIs(t, providerErr, baseErr)
}

// TestProviderSuggestions verifies service-specific error suggestions
func TestProviderSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		service            string
		errorMsg           string
		expectedSuggestion string
	}{
		{"iam_no_user", "iam", "api error NoSuchEntity: The user with name x cannot be found.", "aws iam list-users"},
		{"iam_limit", "iam", "api error LimitExceeded: Cannot exceed quota for AccessKeysPerUser: 2", "keyrotate status"},
		{"iam_denied", "iam", "api error AccessDenied: not authorized", "iam:CreateAccessKey"},
		{"sts_propagation", "sts", "api error InvalidClientTokenId: The security token included in the request is invalid", "grace_period"},
		{"secret_missing", "secretsmanager", "api error ResourceNotFoundException: Secrets Manager can't find the specified secret.", "keyrotate init"},
		{"secret_denied", "secretsmanager", "AccessDeniedException", "secretsmanager:PutSecretValue"},
		{"parameter_missing", "ssm", "api error ParameterNotFound", "keyrotate init"},
		{"topic_missing", "sns", "api error NotFound: Topic does not exist", "alert_topic_arn"},
		{"ses_sandbox", "ses", "api error MessageRejected: Email address is not verified.", "create-email-identity"},
		{"credentials", "iam", "failed to retrieve credentials", "aws configure"},
		{"throttling", "ssm", "api error ThrottlingException: Rate exceeded", "rate limit"},
		{"network", "sns", "dial tcp: lookup sns.invalid: no such host", "endpoint"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			providerErr := errors.ProviderError(tt.service, "call", fmt.Errorf("%s", tt.errorMsg))
			assert.Contains(t, providerErr.Error(), tt.expectedSuggestion)
		})
	}
}

// TestProviderErrorWithoutSuggestion verifies unknown errors still carry details
func TestProviderErrorWithoutSuggestion(t *testing.T) {
	t.Parallel()

	err := errors.ProviderError("iam", "ListAccessKeys", fmt.Errorf("something odd"))
	assert.Contains(t, err.Error(), "Details: something odd")
	assert.NotContains(t, err.Error(), "Try:")
}

// TestIsRetryable verifies retryable error detection
func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errorMsg  string
		retryable bool
	}{
		{"timeout", "operation timeout", true},
		{"rate_limit", "rate limit exceeded", true},
		{"throttling", "ThrottlingException", true},
		{"connection_reset", "connection reset by peer", true},
		{"broken_pipe", "broken pipe", true},
		{"deadline", "context deadline exceeded", true},
		{"not_found", "resource not found", false},
		{"integrity", "pending credential missing from authority", false},
		{"nil_error", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var err error
			if tt.errorMsg != "" {
				err = fmt.Errorf("%s", tt.errorMsg)
			}

			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

// TestSimplifyError verifies error simplification for common cases
func TestSimplifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		inputError    error
		expectedType  string
		expectedInMsg string
	}{
		{
			name:          "yaml_error",
			inputError:    fmt.Errorf("yaml: line 5: mapping values are not allowed"),
			expectedType:  "ConfigError",
			expectedInMsg: "Invalid YAML",
		},
		{
			name:          "json_error",
			inputError:    fmt.Errorf("decode: %w", fmt.Errorf("json: invalid character")),
			expectedType:  "ConfigError",
			expectedInMsg: "Invalid JSON",
		},
		{
			name:          "permission_denied",
			inputError:    fmt.Errorf("permission denied"),
			expectedType:  "UserError",
			expectedInMsg: "Permission denied",
		},
		{
			name:          "file_not_found",
			inputError:    fmt.Errorf("no such file or directory"),
			expectedType:  "UserError",
			expectedInMsg: "not found",
		},
		{
			name:          "wrapped_config_error",
			inputError:    fmt.Errorf("load: %w", errors.ConfigError{Field: "store", Message: "unknown secret store backend"}),
			expectedType:  "wrapped",
			expectedInMsg: "unknown secret store backend",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			simplified := errors.SimplifyError(tt.inputError)
			assert.Contains(t, simplified.Error(), tt.expectedInMsg)

			switch tt.expectedType {
			case "ConfigError":
				_, ok := simplified.(errors.ConfigError)
				assert.True(t, ok, "Should be ConfigError type")
			case "UserError":
				_, ok := simplified.(errors.UserError)
				assert.True(t, ok, "Should be UserError type")
			case "wrapped":
				assert.Equal(t, tt.inputError, simplified, "friendly errors pass through untouched")
			}
		})
	}
}

// TestUserErrorUnwrap verifies error unwrapping works correctly
func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	baseErr := fmt.Errorf("base error")
	userErr := errors.UserError{
		Message: "wrapped error",
		Err:     baseErr,
	}

	assert.Equal(t, baseErr, userErr.Unwrap())
}

// TestNilErrorHandling verifies nil errors are handled gracefully
func TestNilErrorHandling(t *testing.T) {
	t.Parallel()

	assert.False(t, errors.IsRetryable(nil))
	assert.Nil(t, errors.SimplifyError(nil))
}
