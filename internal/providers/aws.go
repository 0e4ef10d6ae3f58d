// Package providers implements the rotation collaborators on top of AWS:
// IAM as the credential authority, Secrets Manager or SSM Parameter Store as
// the versioned secret store.
package providers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSOptions selects how AWS clients are configured.
type AWSOptions struct {
	Region  string
	Profile string

	// Endpoint overrides every service endpoint (LocalStack or testing).
	Endpoint string

	// Static credentials, mostly for LocalStack. Empty uses the default chain.
	AccessKeyID     string
	SecretAccessKey string
}

// LoadAWSConfig resolves the shared AWS configuration. Credentials come from
// the default chain (environment, shared config, SSO, container or instance
// role) unless static keys are set.
func LoadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	if opts.Endpoint != "" {
		configOpts = append(configOpts, awsconfig.WithBaseEndpoint(opts.Endpoint))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

// withStaticCredentials returns a copy of cfg that signs with the given key.
func withStaticCredentials(cfg aws.Config, accessKeyID, secretAccessKey string) aws.Config {
	cfg = cfg.Copy()
	cfg.Credentials = aws.NewCredentialsCache(
		credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	)
	return cfg
}
