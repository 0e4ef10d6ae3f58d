package commands

import (
	"context"

	"github.com/systmms/keyrotate/internal/config"
	kerrors "github.com/systmms/keyrotate/internal/errors"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/internal/notifications"
	"github.com/systmms/keyrotate/internal/providers"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// AWSFactory builds the AWS-backed components.
func AWSFactory(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error) {
	awsCfg, err := providers.LoadAWSConfig(ctx, providers.AWSOptions{
		Region:   cfg.AWS.Region,
		Profile:  cfg.AWS.Profile,
		Endpoint: cfg.AWS.Endpoint,
	})
	if err != nil {
		return nil, kerrors.ProviderError("aws", "loading configuration", err)
	}

	authority, err := providers.NewIAMAuthority(awsCfg, cfg.Probe, providers.WithIAMLogger(logger))
	if err != nil {
		return nil, err
	}

	c := &Components{Authority: authority}

	switch cfg.Store {
	case config.StoreSSM:
		store := providers.NewParameterStore(awsCfg,
			providers.WithKMSKey(cfg.KMSKeyID),
			providers.WithSSMLogger(logger),
		)
		c.Store, c.Provisioner = store, store
	default:
		store := providers.NewSecretsManagerStore(awsCfg, providers.WithSecretsManagerLogger(logger))
		c.Store, c.Provisioner = store, store
	}

	var sinks notifications.MultiAlertSink
	if cfg.AlertTopicARN != "" {
		sink, err := notifications.NewSNSAlertSink(awsCfg, cfg.AlertTopicARN, nil)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.AlertWebhookURL != "" {
		sink, err := notifications.NewWebhookAlertSink(notifications.WebhookConfig{
			Name: "alerts",
			URL:  cfg.AlertWebhookURL,
		})
		if err != nil {
			return nil, kerrors.ConfigError{
				Field:   "alert_webhook_url",
				Value:   cfg.AlertWebhookURL,
				Message: err.Error(),
			}
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		logger.Warn("No alert_topic_arn or alert_webhook_url configured; rotation failures are only logged")
	case 1:
		c.Alerts = sinks[0]
	default:
		c.Alerts = sinks
	}

	if cfg.ResolveRecipient() != "" {
		notifier, err := notifications.NewSESNotifier(awsCfg, cfg.SourceEmail, nil)
		if err != nil {
			return nil, err
		}
		c.Notifier = notifier
	}

	return c, nil
}

var _ rotation.AlertSink = notifications.MultiAlertSink(nil)
