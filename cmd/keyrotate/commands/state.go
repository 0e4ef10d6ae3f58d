// Package commands implements the keyrotate CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/systmms/keyrotate/internal/config"
	"github.com/systmms/keyrotate/internal/driver"
	"github.com/systmms/keyrotate/internal/logging"
	"github.com/systmms/keyrotate/internal/metrics"
	"github.com/systmms/keyrotate/internal/providers"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// Components are the collaborators a command runs against.
type Components struct {
	Authority   rotation.CredentialAuthority
	Store       rotation.VersionedSecretStore
	Alerts      rotation.AlertSink
	Notifier    rotation.Notifier
	Provisioner providers.Provisioner
}

// Factory builds the components described by cfg.
type Factory func(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Components, error)

// State is shared by every command. The root command fills Config and
// Logger before any subcommand runs.
type State struct {
	ConfigPath string
	Debug      bool
	NoColor    bool
	LogFormat  string

	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.StepMetrics

	Out     io.Writer
	Factory Factory
}

// NewState returns a state wired to AWS and stdout.
func NewState() *State {
	return &State{
		Out:     os.Stdout,
		Factory: AWSFactory,
		Logger:  logging.Discard(),
	}
}

// Init loads the configuration and creates the logger. Flags set on the
// command line override the file and the environment.
func (s *State) Init() error {
	cfg, err := config.LoadUnvalidated(s.ConfigPath)
	if err != nil {
		return err
	}
	if s.Debug {
		cfg.Log.Level = "debug"
	}
	if s.LogFormat != "" {
		cfg.Log.Format = s.LogFormat
	}
	s.Config = cfg

	s.Logger = logging.NewWithWriter(os.Stderr, logging.Format(cfg.Log.Format), cfg.Debug(), s.NoColor)
	if s.Metrics == nil {
		s.Metrics = metrics.New()
	}
	return nil
}

// components validates the configuration and builds the collaborators.
func (s *State) components(ctx context.Context) (*Components, error) {
	if err := s.Config.Validate(); err != nil {
		return nil, err
	}
	return s.Factory(ctx, s.Config, s.Logger)
}

// engine builds a rotation engine from the configuration.
func (s *State) engine(c *Components) (*rotation.Engine, error) {
	opts := []rotation.Option{
		rotation.WithLogger(s.Logger),
		rotation.WithMetrics(s.Metrics),
	}
	if c.Alerts != nil {
		opts = append(opts, rotation.WithAlertSink(c.Alerts))
	}
	if c.Notifier != nil {
		opts = append(opts, rotation.WithNotifier(c.Notifier))
	}

	engine, err := rotation.NewEngine(rotation.Config{
		Principal:   s.Config.Principal,
		Recipient:   s.Config.ResolveRecipient(),
		ConsoleURL:  s.Config.ConsoleURL,
		GracePeriod: s.Config.GracePeriod,
	}, c.Authority, c.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rotation engine: %w", err)
	}
	return engine, nil
}

// handler builds the step handler shared by run, rotate and lambda.
func (s *State) handler(ctx context.Context) (*driver.Handler, error) {
	c, err := s.components(ctx)
	if err != nil {
		return nil, err
	}
	engine, err := s.engine(c)
	if err != nil {
		return nil, err
	}
	return driver.NewHandler(engine,
		driver.WithHandlerLogger(s.Logger),
		driver.WithMetricsPush(s.Metrics, driver.PushConfig{
			URL: s.Config.Metrics.Pushgateway,
			Job: s.Config.Metrics.Job,
		}),
	), nil
}

// recordID returns the --secret-id flag value or the configured record.
func (s *State) recordID(flag string) string {
	if flag != "" {
		return flag
	}
	return s.Config.ResolveRecordID()
}
