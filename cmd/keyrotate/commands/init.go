package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/keyrotate/internal/config"
	"github.com/systmms/keyrotate/internal/providers"
)

// NewInitCommand creates the init command
func NewInitCommand(state *State) *cobra.Command {
	var secretID string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the secret that holds the principal's access key",
		Long: `Create the secret with a placeholder value and, for Secrets Manager,
attach the rotation function on the configured schedule.

The placeholder is never treated as an access key, so the first rotation
issues a key without revoking anything. Running init again only refreshes
the schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := state.components(cmd.Context())
			if err != nil {
				return err
			}
			if c.Provisioner == nil {
				return fmt.Errorf("the %s store cannot create records", state.Config.Store)
			}

			recordID := state.recordID(secretID)
			opts := providers.ProvisionOptions{
				RecordID:       recordID,
				RotationLambda: state.Config.RotationLambdaARN,
				RotateAfter:    state.Config.RotateAfter,
				Description:    fmt.Sprintf("Access key of IAM user %s, rotated by keyrotate", state.Config.Principal),
			}
			if err := c.Provisioner.Provision(cmd.Context(), opts); err != nil {
				return err
			}

			fmt.Fprintf(state.Out, "✅ %s is ready for rotation\n", recordID)
			if state.Config.Store == config.StoreSecretsManager && opts.RotationLambda != "" {
				fmt.Fprintf(state.Out, "   Rotates every %d days through %s\n", int(opts.RotateAfter.Hours()/24), opts.RotationLambda)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret to create (default: record_id from config)")

	return cmd
}
