package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/systmms/keyrotate/internal/driver"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// NewRunCommand creates the run command
func NewRunCommand(state *State) *cobra.Command {
	var (
		secretID string
		token    string
	)

	cmd := &cobra.Command{
		Use:   "run <step>",
		Short: "Run one rotation step",
		Long: `Run a single step of the rotation protocol, exactly as the scheduler would.

Steps are run in this order, each with the same token:
  createSecret   issue a new access key and store it as the pending version
  setSecret      nothing to do for access keys
  testSecret     authenticate with the pending key
  finishSecret   promote the pending version and revoke the previous key`,
		Example: `  # Resume an interrupted rotation at the test step
  keyrotate run testSecret --token 6f1c0c9e-2f0b-4c1b-9d7a-0b4f6e7a1c22`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := rotation.ParseStep(args[0])
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			h, err := state.handler(cmd.Context())
			if err != nil {
				return err
			}

			resp, err := h.Handle(cmd.Context(), driver.Event{
				SecretId:           state.recordID(secretID),
				ClientRequestToken: token,
				Step:               step.String(),
			})
			if err != nil {
				return err
			}

			out, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(state.Out, string(out))
			return err
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret to rotate (default: record_id from config)")
	cmd.Flags().StringVar(&token, "token", "", "Version id of the new secret version")

	return cmd
}
