package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/systmms/keyrotate/internal/driver"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// NewRotateCommand creates the rotate command
func NewRotateCommand(state *State) *cobra.Command {
	var (
		secretID string
		token    string
		from     string
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Run a complete rotation now",
		Long: `Run every rotation step in order with a fresh token.

Use this outside the managed schedule, or as the scheduled job when the
key is kept in Parameter Store. A failed step stops the rotation; rerun
with the printed token and --from set to the failed step to resume it.`,
		Example: `  # Rotate the configured principal's key
  keyrotate rotate

  # Resume a rotation that failed at testSecret
  keyrotate rotate --token 6f1c0c9e-2f0b-4c1b-9d7a-0b4f6e7a1c22 --from testSecret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepsFrom(from)
			if err != nil {
				return err
			}
			if from != "" && token == "" {
				return fmt.Errorf("--from requires the --token of the interrupted rotation")
			}

			h, err := state.handler(cmd.Context())
			if err != nil {
				return err
			}

			tok := token
			if tok == "" {
				tok = uuid.NewString()
			}
			recordID := state.recordID(secretID)
			fmt.Fprintf(state.Out, "Rotating %s (token %s)\n", recordID, tok)

			for _, step := range steps {
				_, err := h.Handle(cmd.Context(), driver.Event{
					SecretId:           recordID,
					ClientRequestToken: tok,
					Step:               step.String(),
				})
				if err != nil {
					return fmt.Errorf("%s failed, rerun with --token %s --from %s to resume: %w", step, tok, step, err)
				}
				fmt.Fprintf(state.Out, "  ✅ %s\n", step)
			}

			fmt.Fprintf(state.Out, "Rotation of %s complete\n", recordID)
			return nil
		},
	}

	cmd.Flags().StringVar(&secretID, "secret-id", "", "Secret to rotate (default: record_id from config)")
	cmd.Flags().StringVar(&token, "token", "", "Reuse a token to resume an interrupted rotation")
	cmd.Flags().StringVar(&from, "from", "", "Step to resume at (createSecret, setSecret, testSecret, finishSecret)")

	return cmd
}

// stepsFrom returns the protocol steps starting at the named step.
func stepsFrom(name string) ([]rotation.Step, error) {
	steps := rotation.Steps()
	if name == "" {
		return steps, nil
	}
	start, err := rotation.ParseStep(name)
	if err != nil {
		return nil, err
	}
	for i, step := range steps {
		if step == start {
			return steps[i:], nil
		}
	}
	return nil, fmt.Errorf("step %s is not part of a rotation", start)
}
