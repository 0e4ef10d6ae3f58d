package commands

import (
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

// NewLambdaCommand creates the lambda command
func NewLambdaCommand(state *State) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve rotation steps as an AWS Lambda function",
		Long: `Start the Lambda runtime loop. Attach the function to the secret as its
rotation function; Secrets Manager then invokes it once per step.

Configuration comes from KEYROTATE_* environment variables on the function.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := state.handler(cmd.Context())
			if err != nil {
				return err
			}
			state.Logger.Info("Serving rotation steps for %s", state.Config.Principal)
			lambda.StartWithOptions(h.Handle, lambda.WithContext(cmd.Context()))
			return nil
		},
	}
}
