package cmd

import "github.com/spf13/cobra"

func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vecrl",
		Short: "Vectorized A2C training",
	}
	AddFlags(cmd)

	cmd.AddCommand(
		TrainCommand(),
		ScoreCommand(),
	)

	return cmd
}
