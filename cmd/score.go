package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vecrl/loggers"
)

func ScoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "score [run-dir]",
		Short: "Recompute the final score of a finished run from its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := loggers.Score(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%.3f\n", score)
			return nil
		},
	}
}
