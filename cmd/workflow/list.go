package workflow

import (
	"fmt"

	"flowkeeper/internal/workflow"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in workflows",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range workflow.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	workflowCmd.AddCommand(listCmd)
}
