package workflow

import (
	"fmt"

	"flowkeeper/cmd/root"
	"flowkeeper/internal/workflow"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify and compile a workflow without running it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := root.LoadConfig()
		if err != nil {
			return err
		}
		stages, err := root.LoadWorkflow()
		if err != nil {
			return err
		}
		specs, err := workflow.Compile(stages, root.CompileOptions(cfg))
		if err != nil {
			return err
		}
		sources := 0
		for _, spec := range specs {
			if spec.Kind == workflow.Source {
				sources++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "workflow %s: %d devices, %d sources\n", root.WorkflowName, len(specs), sources)
		return nil
	},
}

func init() {
	workflowCmd.AddCommand(verifyCmd)
}
