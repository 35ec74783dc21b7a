package workflow

import (
	"flowkeeper/cmd/root"

	"github.com/spf13/cobra"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Workflow operations (list, verify, topology, devices)",
	Long:  `Workflow operations (list, verify, topology, devices)`,
}

const workflowExample = `  # check a workflow file
  flowkeeper workflow verify -w pipeline.yaml

  # write the topology of the built-in diamond workflow
  flowkeeper workflow topology -o topology.xml`

func init() {
	root.RootCmd.AddCommand(workflowCmd)

	workflowCmd.Example = workflowExample
}
