package workflow

import (
	"flowkeeper/cmd/root"
	"flowkeeper/internal/topology"
	"flowkeeper/internal/workflow"

	"github.com/spf13/cobra"
)

var topologyOutput string

var topologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Write the topology description of a workflow",
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
		if topologyOutput == "" || topologyOutput == "-" {
			return topology.Write(cmd.OutOrStdout(), cfg.Deploy.TopologyID, specs)
		}
		return topology.WriteFile(topologyOutput, cfg.Deploy.TopologyID, specs)
	},
}

func init() {
	topologyCmd.Flags().StringVarP(&topologyOutput, "output", "o", "-", "Output file, - for stdout")
	workflowCmd.AddCommand(topologyCmd)
}
