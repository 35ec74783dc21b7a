package workflow

import (
	"strings"

	"flowkeeper/cmd/root"
	"flowkeeper/internal/utils"
	"flowkeeper/internal/workflow"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices a workflow compiles to",
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
		utils.WriteFormat(cmd.OutOrStdout(), deviceRows(specs))
		return nil
	},
}

/**
 *	Fields displayed in list format
 */
type Device_Columns struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Binds    string `json:"binds"`
	Connects string `json:"connects"`
	Options  string `json:"options"`
}

func deviceRows(specs []workflow.DeviceSpec) []*orderedmap.OrderedMap {
	var dataList []*orderedmap.OrderedMap
	for _, spec := range specs {
		row := Device_Columns{ID: spec.ID, Kind: string(spec.Kind)}
		var binds, connects, options []string
		for _, ch := range spec.Channels {
			if ch.Method == workflow.Bind {
				binds = append(binds, ch.Address())
			} else {
				connects = append(connects, ch.Address())
			}
		}
		for _, opt := range spec.Options {
			options = append(options, opt.Name)
		}
		row.Binds = strings.Join(binds, " ")
		row.Connects = strings.Join(connects, " ")
		row.Options = strings.Join(options, ",")

		recordMap, _ := utils.StructToOrderedMap(row)
		dataList = append(dataList, recordMap)
	}
	return dataList
}

func init() {
	workflowCmd.AddCommand(devicesCmd)
}
