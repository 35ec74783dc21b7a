package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"flowkeeper/cmd/root"
	"flowkeeper/internal/models"
	"flowkeeper/internal/rpc"
	"flowkeeper/internal/utils"

	"github.com/iancoleman/orderedmap"
	"github.com/spf13/cobra"
)

var (
	statusAddress string
	statusMetrics bool
)

var statusCmd = &cobra.Command{
	Use:   "status [device-id]",
	Short: "Show the devices of a running orchestrator",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := root.LoadConfig()
		if err != nil {
			return err
		}
		address := statusAddress
		if address == "" {
			address = cfg.Server.Address
		}
		client := rpc.NewStatusClient(rpc.DefaultHTTPConfig(address))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if len(args) == 0 {
			return listDevices(ctx, cmd.OutOrStdout(), client)
		}
		if statusMetrics {
			return showMetrics(ctx, cmd.OutOrStdout(), client, args[0])
		}
		return showDevice(ctx, cmd.OutOrStdout(), client, args[0])
	},
}

/**
 *	Fields displayed in list format
 */
type Device_Columns struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Pid         int    `json:"pid"`
	State       string `json:"state"`
	Active      string `json:"active"`
	ReadyToQuit string `json:"ready_to_quit"`
	Alive       string `json:"alive"`
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func deviceRow(d models.DeviceDetail) *orderedmap.OrderedMap {
	row := Device_Columns{
		ID:          d.ID,
		Kind:        d.Kind,
		Pid:         d.Pid,
		State:       d.State.String(),
		Active:      yesNo(d.Active),
		ReadyToQuit: yesNo(d.ReadyToQuit),
		Alive:       "-",
	}
	if d.Pid > 0 {
		running, _ := utils.IsProcessRunning(d.Pid)
		row.Alive = yesNo(running)
	}
	recordMap, _ := utils.StructToOrderedMap(row)
	return recordMap
}

func listDevices(ctx context.Context, w io.Writer, client *rpc.StatusClient) error {
	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices")
		return nil
	}
	var dataList []*orderedmap.OrderedMap
	for _, d := range devices {
		dataList = append(dataList, deviceRow(d))
	}
	utils.WriteFormat(w, dataList)
	return nil
}

func showDevice(ctx context.Context, w io.Writer, client *rpc.StatusClient, id string) error {
	device, err := client.Device(ctx, id)
	if err != nil {
		return err
	}
	utils.WriteFormat(w, []*orderedmap.OrderedMap{deviceRow(*device)})
	for _, line := range device.History {
		fmt.Fprintf(w, "[%d]: %s\n", device.Pid, line)
	}
	return nil
}

/**
 *	Fields displayed for every metric key
 */
type Metric_Columns struct {
	Key     string `json:"key"`
	Samples int    `json:"samples"`
	Last    string `json:"last"`
}

func showMetrics(ctx context.Context, w io.Writer, client *rpc.StatusClient, id string) error {
	metrics, err := client.Metrics(ctx, id)
	if err != nil {
		return err
	}
	var dataList []*orderedmap.OrderedMap
	for _, key := range metrics.Keys() {
		value, _ := metrics.Get(key)
		series, _ := value.([]interface{})
		row := Metric_Columns{Key: key, Samples: len(series)}
		if len(series) > 0 {
			row.Last = lastValue(series[len(series)-1])
		}
		recordMap, _ := utils.StructToOrderedMap(row)
		dataList = append(dataList, recordMap)
	}
	if len(dataList) == 0 {
		fmt.Fprintf(w, "No metrics reported by %s\n", id)
		return nil
	}
	utils.WriteFormat(w, dataList)
	return nil
}

// lastValue 取出样本中的 value 字段
func lastValue(sample interface{}) string {
	switch s := sample.(type) {
	case orderedmap.OrderedMap:
		if v, ok := s.Get("value"); ok {
			return fmt.Sprint(v)
		}
	case map[string]interface{}:
		return fmt.Sprint(s["value"])
	}
	return strings.TrimSpace(fmt.Sprint(sample))
}

func init() {
	statusCmd.Flags().SortFlags = false
	statusCmd.Flags().StringVarP(&statusAddress, "address", "a", "", "Status API address (default server.address from config)")
	statusCmd.Flags().BoolVarP(&statusMetrics, "metrics", "m", false, "Show the metrics of the device")
	root.RootCmd.AddCommand(statusCmd)
}
