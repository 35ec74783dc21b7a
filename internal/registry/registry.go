package registry

import (
	"flowkeeper/internal/models"
	"flowkeeper/internal/workflow"
)

/**
 * DeviceControl 设备输出的显示控制
 * @property {bool} Quiet - 不回显设备输出
 * @property {string} LogFilter - 只回显包含该子串的行，空串匹配所有行
 */
type DeviceControl struct {
	Quiet     bool
	LogFilter string
}

// Registry is the monitoring state of one orchestrator run. Its device list
// is fixed at creation; each entry synchronizes itself.
type Registry struct {
	devices  []*DeviceInfo
	metrics  []*MetricsInfo
	controls []DeviceControl
	index    map[string]int
}

/**
 * Create the registry of a run
 * @param {[]workflow.DeviceSpec} specs - Compiled device specs
 * @param {DeviceControl} control - Display control applied to every device
 * @param {int} historySize - History ring capacity of every device
 * @returns {*Registry} One DeviceInfo and MetricsInfo per spec, in spec order
 * @description
 * - Only the first spec with a given id is indexed, later duplicates are unreachable by id
 */
func New(specs []workflow.DeviceSpec, control DeviceControl, historySize int) *Registry {
	r := &Registry{index: make(map[string]int, len(specs))}
	for i, spec := range specs {
		r.devices = append(r.devices, NewDeviceInfo(spec.ID, string(spec.Kind), historySize))
		r.metrics = append(r.metrics, NewMetricsInfo())
		r.controls = append(r.controls, control)
		if _, exists := r.index[spec.ID]; !exists {
			r.index[spec.ID] = i
		}
	}
	return r
}

func (r *Registry) Len() int {
	return len(r.devices)
}

func (r *Registry) Device(i int) *DeviceInfo {
	return r.devices[i]
}

func (r *Registry) Metrics(i int) *MetricsInfo {
	return r.metrics[i]
}

func (r *Registry) Control(i int) DeviceControl {
	return r.controls[i]
}

// Lookup returns the position of the device with the given id.
func (r *Registry) Lookup(id string) (int, bool) {
	i, ok := r.index[id]
	return i, ok
}

// AllReadyToQuit reports whether every device has been asked to quit.
func (r *Registry) AllReadyToQuit() bool {
	for _, d := range r.devices {
		if !d.ReadyToQuit() {
			return false
		}
	}
	return true
}

// MarkAllReadyToQuit sets the ready-to-quit flag of every device. It takes
// every device lock in turn and must not be called inside WithLock.
func (r *Registry) MarkAllReadyToQuit() {
	for _, d := range r.devices {
		d.SetReadyToQuit(true)
	}
}

// Snapshot returns the details of every device, without history.
func (r *Registry) Snapshot() []models.DeviceDetail {
	details := make([]models.DeviceDetail, 0, len(r.devices))
	for _, d := range r.devices {
		details = append(details, d.Detail(false))
	}
	return details
}
