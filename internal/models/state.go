package models

import (
	"encoding/json"
	"fmt"
)

// DeviceState mirrors the lifecycle state reported by a running device.
type DeviceState int

const (
	// 尚未收到心跳
	Disconnected DeviceState = iota
	// 收到第一个心跳
	Connected
	Idle
	InitializingDevice
	DeviceReady
	InitializingTask
	Ready
	Running
	ResettingTask
	ResettingDevice
	Exiting
)

var stateNames = [...]string{
	Disconnected:       "Disconnected",
	Connected:          "Connected",
	Idle:               "Idle",
	InitializingDevice: "InitializingDevice",
	DeviceReady:        "DeviceReady",
	InitializingTask:   "InitializingTask",
	Ready:              "Ready",
	Running:            "Running",
	ResettingTask:      "ResettingTask",
	ResettingDevice:    "ResettingDevice",
	Exiting:            "Exiting",
}

// stateLabels maps the textual labels carried by state-change notifications.
var stateLabels = map[string]DeviceState{
	"RUNNING":             Running,
	"DEVICE READY":        DeviceReady,
	"READY":               Ready,
	"INITIALIZING TASK":   InitializingTask,
	"INITIALIZING DEVICE": InitializingDevice,
	"RESETTING TASK":      ResettingTask,
	"RESETTING DEVICE":    ResettingDevice,
	"IDLE":                Idle,
	"EXITING":             Exiting,
}

func (s DeviceState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s DeviceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *DeviceState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = DeviceState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown device state %q", name)
}

/**
 * Get the notification label of a state
 * @returns {string} Label as sent in "state-change" messages, empty for
 * Disconnected and Connected which are never reported by devices
 */
func (s DeviceState) Label() string {
	for label, state := range stateLabels {
		if state == s {
			return label
		}
	}
	return ""
}

/**
 * Map a state-change label to a device state
 * @param {string} label - Label such as "RUNNING" or "DEVICE READY"
 * @returns {DeviceState} Matching state
 * @returns {bool} False for unrecognized labels
 */
func StateFromLabel(label string) (DeviceState, bool) {
	s, ok := stateLabels[label]
	return s, ok
}
