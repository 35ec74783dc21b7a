package models

// DeviceDetail 设备运行状态快照
type DeviceDetail struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Pid         int         `json:"pid"`
	State       DeviceState `json:"state"`
	Active      bool        `json:"active"`
	ReadyToQuit bool        `json:"readyToQuit"`
	History     []string    `json:"history,omitempty"`
}

// MetricSample is one value extracted from a metric line.
type MetricSample struct {
	Type      MetricType `json:"type"`
	Value     string     `json:"value"`
	Timestamp int64      `json:"timestamp"`
}

// MetricType 指标值类型，与设备输出的类型编号一致
type MetricType int

const (
	MetricInt MetricType = iota
	MetricString
	MetricFloat
)

type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
