package models

// HealthResponse 健康检查响应结构
// @Description 健康检查API响应数据结构
type HealthResponse struct {
	Version   string  `json:"version" example:"1.0.0" description:"程序版本"`
	Session   string  `json:"session" example:"0d1f3c52-8c1e-4a53-9f0a-6a3b2f3c9e11" description:"编排会话ID"`
	StartTime string  `json:"startTime" example:"2024-01-01T10:00:00Z" description:"启动时间"`
	Status    string  `json:"status" example:"UP" description:"健康状态"`
	Uptime    string  `json:"uptime" example:"1h30m45s" description:"运行时长"`
	Metrics   Metrics `json:"metrics" description:"关键指标"`
}

// Metrics 关键指标结构
type Metrics struct {
	TotalRequests int64 `json:"totalRequests" example:"1000" description:"总请求数"`
	ErrorRequests int64 `json:"errorRequests" example:"5" description:"出错请求数"`
	Devices       int   `json:"devices" example:"4" description:"设备总数"`
	ActiveDevices int   `json:"activeDevices" example:"3" description:"存活设备数"`
	ReadyToQuit   int   `json:"readyToQuit" example:"1" description:"可以退出的设备数"`
}
