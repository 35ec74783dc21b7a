package models

import "time"

type RunStatus string

const (
	// 表示正在运行
	StatusRunning RunStatus = "running"
	// 表示进程自行退出，退出码为0
	StatusExited RunStatus = "exited"
	// 表示启动失败或以非0退出码退出
	StatusError RunStatus = "error"
	// 表示被编排器停止
	StatusStopped RunStatus = "stopped"
)

// ProcessDetail 本地启动的设备进程信息
type ProcessDetail struct {
	ID             string    `json:"id"`             //设备ID
	Command        string    `json:"command"`        //进程启动命令
	Args           []string  `json:"args"`           //进程参数
	Pid            int       `json:"pid"`            //进程PID
	Status         RunStatus `json:"status"`         //状态
	ExitCode       int       `json:"exitCode"`       //退出码
	StartTime      time.Time `json:"startTime"`      //启动时间
	LastExitTime   time.Time `json:"lastExitTime"`   //退出时间
	LastExitReason string    `json:"lastExitReason"` //退出原因
}
