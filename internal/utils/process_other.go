//go:build !unix

package utils

import (
	"os"
	"os/exec"
	"os/signal"
)

// SetNewPG 默认实现，用于不支持进程组的构建目标
func SetNewPG(cmd *exec.Cmd) {
}

// TerminateProcess 没有 SIGTERM 的平台上直接结束进程
func TerminateProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	_, err := os.FindProcess(pid)
	return err == nil, nil
}

// RaiseInterrupt 没有信号重发机制的平台上以 SIGINT 对应的退出码退出
func RaiseInterrupt() {
	os.Exit(130)
}

// ResetInterrupt 恢复 SIGINT 的默认处理
func ResetInterrupt() {
	signal.Reset(os.Interrupt)
}
