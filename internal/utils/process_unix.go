//go:build unix

package utils

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// SetNewPG 将子进程放入独立进程组，终端发出的 SIGINT 不会直接送达子进程
func SetNewPG(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

/**
 * TerminateProcess 请求进程退出
 * @param {*os.Process} p - 目标进程
 * @returns {error} 发送信号失败时返回错误，进程已结束时返回 nil
 * @description
 * - 发送 SIGTERM，给设备机会上报 EXITING 状态
 * - 进程是进程组组长时信号发给整个进程组
 */
func TerminateProcess(p *os.Process) error {
	if p == nil {
		return nil
	}
	if pgid, err := syscall.Getpgid(p.Pid); err == nil && pgid == p.Pid {
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err == nil {
			return nil
		}
	}
	err := p.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		// 进程存在但属于其他用户
		return true, nil
	default:
		return false, err
	}
}

/**
 * RaiseInterrupt 恢复 SIGINT 的默认处理后向自身重新发送 SIGINT
 * @description
 * - 用于优雅退出超时后按默认方式结束进程
 */
func RaiseInterrupt() {
	ResetInterrupt()
	_ = syscall.Kill(os.Getpid(), syscall.SIGINT)
}

// ResetInterrupt 恢复 SIGINT 的默认处理
func ResetInterrupt() {
	signal.Reset(os.Interrupt)
}
