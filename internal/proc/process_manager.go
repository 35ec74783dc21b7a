package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/models"
	"flowkeeper/internal/utils"
)

/**
 * DeviceProcess 本地启动的设备子进程
 * @property {string} ID - 设备ID
 * @property {string} Command - 可执行文件
 * @property {[]string} Args - 命令参数（不含可执行文件）
 * @property {[]string} Env - 子进程环境变量，nil 表示继承当前环境
 * @property {models.RunStatus} Status - 进程状态: running/exited/stopped/error
 * @property {int} ExitCode - 退出码
 * @property {time.Time} StartTime - 启动时间
 * @property {time.Time} LastExitTime - 退出时间
 * @property {string} LastExitReason - 退出原因
 * @description
 * - 设备进程不会自动重启，退出后由 onExited 回调通知调用方
 */
type DeviceProcess struct {
	ID             string
	Command        string
	Args           []string
	Env            []string
	Status         models.RunStatus
	ExitCode       int
	StartTime      time.Time
	LastExitTime   time.Time
	LastExitReason string
	output         io.Writer            //stdout和stderr的去向
	onExited       func(*DeviceProcess) //进程退出时的回调函数
	cmd            *exec.Cmd            //正在运行的命令
	done           chan struct{}        //进程退出后关闭
	mutex          sync.Mutex           //保护实例数据一致性的锁
}

/**
 * NewDeviceProcess 创建设备进程实例
 * @param {string} id - 设备ID
 * @param {string} command - 可执行文件
 * @param {[]string} args - 命令参数
 * @param {io.Writer} output - 接收子进程 stdout/stderr，通常是设备在注册表中的缓冲区
 * @returns {*DeviceProcess} 尚未启动的进程实例
 */
func NewDeviceProcess(id, command string, args []string, output io.Writer) *DeviceProcess {
	return &DeviceProcess{
		ID:      id,
		Command: command,
		Args:    args,
		Status:  models.StatusExited,
		output:  output,
	}
}

// SetWatcher registers the callback invoked once the process has exited and its output is drained.
func (dp *DeviceProcess) SetWatcher(onExited func(*DeviceProcess)) {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	dp.onExited = onExited
}

func (dp *DeviceProcess) Pid() int {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()
	return dp.pid()
}

func (dp *DeviceProcess) pid() int {
	if dp.cmd == nil || dp.cmd.Process == nil {
		return 0
	}
	return dp.cmd.Process.Pid
}

func (dp *DeviceProcess) GetDetail() models.ProcessDetail {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	return models.ProcessDetail{
		ID:             dp.ID,
		Command:        dp.Command,
		Args:           dp.Args,
		Pid:            dp.pid(),
		Status:         dp.Status,
		ExitCode:       dp.ExitCode,
		StartTime:      dp.StartTime,
		LastExitTime:   dp.LastExitTime,
		LastExitReason: dp.LastExitReason,
	}
}

/**
 * Start 启动设备进程
 * @param {context.Context} ctx - 取消时强制结束进程
 * @returns {error} 返回错误信息
 * @description
 * - 子进程放入独立进程组，终端的 SIGINT 只发给编排器
 * - 启动协程等待进程退出并记录退出原因
 */
func (dp *DeviceProcess) Start(ctx context.Context) error {
	dp.mutex.Lock()
	defer dp.mutex.Unlock()

	if dp.Status == models.StatusRunning {
		return nil
	}
	logger.Infof("Executing command: %s %s", dp.Command, strings.Join(dp.Args, " "))

	cmd := exec.CommandContext(ctx, dp.Command, dp.Args...)
	cmd.Env = dp.Env
	cmd.Stdout = dp.output
	cmd.Stderr = dp.output
	cmd.WaitDelay = 2 * time.Second
	utils.SetNewPG(cmd)

	if err := cmd.Start(); err != nil {
		dp.Status = models.StatusError
		dp.LastExitReason = fmt.Sprintf("start failed: %v", err)
		logger.Errorf("Failed to start device '%s', error: %v", dp.ID, err)
		return err
	}

	dp.cmd = cmd
	dp.done = make(chan struct{})
	dp.Status = models.StatusRunning
	dp.StartTime = time.Now()
	logger.Infof("Device '%s' started (PID: %d)", dp.ID, cmd.Process.Pid)

	go dp.watchProcess(cmd, dp.done)
	return nil
}

/**
 * watchProcess 等待进程退出
 * @description
 * - cmd.Wait() 返回时子进程输出已经全部写入 output
 * - 回调在释放锁之后执行
 */
func (dp *DeviceProcess) watchProcess(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	dp.mutex.Lock()
	dp.LastExitTime = time.Now()
	dp.ExitCode = cmd.ProcessState.ExitCode()
	switch {
	case dp.Status == models.StatusStopped:
		dp.LastExitReason = "stopped by orchestrator"
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			dp.LastExitReason = fmt.Sprintf("exited with code %d", dp.ExitCode)
		} else {
			dp.LastExitReason = fmt.Sprintf("exited with error: %v", err)
		}
		dp.Status = models.StatusError
		logger.Errorf("Device '%s' (PID: %d) %s", dp.ID, cmd.Process.Pid, dp.LastExitReason)
	default:
		dp.LastExitReason = "exited normally"
		dp.Status = models.StatusExited
		logger.Infof("Device '%s' (PID: %d) exited normally", dp.ID, cmd.Process.Pid)
	}
	onExited := dp.onExited
	dp.mutex.Unlock()

	close(done)
	if onExited != nil {
		onExited(dp)
	}
}

/**
 * Stop 停止设备进程
 * @param {time.Duration} grace - 发送 SIGTERM 后等待的时间，超时后强制结束
 * @returns {error} 返回错误信息
 */
func (dp *DeviceProcess) Stop(grace time.Duration) error {
	dp.mutex.Lock()
	if dp.Status != models.StatusRunning {
		dp.mutex.Unlock()
		return nil
	}
	dp.Status = models.StatusStopped
	pid := dp.pid()
	process := dp.cmd.Process
	done := dp.done
	dp.mutex.Unlock()

	if err := utils.TerminateProcess(process); err != nil {
		logger.Debugf("Failed to terminate device '%s' (PID: %d): %v", dp.ID, pid, err)
	}
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warnf("Device '%s' (PID: %d) did not exit in %v, killing", dp.ID, pid, grace)
		if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-done
	}
	logger.Infof("Device '%s' (PID: %d) stopped", dp.ID, pid)
	return nil
}

// Wait blocks until a started process has exited.
func (dp *DeviceProcess) Wait() {
	dp.mutex.Lock()
	done := dp.done
	dp.mutex.Unlock()
	if done != nil {
		<-done
	}
}
