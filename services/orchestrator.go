package services

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"flowkeeper/internal/config"
	"flowkeeper/internal/control"
	"flowkeeper/internal/deploy"
	"flowkeeper/internal/device"
	"flowkeeper/internal/env"
	"flowkeeper/internal/logger"
	"flowkeeper/internal/models"
	"flowkeeper/internal/monitor"
	"flowkeeper/internal/proc"
	"flowkeeper/internal/registry"
	"flowkeeper/internal/topology"
	"flowkeeper/internal/utils"
	"flowkeeper/internal/workflow"
)

var ErrUnknownDeviceId = errors.New("unknown device id")

// Deployer drives the external deployment service.
type Deployer interface {
	Prepare(ctx context.Context) error
	Env() []string
	Setup(ctx context.Context) error
	Submit(ctx context.Context, n int) error
	ListAgents(ctx context.Context) ([]string, error)
	Teardown(ctx context.Context) error
}

// BusConnector opens the control bus at url.
type BusConnector func(url, name string) (control.Bus, error)

// APIServer serves the registry of a running orchestrator.
type APIServer interface {
	Start(reg *registry.Registry) error
	Stop(ctx context.Context) error
}

/**
 * RunOptions 一次编排运行的参数
 * @property {workflow.Workflow} Workflow - 待编译的工作流
 * @property {string} DeviceID - 非空时只在进程内运行该设备（子进程路径）
 * @property {bool} Quiet - 不回显设备输出
 * @property {[]string} Args - 命令行参数（不含可执行文件），子进程从中解析选项
 * @property {[]string} ChildArgs - 追加到每个设备命令行的参数，例如 --workflow
 */
type RunOptions struct {
	Workflow  workflow.Workflow
	DeviceID  string
	Quiet     bool
	Args      []string
	ChildArgs []string
}

// Orchestrator runs one compiled workflow, either as the parent of all devices or as a single device.
type Orchestrator struct {
	cfg        *config.AppConfig
	deployer   Deployer
	connect    BusConnector
	api        APIServer
	executable string
	stdout     io.Writer
	session    string
	reg        *registry.Registry
	mutex      sync.Mutex
}

/**
 * NewOrchestrator 创建编排器
 * @param {*config.AppConfig} cfg - 应用配置
 * @returns {*Orchestrator} 使用 deploy.Driver、NATS 总线和当前可执行文件的编排器
 */
func NewOrchestrator(cfg *config.AppConfig) *Orchestrator {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}
	return &Orchestrator{
		cfg:        cfg,
		deployer:   deploy.NewDriver(cfg.Deploy, nil),
		connect:    connectNats,
		executable: executable,
		stdout:     os.Stdout,
		session:    env.Session(),
	}
}

func connectNats(url, name string) (control.Bus, error) {
	bus, err := control.ConnectNats(url, name)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

func (o *Orchestrator) SetDeployer(d Deployer) {
	o.deployer = d
}

func (o *Orchestrator) SetBusConnector(c BusConnector) {
	o.connect = c
}

func (o *Orchestrator) SetAPIServer(s APIServer) {
	o.api = s
}

// SetExecutable sets the program spawned for every local device.
func (o *Orchestrator) SetExecutable(path string) {
	o.executable = path
}

// SetOutput sets the operator output, where echoed device lines and child-path device output go.
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.stdout = w
}

func (o *Orchestrator) Session() string {
	return o.session
}

// Registry returns the registry of the current parent run, nil before it is created.
func (o *Orchestrator) Registry() *registry.Registry {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.reg
}

/**
 * Run 运行工作流
 * @param {context.Context} ctx - 取消时结束监控循环或设备
 * @param {RunOptions} opts - 工作流与命令行参数
 * @returns {int} 进程退出码
 * @description
 * - 先校验并编译工作流，失败返回1
 * - 指定了设备ID时运行子进程路径，否则运行父进程路径
 */
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) int {
	specs, err := workflow.Compile(opts.Workflow, workflow.CompileOptions{
		Executable: o.executable,
		ExtraArgs:  opts.ChildArgs,
		BasePort:   o.cfg.Deploy.BasePort,
		Hostname:   o.cfg.Deploy.Hostname,
	})
	if err != nil {
		logger.Errorf("Invalid workflow: %v", err)
		return 1
	}
	if opts.DeviceID != "" {
		return o.runChild(ctx, specs, opts)
	}
	return o.runParent(ctx, specs, opts)
}

func (o *Orchestrator) runChild(ctx context.Context, specs []workflow.DeviceSpec, opts RunOptions) int {
	spec := workflow.FindDevice(specs, opts.DeviceID)
	if spec == nil {
		logger.Errorf("%v: %s", ErrUnknownDeviceId, opts.DeviceID)
		return 1
	}

	url := os.Getenv(env.BusURLVar)
	if url == "" {
		url = o.cfg.Bus.URL
	}
	var bus control.Bus
	if url != "" {
		b, err := o.connect(url, "flowkeeper-"+spec.ID)
		if err != nil {
			logger.Warnf("Device %s runs without control bus: %v", spec.ID, err)
		} else {
			bus = b
			defer b.Close()
		}
	}

	return device.Run(ctx, *spec, device.RunOptions{
		Bus:               bus,
		Subject:           control.Subject(o.cfg.Bus.SubjectPrefix, o.session),
		Stdout:            o.stdout,
		Args:              opts.Args,
		HeartbeatInterval: o.cfg.Device.HeartbeatInterval,
		Interval:          o.cfg.Device.ProcessInterval,
	})
}

/**
 * runParent 父进程路径
 * @description
 * - 写出拓扑文件，准备部署环境（缺少根目录变量时返回1）
 * - 依次执行 setup/submit/agent-list，失败只记录日志
 * - 建立注册表，订阅控制总线，启动本地设备进程和状态API
 * - 监控循环结束后执行 teardown 并停止本地设备
 */
func (o *Orchestrator) runParent(ctx context.Context, specs []workflow.DeviceSpec, opts RunOptions) int {
	if err := topology.WriteFile(o.cfg.Deploy.TopologyFile, o.cfg.Deploy.TopologyID, specs); err != nil {
		logger.Errorf("Failed to write topology: %v", err)
		return 1
	}
	logger.Infof("Topology with %d devices written to %s", len(specs), o.cfg.Deploy.TopologyFile)

	if err := o.deployer.Prepare(ctx); err != nil {
		if errors.Is(err, deploy.ErrMissingRoot) {
			logger.Errorf("%v", err)
			return 1
		}
		logger.Errorf("Failed to prepare deployment environment: %v", err)
	}
	if err := o.deployer.Setup(ctx); err != nil {
		logger.Errorf("Deployment setup failed: %v", err)
	}
	if err := o.deployer.Submit(ctx, len(specs)); err != nil {
		logger.Errorf("Agent submission failed: %v", err)
	}
	if agents, err := o.deployer.ListAgents(ctx); err != nil {
		logger.Errorf("Listing agents failed: %v", err)
	} else {
		logger.Infof("%d agents available", len(agents))
	}

	reg := registry.New(specs, registry.DeviceControl{
		Quiet:     opts.Quiet,
		LogFilter: o.cfg.Monitor.LogFilter,
	}, o.cfg.Monitor.HistorySize)
	o.mutex.Lock()
	o.reg = reg
	o.mutex.Unlock()

	collector := registry.NewCollector(reg)
	if err := prometheus.Register(collector); err != nil {
		logger.Warnf("Device metrics not exported: %v", err)
	} else {
		defer prometheus.Unregister(collector)
	}

	bus := o.openBus()
	defer bus.Close()
	listener := control.NewListener(reg)
	subject := control.Subject(o.cfg.Bus.SubjectPrefix, o.session)
	if err := listener.Start(bus, subject); err != nil {
		logger.Errorf("Failed to subscribe to %s: %v", subject, err)
	} else {
		logger.Infof("Listening for control messages on %s", subject)
		defer listener.Stop()
	}

	var processes []*proc.DeviceProcess
	if o.cfg.Deploy.SpawnLocal {
		// 设备进程由 stopDevices 优雅停止，不随 ctx 一起被强制结束
		processes = o.spawnDevices(context.WithoutCancel(ctx), specs, reg)
	}

	if o.api != nil {
		if err := o.api.Start(reg); err != nil {
			logger.Errorf("Status API not started: %v", err)
		} else {
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := o.api.Stop(stopCtx); err != nil {
					logger.Warnf("Status API shutdown: %v", err)
				}
			}()
		}
	}

	loop := monitor.NewLoop(reg, o.stdout, o.cfg.Monitor.PollInterval)
	if err := loop.Run(ctx); err != nil {
		logger.Warnf("Monitoring interrupted: %v", err)
	} else {
		logger.Info("All devices are ready to quit")
	}

	teardownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.deployer.Teardown(teardownCtx); err != nil {
		logger.Errorf("Deployment teardown failed: %v", err)
	}
	o.stopDevices(processes)
	return 0
}

// openBus connects to the configured bus, falling back to an in-process bus.
func (o *Orchestrator) openBus() control.Bus {
	if o.cfg.Bus.URL != "" {
		bus, err := o.connect(o.cfg.Bus.URL, "flowkeeper-"+o.session)
		if err == nil {
			return bus
		}
		logger.Warnf("Control bus %s unavailable, devices will not report state: %v", o.cfg.Bus.URL, err)
	}
	return control.NewMemoryBus()
}

/**
 * spawnDevices 为每个设备启动本地子进程
 * @returns {[]*proc.DeviceProcess} 成功启动的进程
 * @description
 * - 子进程的 stdout/stderr 写入注册表中对应设备的缓冲区
 * - 子进程继承部署环境，并通过环境变量获得会话ID和总线地址
 * - 子进程退出后设备标记为不活跃且可以退出
 */
func (o *Orchestrator) spawnDevices(ctx context.Context, specs []workflow.DeviceSpec, reg *registry.Registry) []*proc.DeviceProcess {
	ports := make([]int, 0)
	for _, spec := range specs {
		for _, ch := range spec.Channels {
			if ch.Method == workflow.Bind {
				ports = append(ports, ch.Port)
			}
		}
	}
	if busy := utils.BusyPorts(o.cfg.Deploy.Hostname, ports); len(busy) > 0 {
		logger.Warnf("Channel ports already in use: %v", busy)
	}

	childEnv := append(o.deployer.Env(),
		env.SessionVar+"="+o.session,
		env.BusURLVar+"="+o.cfg.Bus.URL,
	)

	var processes []*proc.DeviceProcess
	for i, spec := range specs {
		info := reg.Device(i)
		dp := proc.NewDeviceProcess(spec.ID, spec.Args[0], spec.Args[1:], info)
		dp.Env = childEnv
		dp.SetWatcher(func(p *proc.DeviceProcess) {
			detail := p.GetDetail()
			if detail.Status == models.StatusError {
				logger.Errorf("Device %s: %s", p.ID, detail.LastExitReason)
			}
			info.SetActive(false)
			info.SetReadyToQuit(true)
		})
		if err := dp.Start(ctx); err != nil {
			info.SetActive(false)
			info.SetReadyToQuit(true)
			continue
		}
		info.SetPid(dp.Pid())
		processes = append(processes, dp)
	}
	return processes
}

func (o *Orchestrator) stopDevices(processes []*proc.DeviceProcess) {
	var g errgroup.Group
	for _, dp := range processes {
		dp := dp
		g.Go(func() error {
			return dp.Stop(o.cfg.Monitor.ShutdownGrace)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warnf("Failed to stop device: %v", err)
	}
}
