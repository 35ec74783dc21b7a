// Package device is the in-process runtime of one compiled device, used on
// the child execution path.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"flowkeeper/internal/control"
	"flowkeeper/internal/logger"
	"flowkeeper/internal/models"
	"flowkeeper/internal/workflow"
)

/**
 * RunOptions 设备运行参数
 * @property {control.Bus} Bus - 控制总线，nil 时不上报心跳和状态
 * @property {string} Subject - 控制总线主题
 * @property {io.Writer} Stdout - 指标和控制行的输出，默认 os.Stdout
 * @property {[]string} Args - 命令行参数（不含可执行文件），用于解析选项
 * @property {time.Duration} HeartbeatInterval - 心跳间隔
 * @property {time.Duration} Interval - 两次调用算法之间的间隔
 * @property {int} Pid - 心跳中携带的进程号，默认 os.Getpid()
 */
type RunOptions struct {
	Bus               control.Bus
	Subject           string
	Stdout            io.Writer
	Args              []string
	HeartbeatInterval time.Duration
	Interval          time.Duration
	Pid               int
}

type processingContext struct {
	ctx     context.Context
	id      string
	options map[string]any
	metrics *textMetrics
	control *textControl
}

func (pc *processingContext) Context() context.Context { return pc.ctx }
func (pc *processingContext) DeviceID() string { return pc.id }
func (pc *processingContext) Option(name string) any { return pc.options[name] }
func (pc *processingContext) Metrics() workflow.MetricsService { return pc.metrics }
func (pc *processingContext) Control() workflow.ControlService { return pc.control }

type runner struct {
	spec workflow.DeviceSpec
	opts RunOptions
}

func (r *runner) report(label string) {
	r.publish(control.FormatStateChange(r.spec.ID, label))
}

func (r *runner) publish(msg string) {
	if r.opts.Bus == nil {
		return
	}
	if err := r.opts.Bus.Publish(r.opts.Subject, []byte(msg)); err != nil {
		logger.Warnf("publish %q failed: %v", msg, err)
	}
}

/**
 * Run one device until it asks to quit or the context ends
 * @param {context.Context} ctx - Cancelling it stops the device normally
 * @param {workflow.DeviceSpec} spec - Compiled device
 * @param {RunOptions} opts - Bus, output and timing settings
 * @returns {int} Exit code: 0 on normal stop, 1 when option parsing or the algorithm fails
 * @description
 * - Reports INITIALIZING DEVICE, DEVICE READY, INITIALIZING TASK, READY, RUNNING, then EXITING
 * - Sends a heartbeat right away and every HeartbeatInterval
 * - Calls the algorithm repeatedly, every Interval
 * - A panic in the algorithm is recovered and treated as a failure
 */
func Run(ctx context.Context, spec workflow.DeviceSpec, opts RunOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Pid == 0 {
		opts.Pid = os.Getpid()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	r := &runner{spec: spec, opts: opts}
	logger.Infof("Spawning device %s (%s) in process %d", spec.ID, spec.Kind, opts.Pid)

	r.report(models.InitializingDevice.Label())
	options, err := ParseOptions(spec, opts.Args)
	if err != nil {
		logger.Errorf("device %s: invalid options: %v", spec.ID, err)
		r.report(models.Exiting.Label())
		return 1
	}
	r.report(models.DeviceReady.Label())

	out := &lockedWriter{w: opts.Stdout}
	ctrl := &textControl{out: out, requested: make(chan struct{})}

	r.report(models.InitializingTask.Label())
	g, gctx := errgroup.WithContext(ctx)
	pc := &processingContext{
		ctx:     gctx,
		id:      spec.ID,
		options: options,
		metrics: &textMetrics{out: out, now: time.Now},
		control: ctrl,
	}
	r.report(models.Ready.Label())
	r.report(models.Running.Label())

	runCtx, stop := context.WithCancel(gctx)
	g.Go(func() error {
		r.heartbeat(runCtx)
		return nil
	})
	g.Go(func() error {
		defer stop()
		return r.process(runCtx, pc, ctrl.requested)
	})
	err = g.Wait()
	stop()

	r.report(models.Exiting.Label())
	if err != nil {
		logger.Errorf("Unhandled error reached the top of device %s: %v, device shutting down", spec.ID, err)
		return 1
	}
	return 0
}

func (r *runner) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		r.publish(control.FormatHeartbeat(r.spec.ID, r.opts.Pid))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *runner) process(ctx context.Context, pc *processingContext, quit <-chan struct{}) error {
	if r.spec.Algorithm == nil {
		logger.Debugf("device %s has no algorithm, idling", r.spec.ID)
		select {
		case <-ctx.Done():
		case <-quit:
		}
		return nil
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		if err := invoke(r.spec.Algorithm, pc); err != nil {
			return err
		}
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

var errPanic = errors.New("algorithm panicked")

func invoke(alg workflow.Algorithm, pc workflow.ProcessingContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errPanic, p)
		}
	}()
	return alg(pc)
}
