package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/registry"
)

// Loop polls the registry and processes device output.
type Loop struct {
	reg      *registry.Registry
	out      io.Writer
	interval time.Duration
}

/**
 * Create a monitor loop
 * @param {*registry.Registry} reg - Registry of the run
 * @param {io.Writer} out - Operator output, receives "[pid]: line" for echoed lines
 * @param {time.Duration} interval - Polling period
 * @returns {*Loop} Loop ready to Run
 */
func NewLoop(reg *registry.Registry, out io.Writer, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Loop{reg: reg, out: out, interval: interval}
}

/**
 * Process the pending output of every device once
 * @description
 * - Each device is handled under its own lock, one device at a time
 * - Metric lines go to the device metrics, control lines are executed,
 *   other lines are stored in history and echoed unless quiet or filtered out
 * - A trailing partial line stays buffered
 * - QUIT valid-for ALL is applied after the pass, once no device lock is held
 */
func (l *Loop) Tick() {
	quitAll := false
	for i := 0; i < l.reg.Len(); i++ {
		info := l.reg.Device(i)
		metrics := l.reg.Metrics(i)
		ctrl := l.reg.Control(i)

		info.WithLock(func() {
			if !info.HasUnprintedUnsafe() {
				return
			}
			for _, text := range info.TakeCompleteLinesUnsafe() {
				line := Classify(text)
				switch line.Kind {
				case MetricLine:
					logger.Debugf("metric %s=%s from %s", line.Key, line.Sample.Value, info.ID)
					metrics.Append(line.Key, line.Sample)
				case ControlLine:
					logger.Infof("control command %s valid for %s from %s", line.Command, line.Scope, info.ID)
					if line.Command != CommandQuit {
						continue
					}
					switch line.Scope {
					case ScopeAll:
						quitAll = true
					case ScopeMe:
						info.SetReadyToQuitUnsafe(true)
					}
				default:
					if ctrl.Quiet || !strings.Contains(text, ctrl.LogFilter) {
						continue
					}
					info.AppendHistoryUnsafe(text)
					fmt.Fprintf(l.out, "[%d]: %s\n", info.PidUnsafe(), text)
				}
			}
		})
	}
	if quitAll {
		l.reg.MarkAllReadyToQuit()
	}
}

/**
 * Run the loop until every device is ready to quit
 * @param {context.Context} ctx - Cancelling it stops the loop
 * @returns {error} nil once every device is ready to quit, ctx.Err() when cancelled
 */
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if l.reg.AllReadyToQuit() {
			// 设备退出前写出的最后几行
			l.Tick()
			return nil
		}
		select {
		case <-ctx.Done():
			// 退出前把已经收到的输出处理完
			l.Tick()
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}
