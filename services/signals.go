package services

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/utils"
)

/**
 * WithInterrupt 处理 SIGINT
 * @param {context.Context} parent - 父 context
 * @param {time.Duration} grace - 第一次 SIGINT 之后等待清理的时间
 * @returns {context.Context} 收到 SIGINT 时取消的 context
 * @returns {context.CancelFunc} 结束监听，运行正常返回后调用
 * @description
 * - 第一次 SIGINT 取消 context，随后恢复默认处理，再次 SIGINT 直接结束进程
 * - 超过 grace 仍未调用返回的 CancelFunc 时重新发出 SIGINT
 */
func WithInterrupt(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	finished := make(chan struct{})

	go func() {
		select {
		case <-sigs:
		case <-finished:
			return
		}
		logger.Warn("Interrupted, shutting down devices")
		signal.Stop(sigs)
		cancel()
		utils.ResetInterrupt()

		select {
		case <-finished:
		case <-time.After(grace):
			logger.Warn("Shutdown did not finish in time")
			utils.RaiseInterrupt()
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(finished)
			cancel()
		})
	}
}
