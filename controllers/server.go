package controllers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"flowkeeper/internal/config"
	"flowkeeper/internal/logger"
	"flowkeeper/internal/middleware"
	"flowkeeper/internal/registry"

	"github.com/gin-gonic/gin"
)

/**
 * NewRouter 创建状态API的路由
 * @param {*registry.Registry} reg - 编排运行的注册表
 * @param {string} version - 程序版本
 * @param {string} session - 编排会话ID
 * @returns {*gin.Engine} 注册了设备接口、健康检查和 /metrics 的 gin 引擎
 */
func NewRouter(reg *registry.Registry, version, session string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.MetricsMiddleware())

	NewDeviceController(reg).RegisterRoutes(router)
	NewAPIController(reg, version, session).RegisterRoutes(router)
	return router
}

// StatusServer serves the status API of one orchestrator run.
type StatusServer struct {
	cfg     config.ServerConfig
	version string
	session string
	srv     *http.Server
}

func NewStatusServer(cfg config.ServerConfig, version, session string) *StatusServer {
	return &StatusServer{cfg: cfg, version: version, session: session}
}

/**
 * Start 开始监听并在后台提供服务
 * @param {*registry.Registry} reg - 编排运行的注册表
 * @returns {error} 监听失败时返回错误
 * @description
 * - 地址为 host:port 时监听 tcp，为绝对路径时监听 unix socket
 */
func (s *StatusServer) Start(reg *registry.Registry) error {
	if s.cfg.Mode != "" {
		gin.SetMode(s.cfg.Mode)
	}
	network := "tcp"
	if strings.HasPrefix(s.cfg.Address, "/") {
		// 以 / 开头的地址为 unix socket 路径，先清理上次运行残留的文件
		network = "unix"
		_ = os.Remove(s.cfg.Address)
	}
	ln, err := net.Listen(network, s.cfg.Address)
	if err != nil {
		return err
	}
	s.srv = &http.Server{Handler: NewRouter(reg, s.version, s.session)}
	logger.Infof("Status API listening on %s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Status API stopped: %v", err)
		}
	}()
	return nil
}

func (s *StatusServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
