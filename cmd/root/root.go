package root

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flowkeeper/controllers"
	"flowkeeper/internal/config"
	"flowkeeper/internal/logger"
	"flowkeeper/internal/workflow"
	"flowkeeper/services"

	"github.com/spf13/cobra"
)

var (
	// Version is reported by the status API, set from cmd
	Version = ""
	// ExitCode is the process exit code of the last run
	ExitCode = 0

	quiet        bool
	deviceID     string
	WorkflowName string
	ConfigPath   string
)

var RootCmd = &cobra.Command{
	Use:   "flowkeeper",
	Short: "数据流工作流编排器",
	Long: `flowkeeper将工作流编译为设备拓扑，通过部署服务启动设备，
并汇总设备的状态、指标和日志输出`,
	Args:               cobra.ArbitraryArgs,
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		ExitCode = run(cmd.Context(), cfg)
		return nil
	},
}

/**
 * LoadConfig 读取 --config 指定的配置并初始化日志
 * @returns {*config.AppConfig} 应用配置
 * @returns {error} 配置文件无法读取或解析时返回错误
 */
func LoadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.Config = *cfg

	prefix := ""
	if deviceID != "" {
		prefix = "[" + deviceID + "] "
	}
	logger.InitLogger(&cfg.Log, prefix)
	return cfg, nil
}

/**
 * LoadWorkflow 加载 --workflow 指定的工作流
 * @returns {workflow.Workflow} 工作流
 * @returns {error} 工作流未注册或文件无法解析时返回错误
 * @description
 * - 以 .yaml/.yml 结尾的值按工作流文件加载，否则按注册名查找
 */
func LoadWorkflow() (workflow.Workflow, error) {
	if isWorkflowFile(WorkflowName) {
		return workflow.LoadFile(WorkflowName)
	}
	return workflow.Lookup(WorkflowName)
}

func isWorkflowFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// CompileOptions returns the compile options the orchestrator uses for cfg.
func CompileOptions(cfg *config.AppConfig) workflow.CompileOptions {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}
	return workflow.CompileOptions{
		Executable: executable,
		ExtraArgs:  childArgs(),
		BasePort:   cfg.Deploy.BasePort,
		Hostname:   cfg.Deploy.Hostname,
	}
}

// childArgs 设备子进程需要与父进程加载同一个工作流和配置
func childArgs() []string {
	name := WorkflowName
	if isWorkflowFile(name) {
		if abs, err := filepath.Abs(name); err == nil {
			name = abs
		}
	}
	args := []string{"--workflow", name}
	if ConfigPath != "" {
		path := ConfigPath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		args = append(args, "--config", path)
	}
	return args
}

func run(ctx context.Context, cfg *config.AppConfig) int {
	stages, err := LoadWorkflow()
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	if ctx == nil {
		ctx = context.Background()
	}

	orch := services.NewOrchestrator(cfg)
	if cfg.Server.Address != "" && deviceID == "" {
		orch.SetAPIServer(controllers.NewStatusServer(cfg.Server, Version, orch.Session()))
	}

	ctx, stop := services.WithInterrupt(ctx, cfg.Monitor.InterruptGrace)
	defer stop()
	return orch.Run(ctx, services.RunOptions{
		Workflow:  stages,
		DeviceID:  deviceID,
		Quiet:     quiet,
		Args:      os.Args[1:],
		ChildArgs: childArgs(),
	})
}

func init() {
	RootCmd.Flags().SortFlags = false
	RootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not echo device output")
	RootCmd.Flags().StringVarP(&deviceID, "id", "i", "", "Run only the device with this id (used by spawned devices)")
	RootCmd.PersistentFlags().StringVarP(&WorkflowName, "workflow", "w", "diamond", "Registered workflow name or workflow YAML file")
	RootCmd.PersistentFlags().StringVarP(&ConfigPath, "config", "c", "", "Config file (default ./flowkeeper.yaml)")
}
