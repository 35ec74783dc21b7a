// Package workflows registers the built-in workflows and the algorithms
// YAML workflow files can refer to.
package workflows

import (
	"sync"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/workflow"
)

func init() {
	workflow.RegisterAlgorithm("generate", Generate)
	workflow.RegisterAlgorithm("relay", Relay)
	workflow.RegisterAlgorithm("collect", Collect)
	workflow.Register("diamond", Diamond)
}

// iterations counts algorithm invocations per device.
type iterations struct {
	mutex sync.Mutex
	count map[string]int
}

func (it *iterations) next(id string) int {
	it.mutex.Lock()
	defer it.mutex.Unlock()
	if it.count == nil {
		it.count = make(map[string]int)
	}
	it.count[id]++
	return it.count[id]
}

var (
	generated iterations
	relayed   iterations
	collected iterations
)

// Generate posts one "generated" sample per invocation, plus the configured rate.
func Generate(pc workflow.ProcessingContext) error {
	n := generated.next(pc.DeviceID())
	pc.Metrics().Post("generated", n)
	if rate, ok := pc.Option("rate").(float64); ok {
		pc.Metrics().Post("rate", rate)
	}
	return nil
}

func Relay(pc workflow.ProcessingContext) error {
	pc.Metrics().Post("relayed", relayed.next(pc.DeviceID()))
	return nil
}

/**
 * Collect 汇总上游数据
 * @description
 * - 调用次数达到 limit 后请求整个工作流退出
 * - verbose 为 true 时每次调用输出一行日志
 */
func Collect(pc workflow.ProcessingContext) error {
	n := collected.next(pc.DeviceID())
	pc.Metrics().Post("collected", n)
	if verbose, _ := pc.Option("verbose").(bool); verbose {
		logger.Infof("%s collected %d", pc.DeviceID(), n)
	}
	if limit, ok := pc.Option("limit").(int); ok && limit > 0 && n >= limit {
		pc.Control().ReadyToQuit(true)
	}
	return nil
}

/**
 * Diamond 菱形工作流
 * @returns {workflow.Workflow} Sampler 产生 A、B 两路数据，ProcA/ProcB 分别处理，Sink 汇总
 */
func Diamond() workflow.Workflow {
	return workflow.Workflow{
		{
			Name: "Sampler",
			Outputs: []workflow.OutputSpec{
				{Origin: "TST", Description: "A"},
				{Origin: "TST", Description: "B"},
			},
			Options:   []workflow.ConfigParam{{Name: "rate", Type: workflow.OptionFloat, Default: 2.5, Help: "Samples per second"}},
			Algorithm: Generate,
		},
		{
			Name:      "ProcA",
			Inputs:    []workflow.InputSpec{{Origin: "TST", Description: "A"}},
			Outputs:   []workflow.OutputSpec{{Origin: "TST", Description: "A-derived"}},
			Algorithm: Relay,
		},
		{
			Name:      "ProcB",
			Inputs:    []workflow.InputSpec{{Origin: "TST", Description: "B"}},
			Outputs:   []workflow.OutputSpec{{Origin: "TST", Description: "B-derived"}},
			Algorithm: Relay,
		},
		{
			Name: "Sink",
			Inputs: []workflow.InputSpec{
				{Origin: "TST", Description: "A-derived"},
				{Origin: "TST", Description: "B-derived"},
			},
			Options: []workflow.ConfigParam{
				{Name: "limit", Type: workflow.OptionInt, Default: 10, Help: "Invocations before the workflow quits"},
				{Name: "verbose", Type: workflow.OptionBool, Default: true, Help: "Log every invocation"},
			},
			Algorithm: Collect,
		},
	}
}
