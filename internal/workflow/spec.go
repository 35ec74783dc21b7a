// Package workflow holds the declarative description of a processing workflow,
// its verification and its compilation into deployable device specs.
package workflow

import (
	"context"
	"fmt"
)

// Lifetime qualifies how long a piece of data stays valid.
type Lifetime int

const (
	Timeframe Lifetime = iota
	Condition
	QA
)

func (l Lifetime) String() string {
	switch l {
	case Timeframe:
		return "timeframe"
	case Condition:
		return "condition"
	case QA:
		return "qa"
	default:
		return "unknown"
	}
}

// InputSpec declares data a stage consumes.
type InputSpec struct {
	Origin      string
	Description string
	SubSpec     uint32
	Lifetime    Lifetime
}

// OutputSpec declares data a stage produces.
type OutputSpec struct {
	Origin      string
	Description string
	SubSpec     uint32
	Lifetime    Lifetime
}

// Matches reports whether the input is satisfied by the output. The
// lifetime qualifier does not take part in matching.
func (i InputSpec) Matches(o OutputSpec) bool {
	return i.Origin == o.Origin && i.Description == o.Description && i.SubSpec == o.SubSpec
}

func (i InputSpec) String() string {
	return fmt.Sprintf("%s/%s/%d", i.Origin, i.Description, i.SubSpec)
}

func (o OutputSpec) String() string {
	return fmt.Sprintf("%s/%s/%d", o.Origin, o.Description, o.SubSpec)
}

// OptionType is the declared type of a stage option.
type OptionType string

const (
	OptionInt    OptionType = "int"
	OptionFloat  OptionType = "float"
	OptionString OptionType = "string"
	OptionBool   OptionType = "bool"
)

// ConfigParam is an option a stage accepts on its command line.
type ConfigParam struct {
	Name    string
	Type    OptionType
	Default any
	Help    string
}

// MetricsService publishes metric values from a running device.
type MetricsService interface {
	Post(key string, value any)
}

// ControlService lets a running device ask for shutdown.
type ControlService interface {
	// ReadyToQuit signals this device (all=false) or the whole workflow (all=true) is done.
	ReadyToQuit(all bool)
}

// ProcessingContext is handed to the algorithm on every invocation.
type ProcessingContext interface {
	Context() context.Context
	DeviceID() string
	Option(name string) any
	Metrics() MetricsService
	Control() ControlService
}

// Algorithm is the processing callback of a stage.
type Algorithm func(pc ProcessingContext) error

// Stage is a named unit of processing.
type Stage struct {
	Name      string
	Inputs    []InputSpec
	Outputs   []OutputSpec
	Options   []ConfigParam
	Algorithm Algorithm
}

// Workflow is the ordered list of stages making up a pipeline.
type Workflow []Stage
