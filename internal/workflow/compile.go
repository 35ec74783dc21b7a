package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelMethod tells whether a channel endpoint binds or connects.
type ChannelMethod string

const (
	Bind    ChannelMethod = "bind"
	Connect ChannelMethod = "connect"
)

// ChannelType is the transport pattern of a channel endpoint.
type ChannelType string

const (
	Push ChannelType = "push"
	Pull ChannelType = "pull"
)

// ChannelSpec is one endpoint of a channel edge.
type ChannelSpec struct {
	Name     string
	Method   ChannelMethod
	Type     ChannelType
	Hostname string
	Port     int
}

// Address returns the transport address of the endpoint.
func (c ChannelSpec) Address() string {
	return fmt.Sprintf("tcp://%s:%d", c.Hostname, c.Port)
}

// ConfigString renders the endpoint the way it is passed on a device command line.
func (c ChannelSpec) ConfigString() string {
	return fmt.Sprintf("name=%s,type=%s,method=%s,address=%s", c.Name, c.Type, c.Method, c.Address())
}

// DeviceKind classifies a device by whether it consumes anything.
type DeviceKind string

const (
	Source    DeviceKind = "source"
	Processor DeviceKind = "processor"
)

// DeviceSpec is the compiled, deployable description of one stage.
type DeviceSpec struct {
	ID        string
	Kind      DeviceKind
	Channels  []ChannelSpec
	Args      []string
	Options   []ConfigParam
	Inputs    []InputSpec
	Outputs   []OutputSpec
	Algorithm Algorithm
}

// CompileOptions controls the parts of device specs which depend on the deployment.
type CompileOptions struct {
	// Executable is the first element of every device's argument list
	Executable string
	// ExtraArgs follow the device id, e.g. the workflow selection a child needs
	ExtraArgs []string
	BasePort  int
	Hostname  string
}

/**
 * Compile a workflow into one device spec per stage
 * @param {Workflow} stages - Stages in declaration order
 * @param {CompileOptions} opts - Executable, first port and hostname used for channels
 * @returns {[]DeviceSpec} Device specs in stage order
 * @returns {error} Verification error, or ErrUnresolvedInput when no stage produces an input
 * @description
 * - Verifies the workflow first; nothing is compiled for an invalid workflow
 * - For every input, the first output (in stage order) with the same descriptor is the producer
 * - Every producer/consumer pair gets its own channel: bind on the producer, connect on the consumer
 * - Channel names are unique; a name already taken by an earlier edge gets a _2, _3... suffix
 * - Ports are assigned sequentially from BasePort in edge creation order
 * - The result only depends on the inputs, compiling twice gives identical specs
 */
func Compile(stages Workflow, opts CompileOptions) ([]DeviceSpec, error) {
	if err := Verify(stages); err != nil {
		return nil, err
	}
	if opts.Hostname == "" {
		opts.Hostname = "127.0.0.1"
	}

	specs := make([]DeviceSpec, len(stages))
	for i, stage := range stages {
		specs[i] = DeviceSpec{
			ID:        stage.Name,
			Kind:      Source,
			Options:   append([]ConfigParam(nil), stage.Options...),
			Inputs:    append([]InputSpec(nil), stage.Inputs...),
			Outputs:   append([]OutputSpec(nil), stage.Outputs...),
			Algorithm: stage.Algorithm,
		}
	}

	port := opts.BasePort
	names := make(map[string]struct{})
	for ci, consumer := range stages {
		for _, input := range consumer.Inputs {
			pi, found := findProducer(stages, input)
			if !found {
				return nil, &ValidationError{Kind: ErrUnresolvedInput, Stage: consumer.Name, Descriptor: input.String()}
			}
			name := uniqueName(channelName(stages[pi].Name, consumer.Name, input), names)
			specs[pi].Channels = append(specs[pi].Channels, ChannelSpec{
				Name: name, Method: Bind, Type: Push, Hostname: opts.Hostname, Port: port,
			})
			specs[ci].Channels = append(specs[ci].Channels, ChannelSpec{
				Name: name, Method: Connect, Type: Pull, Hostname: opts.Hostname, Port: port,
			})
			specs[ci].Kind = Processor
			port++
		}
	}

	for i := range specs {
		specs[i].Args = deviceArgs(opts, &specs[i])
	}
	return specs, nil
}

func findProducer(stages Workflow, input InputSpec) (int, bool) {
	for i, stage := range stages {
		for _, output := range stage.Outputs {
			if input.Matches(output) {
				return i, true
			}
		}
	}
	return 0, false
}

func channelName(producer, consumer string, input InputSpec) string {
	name := fmt.Sprintf("from_%s_to_%s_%s_%s_%d", producer, consumer, input.Origin, input.Description, input.SubSpec)
	return strings.ToLower(strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(name))
}

// uniqueName returns base, or base with the first free numeric suffix, and marks it as used.
func uniqueName(base string, used map[string]struct{}) string {
	name := base
	for n := 2; ; n++ {
		if _, taken := used[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	used[name] = struct{}{}
	return name
}

// deviceArgs builds the command line a device is started with.
func deviceArgs(opts CompileOptions, spec *DeviceSpec) []string {
	args := []string{opts.Executable, "--id", spec.ID}
	args = append(args, opts.ExtraArgs...)
	for _, ch := range spec.Channels {
		args = append(args, "--channel-config", ch.ConfigString())
	}
	for _, opt := range spec.Options {
		args = append(args, "--"+opt.Name, formatOption(opt.Default))
	}
	return args
}

func formatOption(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float32:
		return strconv.FormatFloat(float64(value), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

/**
 * Find a device spec by id
 * @param {[]DeviceSpec} specs - Compiled device specs
 * @param {string} id - Device id
 * @returns {*DeviceSpec} First spec with the id, nil if none matches
 */
func FindDevice(specs []DeviceSpec, id string) *DeviceSpec {
	for i := range specs {
		if specs[i].ID == id {
			return &specs[i]
		}
	}
	return nil
}
