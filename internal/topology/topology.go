// Package topology exports compiled device specs as the XML topology
// description consumed by the deployment service, and reads it back.
package topology

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"flowkeeper/internal/workflow"
)

const (
	accessWrite = "write"
	accessRead  = "read"
)

var ErrInvalidTopology = errors.New("invalid topology")

type document struct {
	XMLName    xml.Name   `xml:"topology"`
	ID         string     `xml:"id,attr"`
	Properties []property `xml:"property"`
	Tasks      []declTask `xml:"decltask"`
	Main       mainGroup  `xml:"main"`
}

type property struct {
	ID string `xml:"id,attr"`
}

type declTask struct {
	ID         string        `xml:"id,attr"`
	Exe        exe           `xml:"exe"`
	Properties []propertyRef `xml:"properties>id"`
}

type exe struct {
	Reachable bool   `xml:"reachable,attr"`
	Command   string `xml:",cdata"`
}

type propertyRef struct {
	Access string `xml:"access,attr"`
	Name   string `xml:",chardata"`
}

type mainGroup struct {
	ID    string   `xml:"id,attr"`
	Tasks []string `xml:"task"`
}

// Topology is the decoded form of a topology description.
type Topology struct {
	ID      string
	Devices []workflow.DeviceSpec
}

/**
 * TaskIDs 为每个设备生成部署服务接受的任务ID
 * @param {[]workflow.DeviceSpec} specs - 编译后的设备
 * @returns {[]string} 与 specs 一一对应且互不相同的任务ID
 * @description
 * - 设备ID中的 - 替换为 _
 * - 替换后与前面的任务ID重复时追加 _2、_3... 后缀
 */
func TaskIDs(specs []workflow.DeviceSpec) []string {
	used := make(map[string]struct{}, len(specs))
	ids := make([]string, len(specs))
	for i, spec := range specs {
		base := strings.ReplaceAll(spec.ID, "-", "_")
		id := base
		for n := 2; ; n++ {
			if _, taken := used[id]; !taken {
				break
			}
			id = fmt.Sprintf("%s_%d", base, n)
		}
		used[id] = struct{}{}
		ids[i] = id
	}
	return ids
}

func build(id string, specs []workflow.DeviceSpec) *document {
	doc := &document{ID: id, Main: mainGroup{ID: "main"}}
	for _, spec := range specs {
		for _, ch := range spec.Channels {
			if ch.Method == workflow.Bind {
				doc.Properties = append(doc.Properties, property{ID: ch.Name})
			}
		}
	}
	taskIDs := TaskIDs(specs)
	for i, spec := range specs {
		task := declTask{
			ID:  taskIDs[i],
			Exe: exe{Reachable: true, Command: shellquote.Join(spec.Args...)},
		}
		for _, ch := range spec.Channels {
			access := accessRead
			if ch.Method == workflow.Bind {
				access = accessWrite
			}
			task.Properties = append(task.Properties, propertyRef{Access: access, Name: ch.Name})
		}
		doc.Tasks = append(doc.Tasks, task)
		doc.Main.Tasks = append(doc.Main.Tasks, task.ID)
	}
	return doc
}

/**
 * Write the topology description of compiled device specs
 * @param {io.Writer} w - Destination
 * @param {string} id - Topology id attribute
 * @param {[]workflow.DeviceSpec} specs - Compiled device specs
 * @returns {error} Error if encoding or writing fails
 * @description
 * - Every bind channel is declared as a top-level property
 * - Each device becomes a decltask holding its quoted command line and channel accesses
 * - The main group lists every task in spec order
 */
func Write(w io.Writer, id string, specs []workflow.DeviceSpec) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(build(id, specs)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile writes the topology description to path, replacing an existing file.
func WriteFile(path, id string, specs []workflow.DeviceSpec) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, id, specs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

/**
 * Read a topology description back into device specs
 * @param {io.Reader} r - Topology XML
 * @returns {*Topology} Topology id and devices in task order
 * @returns {error} ErrInvalidTopology when the document is inconsistent
 * @description
 * - Task ids must be unique, a task declared twice is rejected
 * - Device id and args come from the task command line, channel names and methods
 *   from the task properties, addresses from the matching --channel-config arguments
 * - Devices with no read access are sources
 */
func Parse(r io.Reader) (*Topology, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTopology, err)
	}

	declared := make(map[string]struct{}, len(doc.Properties))
	for _, p := range doc.Properties {
		declared[p.ID] = struct{}{}
	}

	tasks := make(map[string]*declTask, len(doc.Tasks))
	for i := range doc.Tasks {
		id := doc.Tasks[i].ID
		if _, dup := tasks[id]; dup {
			return nil, fmt.Errorf("%w: task %s is declared twice", ErrInvalidTopology, id)
		}
		tasks[id] = &doc.Tasks[i]
	}

	topo := &Topology{ID: doc.ID}
	for _, taskID := range doc.Main.Tasks {
		task, ok := tasks[taskID]
		if !ok {
			return nil, fmt.Errorf("%w: task %s is not declared", ErrInvalidTopology, taskID)
		}
		spec, err := parseTask(task, declared)
		if err != nil {
			return nil, err
		}
		topo.Devices = append(topo.Devices, spec)
	}
	return topo, nil
}

// ParseFile reads the topology description stored at path.
func ParseFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func parseTask(task *declTask, declared map[string]struct{}) (workflow.DeviceSpec, error) {
	args, err := shellquote.Split(task.Exe.Command)
	if err != nil {
		return workflow.DeviceSpec{}, fmt.Errorf("%w: task %s: %v", ErrInvalidTopology, task.ID, err)
	}
	spec := workflow.DeviceSpec{ID: task.ID, Kind: workflow.Source, Args: args}

	endpoints := make(map[string]workflow.ChannelSpec)
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case "--id":
			spec.ID = args[i+1]
		case "--channel-config":
			if ch, err := parseChannelConfig(args[i+1]); err == nil {
				endpoints[ch.Name] = ch
			}
		}
	}

	for _, ref := range task.Properties {
		ch, ok := endpoints[ref.Name]
		if !ok {
			ch = workflow.ChannelSpec{Name: ref.Name}
		}
		switch ref.Access {
		case accessWrite:
			if _, ok := declared[ref.Name]; !ok {
				return spec, fmt.Errorf("%w: bound channel %s is not declared", ErrInvalidTopology, ref.Name)
			}
			ch.Method = workflow.Bind
		case accessRead:
			ch.Method = workflow.Connect
			spec.Kind = workflow.Processor
		default:
			return spec, fmt.Errorf("%w: unknown access %q on %s", ErrInvalidTopology, ref.Access, ref.Name)
		}
		spec.Channels = append(spec.Channels, ch)
	}
	return spec, nil
}

// parseChannelConfig decodes "name=..,type=..,method=..,address=tcp://host:port".
func parseChannelConfig(s string) (workflow.ChannelSpec, error) {
	var ch workflow.ChannelSpec
	for _, field := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return ch, fmt.Errorf("malformed channel field %q", field)
		}
		switch key {
		case "name":
			ch.Name = value
		case "type":
			ch.Type = workflow.ChannelType(value)
		case "method":
			ch.Method = workflow.ChannelMethod(value)
		case "address":
			var err error
			ch.Hostname, ch.Port, err = splitAddress(value)
			if err != nil {
				return ch, err
			}
		}
	}
	if ch.Name == "" {
		return ch, errors.New("channel without name")
	}
	return ch, nil
}

func splitAddress(addr string) (string, int, error) {
	hostport := strings.TrimPrefix(addr, "tcp://")
	i := strings.LastIndex(hostport, ":")
	if i < 0 {
		return "", 0, fmt.Errorf("address %s without port", addr)
	}
	port, err := strconv.Atoi(hostport[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("address %s: %w", addr, err)
	}
	return hostport[:i], port, nil
}
