package device

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowkeeper/internal/control"
	"flowkeeper/internal/models"
	"flowkeeper/internal/monitor"
	"flowkeeper/internal/workflow"
)

const subject = "flowkeeper.test.control"

type recorder struct {
	msgs  []string
	mutex sync.Mutex
}

func (r *recorder) add(data []byte) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.msgs = append(r.msgs, string(data))
}

func (r *recorder) messages() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.msgs...)
}

func newBus(t *testing.T) (*control.MemoryBus, *recorder) {
	t.Helper()
	bus := control.NewMemoryBus()
	rec := &recorder{}
	_, err := bus.Subscribe(subject, rec.add)
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus, rec
}

func spec(alg workflow.Algorithm, opts ...workflow.ConfigParam) workflow.DeviceSpec {
	return workflow.DeviceSpec{ID: "dev1", Kind: workflow.Source, Options: opts, Algorithm: alg}
}

func TestRunQuitAll(t *testing.T) {
	bus, rec := newBus(t)
	var out bytes.Buffer
	calls := 0
	alg := func(pc workflow.ProcessingContext) error {
		calls++
		pc.Metrics().Post("calls", calls)
		pc.Metrics().Post("label", "two words")
		if calls == 2 {
			pc.Control().ReadyToQuit(true)
		}
		return nil
	}

	code := Run(context.Background(), spec(alg), RunOptions{
		Bus: bus, Subject: subject, Stdout: &out, Pid: 99,
		Interval: time.Millisecond, HeartbeatInterval: time.Hour,
	})
	require.Equal(t, 0, code)
	assert.Equal(t, 2, calls)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	first := monitor.Classify(lines[0])
	require.Equal(t, monitor.MetricLine, first.Kind)
	assert.Equal(t, "calls", first.Key)
	assert.Equal(t, models.MetricInt, first.Sample.Type)
	assert.Equal(t, "1", first.Sample.Value)

	label := monitor.Classify(lines[1])
	require.Equal(t, monitor.MetricLine, label.Kind)
	assert.Equal(t, "two_words", label.Sample.Value)

	assert.Equal(t, "CONTROL_ACTION: QUIT valid-for ALL", lines[4])
	quit := monitor.Classify(lines[4])
	assert.Equal(t, monitor.ControlLine, quit.Kind)

	msgs := rec.messages()
	assert.Contains(t, msgs, "heartbeat: dev1,99")
	states := []string{}
	for _, m := range msgs {
		if sc, ok := control.Parse(m).(control.StateChange); ok {
			states = append(states, sc.Label)
		}
	}
	assert.Equal(t, []string{"INITIALIZING DEVICE", "DEVICE READY", "INITIALIZING TASK", "READY", "RUNNING", "EXITING"}, states)
}

func TestRunQuitMe(t *testing.T) {
	var out bytes.Buffer
	alg := func(pc workflow.ProcessingContext) error {
		pc.Control().ReadyToQuit(false)
		return nil
	}
	code := Run(context.Background(), spec(alg), RunOptions{Stdout: &out, Interval: time.Millisecond})
	assert.Equal(t, 0, code)
	assert.Equal(t, "CONTROL_ACTION: QUIT valid-for ME\n", out.String())
}

func TestRunAlgorithmError(t *testing.T) {
	alg := func(pc workflow.ProcessingContext) error { return errors.New("boom") }
	code := Run(context.Background(), spec(alg), RunOptions{Stdout: &bytes.Buffer{}, Interval: time.Millisecond})
	assert.Equal(t, 1, code)
}

func TestRunAlgorithmPanic(t *testing.T) {
	bus, rec := newBus(t)
	alg := func(pc workflow.ProcessingContext) error { panic("exploded") }
	code := Run(context.Background(), spec(alg), RunOptions{Bus: bus, Subject: subject, Stdout: &bytes.Buffer{}})
	assert.Equal(t, 1, code)
	assert.Contains(t, rec.messages(), "state-change: dev1,EXITING")
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	code := Run(ctx, spec(nil), RunOptions{Stdout: &bytes.Buffer{}, HeartbeatInterval: time.Millisecond})
	assert.Equal(t, 0, code)
}

func TestRunInvalidOption(t *testing.T) {
	alg := func(pc workflow.ProcessingContext) error { return nil }
	s := spec(alg, workflow.ConfigParam{Name: "limit", Type: workflow.OptionInt, Default: 1})
	code := Run(context.Background(), s, RunOptions{Stdout: &bytes.Buffer{}, Args: []string{"--limit", "many"}})
	assert.Equal(t, 1, code)
}

func TestRunPassesOptions(t *testing.T) {
	var got any
	alg := func(pc workflow.ProcessingContext) error {
		got = pc.Option("limit")
		assert.Equal(t, "dev1", pc.DeviceID())
		assert.NotNil(t, pc.Context())
		pc.Control().ReadyToQuit(false)
		return nil
	}
	s := spec(alg, workflow.ConfigParam{Name: "limit", Type: workflow.OptionInt, Default: 1})
	code := Run(context.Background(), s, RunOptions{Stdout: &bytes.Buffer{}, Args: []string{"--id", "dev1", "--limit", "7"}})
	assert.Equal(t, 0, code)
	assert.Equal(t, 7, got)
}

func TestParseOptions(t *testing.T) {
	s := workflow.DeviceSpec{
		ID: "dev1",
		Options: []workflow.ConfigParam{
			{Name: "limit", Type: workflow.OptionInt, Default: 10},
			{Name: "rate", Type: workflow.OptionFloat, Default: 0.5},
			{Name: "label", Type: workflow.OptionString, Default: "x"},
			{Name: "verbose", Type: workflow.OptionBool, Default: true},
		},
	}

	values, err := ParseOptions(s, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"limit": 10, "rate": 0.5, "label": "x", "verbose": true}, values)

	values, err = ParseOptions(s, []string{
		"--id", "dev1",
		"--channel-config", "name=a,type=push,method=bind,address=tcp://127.0.0.1:22000",
		"--verbose", "false", "--rate", "2", "--unknown", "--label=y",
	})
	require.NoError(t, err)
	assert.Equal(t, false, values["verbose"])
	assert.Equal(t, 2.0, values["rate"])
	assert.Equal(t, "y", values["label"])
	assert.Equal(t, 10, values["limit"])

	_, err = ParseOptions(s, []string{"--verbose", "maybe"})
	assert.Error(t, err)
}

func TestCompiledArgsParse(t *testing.T) {
	w := workflow.Workflow{{
		Name:    "src",
		Outputs: []workflow.OutputSpec{{Origin: "TST", Description: "A"}},
		Options: []workflow.ConfigParam{{Name: "verbose", Type: workflow.OptionBool, Default: false}},
	}}
	specs, err := workflow.Compile(w, workflow.CompileOptions{Executable: "/bin/fk", BasePort: 1})
	require.NoError(t, err)
	values, err := ParseOptions(specs[0], specs[0].Args[1:])
	require.NoError(t, err)
	assert.Equal(t, false, values["verbose"])
}
