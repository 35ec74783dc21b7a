package monitor

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowkeeper/internal/models"
	"flowkeeper/internal/registry"
	"flowkeeper/internal/workflow"
)

func newRegistry(control registry.DeviceControl, historySize int, ids ...string) *registry.Registry {
	specs := make([]workflow.DeviceSpec, len(ids))
	for i, id := range ids {
		specs[i] = workflow.DeviceSpec{ID: id}
	}
	return registry.New(specs, control, historySize)
}

func TestClassify(t *testing.T) {
	line := Classify("[METRIC] rate,2 1.5 1700000000")
	require.Equal(t, MetricLine, line.Kind)
	assert.Equal(t, "rate", line.Key)
	assert.Equal(t, models.MetricSample{Type: models.MetricFloat, Value: "1.5", Timestamp: 1700000000}, line.Sample)

	line = Classify("QUIT valid-for ALL")
	require.Equal(t, ControlLine, line.Kind)
	assert.Equal(t, CommandQuit, line.Command)
	assert.Equal(t, ScopeAll, line.Scope)

	line = Classify("CONTROL_ACTION: QUIT valid-for ME")
	require.Equal(t, ControlLine, line.Kind)
	assert.Equal(t, ScopeMe, line.Scope)

	assert.Equal(t, TextLine, Classify("[METRIC] rate,x 1 2").Kind)
	assert.Equal(t, TextLine, Classify("quit valid-for all").Kind)
	assert.Equal(t, TextLine, Classify("processing event 12").Kind)
}

func TestTickRoutesLines(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 10, "dev1")
	reg.Device(0).SetPid(42)
	var out bytes.Buffer
	loop := NewLoop(reg, &out, time.Millisecond)

	fmt.Fprint(reg.Device(0), "hello\n[METRIC] count,0 3 100\nwor")
	loop.Tick()

	assert.Equal(t, "[42]: hello\n", out.String())
	assert.Equal(t, []string{"hello"}, reg.Device(0).HistoryLines())
	last, ok := reg.Metrics(0).Last("count")
	require.True(t, ok)
	assert.Equal(t, "3", last.Value)

	fmt.Fprint(reg.Device(0), "ld\n")
	loop.Tick()
	assert.Equal(t, "[42]: hello\n[42]: world\n", out.String())
}

func TestTickQuietAndFilter(t *testing.T) {
	quiet := newRegistry(registry.DeviceControl{Quiet: true}, 10, "dev1")
	var out bytes.Buffer
	fmt.Fprint(quiet.Device(0), "hidden\n")
	NewLoop(quiet, &out, time.Millisecond).Tick()
	assert.Empty(t, out.String())
	assert.Empty(t, quiet.Device(0).HistoryLines())

	filtered := newRegistry(registry.DeviceControl{LogFilter: "keep"}, 10, "dev1")
	fmt.Fprint(filtered.Device(0), "drop this\nkeep this\n")
	NewLoop(filtered, &out, time.Millisecond).Tick()
	assert.Equal(t, "[0]: keep this\n", out.String())
	assert.Equal(t, []string{"keep this"}, filtered.Device(0).HistoryLines())
}

func TestTickHistoryWraps(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 3, "dev1")
	var out bytes.Buffer
	for i := 0; i < 4; i++ {
		fmt.Fprintf(reg.Device(0), "l%d\n", i)
	}
	NewLoop(reg, &out, time.Millisecond).Tick()
	assert.Equal(t, []string{"l1", "l2", "l3"}, reg.Device(0).HistoryLines())
}

func TestQuitAll(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 10, "a", "b", "c")
	var out bytes.Buffer
	loop := NewLoop(reg, &out, time.Millisecond)

	fmt.Fprint(reg.Device(1), "QUIT valid-for ALL\n")
	loop.Tick()

	for i := 0; i < reg.Len(); i++ {
		assert.True(t, reg.Device(i).ReadyToQuit())
	}
	assert.Empty(t, out.String())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, loop.Run(ctx))
}

func TestQuitMe(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 10, "a", "b")
	loop := NewLoop(reg, &bytes.Buffer{}, time.Millisecond)

	fmt.Fprint(reg.Device(0), "CONTROL_ACTION: QUIT valid-for ME\nRESET valid-for ALL\n")
	loop.Tick()
	assert.True(t, reg.Device(0).ReadyToQuit())
	assert.False(t, reg.Device(1).ReadyToQuit())
	assert.False(t, reg.AllReadyToQuit())
}

func TestRunUntilQuit(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 10, "a", "b")
	loop := NewLoop(reg, &bytes.Buffer{}, time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(reg.Device(0), "QUIT valid-for ALL\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, loop.Run(ctx))
	assert.True(t, reg.AllReadyToQuit())
}

func TestRunCancelled(t *testing.T) {
	reg := newRegistry(registry.DeviceControl{}, 10, "a")
	var out bytes.Buffer
	loop := NewLoop(reg, &out, time.Hour)

	fmt.Fprint(reg.Device(0), "last words\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	assert.Equal(t, "[0]: last words\n", out.String())
}
