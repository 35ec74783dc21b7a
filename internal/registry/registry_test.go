package registry

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowkeeper/internal/models"
	"flowkeeper/internal/workflow"
)

func testSpecs(ids ...string) []workflow.DeviceSpec {
	specs := make([]workflow.DeviceSpec, len(ids))
	for i, id := range ids {
		specs[i] = workflow.DeviceSpec{ID: id, Kind: workflow.Processor}
	}
	return specs
}

func TestHistoryRingKeepsLastN(t *testing.T) {
	const n = 5
	d := NewDeviceInfo("dev1", "source", n)
	d.WithLock(func() {
		for i := 0; i <= n; i++ {
			d.AppendHistoryUnsafe(fmt.Sprintf("line %d", i))
		}
	})
	assert.Equal(t, []string{"line 1", "line 2", "line 3", "line 4", "line 5"}, d.HistoryLines())
	assert.Equal(t, 1, d.HistoryPos())
	assert.Equal(t, n, d.HistorySize())
}

func TestHistoryRingPartial(t *testing.T) {
	d := NewDeviceInfo("dev1", "source", 4)
	d.WithLock(func() {
		d.AppendHistoryUnsafe("a")
		d.AppendHistoryUnsafe("b")
	})
	assert.Equal(t, []string{"a", "b"}, d.HistoryLines())
	assert.Equal(t, 2, d.HistoryPos())
}

func TestHeartbeatTransitions(t *testing.T) {
	d := NewDeviceInfo("dev1", "source", 10)
	assert.Equal(t, models.Disconnected, d.State())

	d.ObserveHeartbeat(42)
	assert.Equal(t, models.Connected, d.State())
	assert.Equal(t, 42, d.Pid())

	d.ObserveHeartbeat(43)
	assert.Equal(t, models.Connected, d.State())
	assert.Equal(t, 43, d.Pid())

	d.SetState(models.Running)
	d.ObserveHeartbeat(43)
	assert.Equal(t, models.Running, d.State())
}

func TestApplyLabelIdempotent(t *testing.T) {
	d := NewDeviceInfo("dev1", "source", 10)
	s, ok := d.ApplyLabel("RUNNING")
	require.True(t, ok)
	assert.Equal(t, models.Running, s)
	s, ok = d.ApplyLabel("RUNNING")
	require.True(t, ok)
	assert.Equal(t, models.Running, s)
	assert.Equal(t, models.Running, d.State())

	s, ok = d.ApplyLabel("UNKNOWNLABEL")
	assert.False(t, ok)
	assert.Equal(t, models.Running, s)
	assert.Equal(t, models.Running, d.State())
}

func TestTakeCompleteLines(t *testing.T) {
	d := NewDeviceInfo("dev1", "source", 10)
	_, err := d.Write([]byte("first\nsecond\npart"))
	require.NoError(t, err)

	var lines []string
	d.WithLock(func() {
		require.True(t, d.HasUnprintedUnsafe())
		lines = d.TakeCompleteLinesUnsafe()
	})
	assert.Equal(t, []string{"first", "second"}, lines)

	d.WithLock(func() {
		assert.Nil(t, d.TakeCompleteLinesUnsafe())
	})

	_, err = d.Write([]byte("ial\n\n"))
	require.NoError(t, err)
	d.WithLock(func() {
		lines = d.TakeCompleteLinesUnsafe()
		assert.False(t, d.HasUnprintedUnsafe())
	})
	assert.Equal(t, []string{"partial", ""}, lines)
}

func TestConcurrentWriters(t *testing.T) {
	d := NewDeviceInfo("dev1", "source", 10)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fmt.Fprintf(d, "w%d-%d\n", i, j)
				d.ObserveHeartbeat(i)
			}
		}(i)
	}
	wg.Wait()

	var lines []string
	d.WithLock(func() { lines = d.TakeCompleteLinesUnsafe() })
	assert.Len(t, lines, 800)
}

func TestRegistryLookupFirstMatch(t *testing.T) {
	r := New(testSpecs("a", "b", "a"), DeviceControl{}, 10)
	assert.Equal(t, 3, r.Len())

	i, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	i, ok = r.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = r.Lookup("ghost")
	assert.False(t, ok)
}

func TestRegistryReadyToQuit(t *testing.T) {
	r := New(testSpecs("a", "b"), DeviceControl{Quiet: true, LogFilter: "x"}, 10)
	assert.False(t, r.AllReadyToQuit())
	r.Device(0).SetReadyToQuit(true)
	assert.False(t, r.AllReadyToQuit())
	r.MarkAllReadyToQuit()
	assert.True(t, r.AllReadyToQuit())
	assert.Equal(t, DeviceControl{Quiet: true, LogFilter: "x"}, r.Control(1))
}

func TestSnapshot(t *testing.T) {
	r := New(testSpecs("a", "b"), DeviceControl{}, 10)
	r.Device(1).ObserveHeartbeat(7)
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[1].ID)
	assert.Equal(t, 7, snap[1].Pid)
	assert.Equal(t, models.Connected, snap[1].State)
	assert.True(t, snap[1].Active)
	assert.Equal(t, "processor", snap[1].Kind)
}

func TestMetricsInfo(t *testing.T) {
	m := NewMetricsInfo()
	m.Append("rate", models.MetricSample{Type: models.MetricFloat, Value: "1.5", Timestamp: 1})
	m.Append("name", models.MetricSample{Type: models.MetricString, Value: "x", Timestamp: 2})
	m.Append("rate", models.MetricSample{Type: models.MetricFloat, Value: "2.5", Timestamp: 3})

	assert.Equal(t, []string{"rate", "name"}, m.Keys())
	assert.Len(t, m.Series("rate"), 2)
	last, ok := m.Last("rate")
	require.True(t, ok)
	assert.Equal(t, "2.5", last.Value)
	_, ok = m.Last("missing")
	assert.False(t, ok)
}

func TestCollector(t *testing.T) {
	r := New(testSpecs("a", "b"), DeviceControl{}, 10)
	r.Device(0).SetState(models.Running)
	r.Metrics(0).Append("rate", models.MetricSample{Type: models.MetricFloat, Value: "2.5", Timestamp: 3})
	r.Metrics(0).Append("name", models.MetricSample{Type: models.MetricString, Value: "x", Timestamp: 3})

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(r)))

	expected := `
# HELP flowkeeper_device_state Last state reported by the device (numeric DeviceState)
# TYPE flowkeeper_device_state gauge
flowkeeper_device_state{device="a"} 7
flowkeeper_device_state{device="b"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flowkeeper_device_state"))
	assert.Equal(t, 3, testutil.CollectAndCount(NewCollector(r)))
}

func TestUnsafeAccessorsInsideWithLock(t *testing.T) {
	d := NewDeviceInfo("dev1", "processor", 4)
	d.WithLock(func() {
		assert.Equal(t, models.Disconnected, d.StateUnsafe())
		d.SetStateUnsafe(models.Running)
		d.SetPidUnsafe(99)
		d.SetReadyToQuitUnsafe(true)
		assert.Equal(t, models.Running, d.StateUnsafe())
		assert.Equal(t, 99, d.PidUnsafe())
		assert.True(t, d.ReadyToQuitUnsafe())
	})

	// 加锁访问器看到同样的值
	assert.Equal(t, models.Running, d.State())
	assert.Equal(t, 99, d.Pid())
	assert.True(t, d.ReadyToQuit())

	detail := d.Detail(false)
	assert.Equal(t, models.Running, detail.State)
	assert.Equal(t, 99, detail.Pid)
	assert.True(t, detail.ReadyToQuit)
}
