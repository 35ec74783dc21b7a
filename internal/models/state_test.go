package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFromLabel(t *testing.T) {
	cases := map[string]DeviceState{
		"RUNNING":             Running,
		"DEVICE READY":        DeviceReady,
		"READY":               Ready,
		"INITIALIZING TASK":   InitializingTask,
		"INITIALIZING DEVICE": InitializingDevice,
		"RESETTING TASK":      ResettingTask,
		"RESETTING DEVICE":    ResettingDevice,
		"IDLE":                Idle,
		"EXITING":             Exiting,
	}
	for label, want := range cases {
		got, ok := StateFromLabel(label)
		require.True(t, ok, label)
		assert.Equal(t, want, got, label)
		assert.Equal(t, label, got.Label())
	}

	_, ok := StateFromLabel("UNKNOWNLABEL")
	assert.False(t, ok)
	_, ok = StateFromLabel("running")
	assert.False(t, ok)
}

func TestStateStringAndJSON(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Unknown", DeviceState(99).String())
	assert.Empty(t, Connected.Label())

	data, err := json.Marshal(DeviceDetail{ID: "dev1", State: Running})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"Running"`)
}

func TestStateJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(DeviceDetail{ID: "sink", State: DeviceReady})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"DeviceReady"`)

	var detail DeviceDetail
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, DeviceReady, detail.State)

	var s DeviceState
	assert.Error(t, json.Unmarshal([]byte(`"Sleeping"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`7`), &s))
}
