// Package control implements the control-plane side channel: the text
// protocol devices use to report heartbeats and state changes, the pub/sub
// bus carrying it, and the listener applying it to the registry.
package control

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	heartbeatPattern   = regexp.MustCompile(`^heartbeat: ([^\s,]+),(\d+)$`)
	stateChangePattern = regexp.MustCompile(`^state-change: ([^\s,]+),([\S ]+)$`)
)

// Message is one decoded control-bus message: Heartbeat, StateChange or Unrecognized.
type Message interface {
	isMessage()
}

type Heartbeat struct {
	DeviceID string
	Pid      int
}

type StateChange struct {
	DeviceID string
	Label    string
}

type Unrecognized struct {
	Raw string
}

func (Heartbeat) isMessage()    {}
func (StateChange) isMessage()  {}
func (Unrecognized) isMessage() {}

/**
 * Decode a control-bus message
 * @param {string} msg - Whole message text
 * @returns {Message} Heartbeat, StateChange, or Unrecognized when neither grammar matches
 * @description
 * - heartbeat: <deviceId>,<pid>
 * - state-change: <deviceId>,<label>
 * - The label is not validated here, unknown labels are the registry's concern
 */
func Parse(msg string) Message {
	if m := heartbeatPattern.FindStringSubmatch(msg); m != nil {
		pid, err := strconv.Atoi(m[2])
		if err != nil {
			return Unrecognized{Raw: msg}
		}
		return Heartbeat{DeviceID: m[1], Pid: pid}
	}
	if m := stateChangePattern.FindStringSubmatch(msg); m != nil {
		return StateChange{DeviceID: m[1], Label: m[2]}
	}
	return Unrecognized{Raw: msg}
}

// FormatHeartbeat renders a heartbeat message.
func FormatHeartbeat(id string, pid int) string {
	return fmt.Sprintf("heartbeat: %s,%d", id, pid)
}

// FormatStateChange renders a state-change message.
func FormatStateChange(id, label string) string {
	return fmt.Sprintf("state-change: %s,%s", id, label)
}

// Subject returns the control subject of one orchestrator session.
func Subject(prefix, session string) string {
	return prefix + "." + session + ".control"
}
