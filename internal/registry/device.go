// Package registry holds the live monitoring record of every device of one
// orchestrator run.
package registry

import (
	"bytes"
	"sync"

	"flowkeeper/internal/models"
)

/**
 * DeviceInfo 设备运行信息
 * @property {string} ID - 设备ID，与编译出的 DeviceSpec.ID 相同
 * @property {[]string} history - 输出历史环形缓冲区
 * @property {int} historyPos - 下一次写入的位置
 * @property {bytes.Buffer} unprinted - 尚未处理的输出
 * @property {bool} active - 设备进程是否存活
 * @property {bool} readyToQuit - 设备是否可以退出
 * @property {models.DeviceState} state - 设备上报的状态
 * @property {int} pid - 设备进程号
 * @description
 * - 所有加锁访问器都使用 mutex；Unsafe 版本只能在 WithLock 回调中使用
 */
type DeviceInfo struct {
	ID          string
	Kind        string
	history     []string
	historyPos  int
	historyLen  int
	unprinted   bytes.Buffer
	active      bool
	readyToQuit bool
	state       models.DeviceState
	pid         int
	mutex       sync.Mutex
}

// NewDeviceInfo creates a disconnected device with a history ring of historySize lines.
func NewDeviceInfo(id, kind string, historySize int) *DeviceInfo {
	if historySize <= 0 {
		historySize = 1
	}
	return &DeviceInfo{
		ID:      id,
		Kind:    kind,
		history: make([]string, historySize),
		active:  true,
		state:   models.Disconnected,
	}
}

// WithLock runs f while holding the device lock.
func (di *DeviceInfo) WithLock(f func()) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	f()
}

func (di *DeviceInfo) State() models.DeviceState {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.state
}

func (di *DeviceInfo) SetState(s models.DeviceState) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	di.state = s
}

func (di *DeviceInfo) StateUnsafe() models.DeviceState {
	return di.state
}

func (di *DeviceInfo) SetStateUnsafe(s models.DeviceState) {
	di.state = s
}

func (di *DeviceInfo) Pid() int {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.pid
}

func (di *DeviceInfo) SetPid(pid int) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	di.pid = pid
}

func (di *DeviceInfo) PidUnsafe() int {
	return di.pid
}

func (di *DeviceInfo) SetPidUnsafe(pid int) {
	di.pid = pid
}

func (di *DeviceInfo) Active() bool {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.active
}

func (di *DeviceInfo) SetActive(active bool) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	di.active = active
}

func (di *DeviceInfo) ReadyToQuit() bool {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.readyToQuit
}

func (di *DeviceInfo) SetReadyToQuit(ready bool) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	di.readyToQuit = ready
}

func (di *DeviceInfo) ReadyToQuitUnsafe() bool {
	return di.readyToQuit
}

func (di *DeviceInfo) SetReadyToQuitUnsafe(ready bool) {
	di.readyToQuit = ready
}

/**
 * Record a heartbeat
 * @param {int} pid - Process id carried by the heartbeat
 * @description
 * - Updates the pid
 * - The first heartbeat of a Disconnected device moves it to Connected,
 *   later heartbeats leave the state alone
 */
func (di *DeviceInfo) ObserveHeartbeat(pid int) {
	di.WithLock(func() {
		di.SetPidUnsafe(pid)
		if di.StateUnsafe() == models.Disconnected {
			di.SetStateUnsafe(models.Connected)
		}
	})
}

/**
 * Apply a state-change label
 * @param {string} label - Label such as "RUNNING"
 * @returns {models.DeviceState} State after the call
 * @returns {bool} False when the label is unrecognized, the state is then unchanged
 */
func (di *DeviceInfo) ApplyLabel(label string) (models.DeviceState, bool) {
	s, ok := models.StateFromLabel(label)
	di.WithLock(func() {
		if ok {
			di.SetStateUnsafe(s)
		}
		s = di.StateUnsafe()
	})
	return s, ok
}

// Write appends process output to the unprinted buffer; it is the stdout sink of spawned devices.
func (di *DeviceInfo) Write(p []byte) (int, error) {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.unprinted.Write(p)
}

// HasUnprintedUnsafe reports whether output is waiting to be classified.
func (di *DeviceInfo) HasUnprintedUnsafe() bool {
	return di.unprinted.Len() > 0
}

/**
 * Take every complete line out of the unprinted buffer
 * @returns {[]string} Lines without their newline
 * @description
 * - A trailing partial line stays buffered for the next pass
 * - Must be called inside WithLock
 */
func (di *DeviceInfo) TakeCompleteLinesUnsafe() []string {
	data := di.unprinted.Bytes()
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return nil
	}
	lines := make([]string, 0, bytes.Count(data[:last+1], []byte{'\n'}))
	for _, line := range bytes.Split(data[:last], []byte{'\n'}) {
		lines = append(lines, string(line))
	}
	rest := append([]byte(nil), data[last+1:]...)
	di.unprinted.Reset()
	di.unprinted.Write(rest)
	return lines
}

/**
 * Store a line in the history ring
 * @param {string} line - Output line
 * @description
 * - Writes at the cursor and advances it modulo the capacity, overwriting the oldest line when full
 * - Must be called inside WithLock
 */
func (di *DeviceInfo) AppendHistoryUnsafe(line string) {
	di.history[di.historyPos] = line
	di.historyPos = (di.historyPos + 1) % len(di.history)
	if di.historyLen < len(di.history) {
		di.historyLen++
	}
}

// HistoryPos returns the ring write cursor.
func (di *DeviceInfo) HistoryPos() int {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.historyPos
}

// HistorySize returns the ring capacity.
func (di *DeviceInfo) HistorySize() int {
	return len(di.history)
}

// HistoryLines returns the stored lines, oldest first.
func (di *DeviceInfo) HistoryLines() []string {
	di.mutex.Lock()
	defer di.mutex.Unlock()
	return di.historyLinesUnsafe()
}

func (di *DeviceInfo) historyLinesUnsafe() []string {
	lines := make([]string, 0, di.historyLen)
	start := (di.historyPos - di.historyLen + len(di.history)) % len(di.history)
	for i := 0; i < di.historyLen; i++ {
		lines = append(lines, di.history[(start+i)%len(di.history)])
	}
	return lines
}

// Detail returns a snapshot of the device for presentation.
func (di *DeviceInfo) Detail(withHistory bool) models.DeviceDetail {
	di.mutex.Lock()
	defer di.mutex.Unlock()

	detail := models.DeviceDetail{
		ID:          di.ID,
		Kind:        di.Kind,
		Pid:         di.PidUnsafe(),
		State:       di.StateUnsafe(),
		Active:      di.active,
		ReadyToQuit: di.ReadyToQuitUnsafe(),
	}
	if withHistory {
		detail.History = di.historyLinesUnsafe()
	}
	return detail
}
