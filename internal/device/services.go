package device

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"flowkeeper/internal/models"
)

// lockedWriter serializes writes so lines from different services never interleave.
type lockedWriter struct {
	w     io.Writer
	mutex sync.Mutex
}

func (lw *lockedWriter) printLine(line string) {
	lw.mutex.Lock()
	defer lw.mutex.Unlock()
	fmt.Fprintln(lw.w, line)
}

// textMetrics reports metrics as "[METRIC] key,type value timestamp" lines on stdout.
type textMetrics struct {
	out *lockedWriter
	now func() time.Time
}

func (m *textMetrics) Post(key string, value any) {
	typ, text := metricValue(value)
	m.out.printLine(fmt.Sprintf("[METRIC] %s,%d %s %d", key, typ, text, m.now().UnixMilli()))
}

func metricValue(value any) (models.MetricType, string) {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.MetricInt, fmt.Sprint(v)
	case float32, float64:
		return models.MetricFloat, fmt.Sprint(v)
	default:
		// 值里不能出现空白，否则父进程按普通日志处理
		text := strings.Join(strings.Fields(fmt.Sprint(v)), "_")
		if text == "" {
			text = "-"
		}
		return models.MetricString, text
	}
}

// textControl reports control requests as "CONTROL_ACTION: QUIT valid-for ALL|ME" lines.
type textControl struct {
	out       *lockedWriter
	requested chan struct{}
	once      sync.Once
}

func (c *textControl) ReadyToQuit(all bool) {
	scope := "ME"
	if all {
		scope = "ALL"
	}
	c.out.printLine("CONTROL_ACTION: QUIT valid-for " + scope)
	c.once.Do(func() { close(c.requested) })
}
