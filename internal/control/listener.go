package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"flowkeeper/internal/logger"
	"flowkeeper/internal/registry"
)

var messagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowkeeper_control_messages_total",
		Help: "Control-bus messages received, by kind",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(messagesTotal)
}

// Listener applies control-bus messages to a registry.
type Listener struct {
	reg *registry.Registry
	sub Subscription
}

func NewListener(reg *registry.Registry) *Listener {
	return &Listener{reg: reg}
}

/**
 * Apply one control message
 * @param {string} msg - Message text
 * @description
 * - Heartbeat: update pid, Disconnected -> Connected
 * - StateChange: map the label, unknown labels are logged and ignored
 * - Unknown device ids are ignored, unrecognized messages are logged
 * - Never fails
 */
func (l *Listener) Handle(msg string) {
	switch m := Parse(msg).(type) {
	case Heartbeat:
		messagesTotal.WithLabelValues("heartbeat").Inc()
		i, ok := l.reg.Lookup(m.DeviceID)
		if !ok {
			logger.Debugf("heartbeat from unknown device %s", m.DeviceID)
			return
		}
		l.reg.Device(i).ObserveHeartbeat(m.Pid)
	case StateChange:
		messagesTotal.WithLabelValues("state-change").Inc()
		i, ok := l.reg.Lookup(m.DeviceID)
		if !ok {
			logger.Debugf("state change from unknown device %s", m.DeviceID)
			return
		}
		if _, ok := l.reg.Device(i).ApplyLabel(m.Label); !ok {
			logger.Infof("unknown state label %q from device %s", m.Label, m.DeviceID)
		}
	case Unrecognized:
		messagesTotal.WithLabelValues("unrecognized").Inc()
		logger.Infof("unrecognized control message: %s", m.Raw)
	}
}

// Start subscribes the listener to subject on bus.
func (l *Listener) Start(bus Bus, subject string) error {
	sub, err := bus.Subscribe(subject, func(data []byte) {
		l.Handle(string(data))
	})
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}

// Stop removes the bus subscription.
func (l *Listener) Stop() {
	if l.sub != nil {
		_ = l.sub.Unsubscribe()
		l.sub = nil
	}
}
