package registry

import (
	"sync"

	"flowkeeper/internal/models"
)

// MetricsInfo accumulates the metric series reported by one device. Append-only.
type MetricsInfo struct {
	keys   []string
	series map[string][]models.MetricSample
	mutex  sync.Mutex
}

func NewMetricsInfo() *MetricsInfo {
	return &MetricsInfo{series: make(map[string][]models.MetricSample)}
}

// Append adds a sample to the series of key, remembering first-seen key order.
func (mi *MetricsInfo) Append(key string, sample models.MetricSample) {
	mi.mutex.Lock()
	defer mi.mutex.Unlock()
	if _, ok := mi.series[key]; !ok {
		mi.keys = append(mi.keys, key)
	}
	mi.series[key] = append(mi.series[key], sample)
}

// Keys returns the metric keys in the order they were first reported.
func (mi *MetricsInfo) Keys() []string {
	mi.mutex.Lock()
	defer mi.mutex.Unlock()
	return append([]string(nil), mi.keys...)
}

// Series returns a copy of the samples of key.
func (mi *MetricsInfo) Series(key string) []models.MetricSample {
	mi.mutex.Lock()
	defer mi.mutex.Unlock()
	return append([]models.MetricSample(nil), mi.series[key]...)
}

// Last returns the most recent sample of key.
func (mi *MetricsInfo) Last(key string) (models.MetricSample, bool) {
	mi.mutex.Lock()
	defer mi.mutex.Unlock()
	s := mi.series[key]
	if len(s) == 0 {
		return models.MetricSample{}, false
	}
	return s[len(s)-1], true
}
