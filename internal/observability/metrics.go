package observability

import (
	"maps"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	operationCount  map[string]int64
	eventCount      map[string]int64
	deliveryCount   map[string]int64
	requestDuration time.Duration
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Requests         map[string]int64 `json:"requests"`
	Errors           map[string]int64 `json:"errors"`
	Operations       map[string]int64 `json:"operations"`
	Events           map[string]int64 `json:"events"`
	Deliveries       map[string]int64 `json:"deliveries"`
	RequestTimeTotal string           `json:"request_time_total"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:   make(map[string]int64),
		errorCount:     make(map[string]int64),
		operationCount: make(map[string]int64),
		eventCount:     make(map[string]int64),
		deliveryCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	m.inc(func() map[string]int64 { return m.errorCount }, path+"|"+method+"|"+code)
}

// RecordOperation counts a lifecycle operation by outcome, which is "ok" or
// an error code.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.inc(func() map[string]int64 { return m.operationCount }, operation+"|"+outcome)
}

// RecordEvent counts in-process lifecycle events seen by subscribers.
func (m *Metrics) RecordEvent(eventType string) {
	m.inc(func() map[string]int64 { return m.eventCount }, eventType)
}

// RecordDelivery counts outbox relay attempts per bus.
func (m *Metrics) RecordDelivery(bus string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.inc(func() map[string]int64 { return m.deliveryCount }, bus+"|"+outcome)
}

func (m *Metrics) inc(counters func() map[string]int64, key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	counters()[key]++
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:         maps.Clone(m.requestCount),
		Errors:           maps.Clone(m.errorCount),
		Operations:       maps.Clone(m.operationCount),
		Events:           maps.Clone(m.eventCount),
		Deliveries:       maps.Clone(m.deliveryCount),
		RequestTimeTotal: m.requestDuration.String(),
	}
}
