// Package metrics provides real-time metrics tracking for the engine.
package metrics

import (
	"maps"
	"sync"
	"time"
)

// Loop names used as metric labels.
const (
	LoopScan  = "scan"
	LoopTrack = "track"
)

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	ScanCycles        int64
	ScanFailures      int64
	CandidatesSeen    int64
	RejectionsBy      map[string]int64
	Admissions        int64
	TestAdmissions    int64
	TrackCycles       int64
	FetchFailures     int64
	SignalsByType     map[string]int64
	NotifyFailures    int64
	ActivePositions   int
	LastScan          time.Time
	LastScanDuration  time.Duration
	LastTrack         time.Time
	LastTrackDuration time.Duration
	GatewayStatus     string
	EventBufferUsed   int
	EventBufferCap    int
	Uptime            time.Duration
}

// Collector provides thread-safe metrics tracking. Every counter is mirrored
// to a Prometheus registry. A nil *Collector is valid and records nothing.
type Collector struct {
	mu                sync.RWMutex
	scanCycles        int64
	scanFailures      int64
	candidatesSeen    int64
	rejectionsBy      map[string]int64
	admissions        int64
	testAdmissions    int64
	trackCycles       int64
	fetchFailures     int64
	signalsByType     map[string]int64
	notifyFailures    int64
	activePositions   int
	lastScan          time.Time
	lastScanDuration  time.Duration
	lastTrack         time.Time
	lastTrackDuration time.Duration
	gatewayStatus     string
	eventBufferUsed   int
	eventBufferCap    int
	startTime         time.Time

	prom *promMetrics
}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{
		rejectionsBy:  make(map[string]int64),
		signalsByType: make(map[string]int64),
		gatewayStatus: "disabled",
		startTime:     time.Now(),
		prom:          newPromMetrics(),
	}
}

// ObserveScanCycle records a finished scan cycle. failed marks a cycle whose
// provider fetch failed.
func (c *Collector) ObserveScanCycle(d time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scanCycles++
	c.lastScan = time.Now()
	c.lastScanDuration = d
	c.prom.ScanCycles.Inc()
	c.prom.CycleDuration.WithLabelValues(LoopScan).Observe(d.Seconds())

	if failed {
		c.scanFailures++
		c.prom.ScanFailures.Inc()
	}
}

// AddCandidates increments the count of candidates seen.
func (c *Collector) AddCandidates(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidatesSeen += int64(n)
	c.prom.CandidatesSeen.Add(float64(n))
}

// IncrementRejection increments the counter for a rejection reason.
func (c *Collector) IncrementRejection(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectionsBy[reason]++
	c.prom.Rejections.WithLabelValues(reason).Inc()
}

// IncrementAdmission increments the admission counter.
func (c *Collector) IncrementAdmission(test bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if test {
		c.testAdmissions++
		c.prom.Admissions.WithLabelValues("test").Inc()
		return
	}
	c.admissions++
	c.prom.Admissions.WithLabelValues("live").Inc()
}

// ObserveTrackCycle records a finished track cycle.
func (c *Collector) ObserveTrackCycle(d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.trackCycles++
	c.lastTrack = time.Now()
	c.lastTrackDuration = d
	c.prom.TrackCycles.Inc()
	c.prom.CycleDuration.WithLabelValues(LoopTrack).Observe(d.Seconds())
}

// IncrementFetchFailure increments the per-position fetch failure counter.
func (c *Collector) IncrementFetchFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchFailures++
	c.prom.FetchFailures.Inc()
}

// IncrementSignal increments the counter for a specific signal type.
func (c *Collector) IncrementSignal(signalType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signalsByType[signalType]++
	c.prom.Signals.WithLabelValues(signalType).Inc()
}

// IncrementNotifyFailure increments the failed-delivery counter for an alert kind.
func (c *Collector) IncrementNotifyFailure(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyFailures++
	c.prom.NotifyFailures.WithLabelValues(kind).Inc()
}

// SetActivePositions sets the number of positions being tracked.
func (c *Collector) SetActivePositions(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activePositions = n
	c.prom.ActivePositions.Set(float64(n))
}

// SetGatewayStatus sets the chat gateway connection status.
func (c *Collector) SetGatewayStatus(status string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gatewayStatus = status
	if status == "connected" {
		c.prom.GatewayUp.Set(1)
	} else {
		c.prom.GatewayUp.Set(0)
	}
}

// SetEventBuffer sets the event channel buffer usage.
func (c *Collector) SetEventBuffer(used, capacity int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventBufferUsed = used
	c.eventBufferCap = capacity
	c.prom.EventBuffer.Set(float64(used))
}

// Snapshot returns a point-in-time snapshot of metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{RejectionsBy: map[string]int64{}, SignalsByType: map[string]int64{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		ScanCycles:        c.scanCycles,
		ScanFailures:      c.scanFailures,
		CandidatesSeen:    c.candidatesSeen,
		RejectionsBy:      maps.Clone(c.rejectionsBy),
		Admissions:        c.admissions,
		TestAdmissions:    c.testAdmissions,
		TrackCycles:       c.trackCycles,
		FetchFailures:     c.fetchFailures,
		SignalsByType:     maps.Clone(c.signalsByType),
		NotifyFailures:    c.notifyFailures,
		ActivePositions:   c.activePositions,
		LastScan:          c.lastScan,
		LastScanDuration:  c.lastScanDuration,
		LastTrack:         c.lastTrack,
		LastTrackDuration: c.lastTrackDuration,
		GatewayStatus:     c.gatewayStatus,
		EventBufferUsed:   c.eventBufferUsed,
		EventBufferCap:    c.eventBufferCap,
		Uptime:            time.Since(c.startTime),
	}
}
