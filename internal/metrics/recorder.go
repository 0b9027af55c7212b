// Package metrics records per-run timings, counters and outcomes.
//
// Paths are "topic/function", e.g. "llm/complete" or "provider/call_tool".
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	TypeTiming      MetricType = "timing"
	TypeCounter     MetricType = "counter"
	TypeSuccessFail MetricType = "success_fail"
)

// TimingMetric tracks timing statistics
type TimingMetric struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// SuccessFailMetric tracks operation outcomes, with failure reasons
type SuccessFailMetric struct {
	Success  int64
	Failure  int64
	Reasons  map[string]int64
	LastFail string
}

// Snapshot is a point-in-time view of one metric.
type Snapshot struct {
	Path string     `json:"path"`
	Type MetricType `json:"type"`

	// timing
	Count int64   `json:"count,omitempty"`
	AvgMs float64 `json:"avgMs,omitempty"`
	MinMs float64 `json:"minMs,omitempty"`
	MaxMs float64 `json:"maxMs,omitempty"`

	// counter
	Value int64 `json:"value,omitempty"`

	// success/fail
	Success  int64  `json:"success,omitempty"`
	Failure  int64  `json:"failure,omitempty"`
	LastFail string `json:"lastFail,omitempty"`
}

// Recorder holds the metrics for one process.
type Recorder struct {
	mu          sync.Mutex
	timings     map[string]*TimingMetric
	counters    map[string]int64
	successFail map[string]*SuccessFailMetric
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]int64),
		successFail: make(map[string]*SuccessFailMetric),
	}
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return topic + "/" + function
}

// StartTiming begins timing an operation; call the returned func to record it.
func (r *Recorder) StartTiming(topic, function string) func() {
	if r == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.RecordDuration(topic, function, time.Since(start))
	}
}

// RecordDuration records a duration directly
func (r *Recorder) RecordDuration(topic, function string, d time.Duration) {
	if r == nil {
		return
	}
	path := buildPath(topic, function)
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.timings[path]
	if !ok {
		m = &TimingMetric{Min: d, Max: d}
		r.timings[path] = m
	}
	m.Count++
	m.Total += d
	if d < m.Min {
		m.Min = d
	}
	if d > m.Max {
		m.Max = d
	}
}

// IncrementCounter adds one to a counter
func (r *Recorder) IncrementCounter(topic, function string) {
	r.AddCounter(topic, function, 1)
}

// AddCounter adds delta to a counter
func (r *Recorder) AddCounter(topic, function string, delta int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.counters[buildPath(topic, function)] += delta
	r.mu.Unlock()
}

// RecordSuccess records a successful operation
func (r *Recorder) RecordSuccess(topic, operation string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.outcome(buildPath(topic, operation)).Success++
	r.mu.Unlock()
}

// RecordFailure records a failed operation with a short reason
func (r *Recorder) RecordFailure(topic, operation, reason string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.outcome(buildPath(topic, operation))
	m.Failure++
	if reason != "" {
		m.Reasons[reason]++
		m.LastFail = reason
	}
}

func (r *Recorder) outcome(path string) *SuccessFailMetric {
	m, ok := r.successFail[path]
	if !ok {
		m = &SuccessFailMetric{Reasons: make(map[string]int64)}
		r.successFail[path] = m
	}
	return m
}

// Snapshot returns every metric sorted by path, then type.
func (r *Recorder) Snapshot() []Snapshot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var snaps []Snapshot
	for path, m := range r.timings {
		snaps = append(snaps, Snapshot{
			Path:  path,
			Type:  TypeTiming,
			Count: m.Count,
			AvgMs: ms(m.Total) / float64(m.Count),
			MinMs: ms(m.Min),
			MaxMs: ms(m.Max),
		})
	}
	for path, v := range r.counters {
		snaps = append(snaps, Snapshot{Path: path, Type: TypeCounter, Value: v})
	}
	for path, m := range r.successFail {
		snaps = append(snaps, Snapshot{
			Path:     path,
			Type:     TypeSuccessFail,
			Success:  m.Success,
			Failure:  m.Failure,
			LastFail: m.LastFail,
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Path != snaps[j].Path {
			return snaps[i].Path < snaps[j].Path
		}
		return snaps[i].Type < snaps[j].Type
	})
	return snaps
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// String renders the snapshot's value part, e.g. "2 calls, avg 12.0ms".
func (s Snapshot) String() string {
	switch s.Type {
	case TypeTiming:
		return fmt.Sprintf("%d calls, avg %.1fms (min %.1fms, max %.1fms)", s.Count, s.AvgMs, s.MinMs, s.MaxMs)
	case TypeCounter:
		return fmt.Sprintf("%d", s.Value)
	case TypeSuccessFail:
		if s.LastFail != "" {
			return fmt.Sprintf("%d ok, %d failed (last: %s)", s.Success, s.Failure, s.LastFail)
		}
		return fmt.Sprintf("%d ok, %d failed", s.Success, s.Failure)
	default:
		return ""
	}
}
