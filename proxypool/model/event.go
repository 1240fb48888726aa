package model

import "time"

// EventType 标识发现流程中发出的事件种类。
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventSourceFetched     EventType = "source_fetched"
	EventSourceFailed      EventType = "source_failed"
	EventBenchmarkProgress EventType = "benchmark_progress"
	EventBenchmarkFinished EventType = "benchmark_finished"
	EventRunFinished       EventType = "run_finished"
)

// Event 描述流程中的一个进度点，是进度展示所需的全部数据。
type Event struct {
	Type  EventType   `json:"type"`
	RunID string      `json:"run_id"`
	Time  time.Time   `json:"time"`
	Data  interface{} `json:"data,omitempty"`
}

// SourceStatus is attached to source_fetched and source_failed events.
type SourceStatus struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Valid  int    `json:"valid"`
	Error  string `json:"error,omitempty"`
}

// Progress 是单个代理测速过程中的下载进度。
type Progress struct {
	Proxy      string  `json:"proxy"`
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total"`
	Throughput float64 `json:"throughput"` // bytes per second
}

// BenchmarkOutcome is attached to benchmark_finished events.
type BenchmarkOutcome struct {
	Proxy    string  `json:"proxy"`
	Accepted bool    `json:"accepted"`
	Rejected bool    `json:"rejected"`
	Time     float64 `json:"time,omitempty"`
}

// RunSummary is attached to run_finished events.
type RunSummary struct {
	Candidates int    `json:"candidates"`
	Measured   int    `json:"measured"`
	Selected   int    `json:"selected"`
	Error      string `json:"error,omitempty"`
}
