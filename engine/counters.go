package engine

import (
	"go.uber.org/atomic"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Counters 由Engine持有的单调递增计数器
type Counters struct {
	FramesSeen        *atomic.Int64
	DecodeFailures    *atomic.Int64
	MetricsPublished  *atomic.Int64
	DedupSkipped      *atomic.Int64
	MetricsSuppressed *atomic.Int64
	LoadActions       *atomic.Int64
}

func NewCounters() *Counters {
	return &Counters{
		FramesSeen:        atomic.NewInt64(0),
		DecodeFailures:    atomic.NewInt64(0),
		MetricsPublished:  atomic.NewInt64(0),
		DedupSkipped:      atomic.NewInt64(0),
		MetricsSuppressed: atomic.NewInt64(0),
		LoadActions:       atomic.NewInt64(0),
	}
}

// Snapshot 统计信息快照
type Snapshot struct {
	UptimeSeconds      int64  `json:"uptimeSeconds"`
	FramesSeen         int64  `json:"framesSeen"`
	DecodeFailures     int64  `json:"decodeFailures"`
	MetricsPublished   int64  `json:"metricsPublished"`
	DedupSkipped       int64  `json:"dedupSkipped"`
	MetricsSuppressed  int64  `json:"metricsSuppressed"`
	KnownDeviceCount   int    `json:"knownDeviceCount"`
	UnknownDeviceCount int    `json:"unknownDeviceCount"`
	LoadActions        int64  `json:"loadActions"`
	LoadState          string `json:"loadState"`
}
