package engine

import (
	"math"
	"time"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// Filter 决定MetricSet中哪些需要发送。本身无状态，每个设备的发送历史保存在EmitState中。
type Filter struct {
	// 整组去重窗口，0表示关闭
	Window time.Duration
	// 指标名到最小变化量的映射，变化小于该值时不单独发送
	Thresholds map[string]float64
}

// EmitState 单个设备的发送历史
type EmitState struct {
	lastSet    MetricSet
	lastSetAt  time.Time
	lastValues map[string]float64
}

func NewEmitState() *EmitState {
	return &EmitState{lastValues: make(map[string]float64)}
}

// LastEmitted 返回最后发送的整组数据及发送时间
func (s *EmitState) LastEmitted() (MetricSet, time.Time) {
	return s.lastSet, s.lastSetAt
}

// Decision 过滤结果
type Decision struct {
	// 整组去重丢弃了该帧，此时其它字段无意义
	Duplicate bool
	// 需要单独发送的指标
	Publish MetricSet
	// 因变化量不足而未发送的指标
	Suppressed []string
	// 聚合状态使用的完整集合
	Aggregate MetricSet
}

// Apply 执行两级过滤，并把发送结果记录到state
func (f Filter) Apply(state *EmitState, set MetricSet, now time.Time) Decision {
	if f.Window > 0 && nil != state.lastSet &&
		now.Sub(state.lastSetAt) < f.Window && set.Equal(state.lastSet) {
		return Decision{Duplicate: true}
	}

	d := Decision{
		Publish:   make(MetricSet, len(set)),
		Aggregate: set,
	}
	for _, name := range set.Names() {
		v := set[name]
		if f.suppress(state, name, v) {
			d.Suppressed = append(d.Suppressed, name)
			continue
		}
		d.Publish[name] = v
		state.lastValues[name] = v
	}
	state.lastSet = set
	state.lastSetAt = now
	return d
}

func (f Filter) suppress(state *EmitState, name string, v float64) bool {
	th, ok := f.Thresholds[name]
	if !ok {
		return false
	}
	last, seen := state.lastValues[name]
	if !seen {
		return false
	}
	return math.Abs(v-last) < th
}
