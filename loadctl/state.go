package loadctl

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

//
// Author: 陈哈哈 yoojiachen@gmail.com
//

// LoadCommand 负载输出指令
type LoadCommand int

const (
	CommandOff LoadCommand = iota
	CommandOn
)

func (c LoadCommand) String() string {
	if CommandOn == c {
		return "ON"
	}
	return "OFF"
}

// State 指令执行后的负载状态
func (c LoadCommand) State() LoadState {
	if CommandOn == c {
		return StateOn
	}
	return StateOff
}

// ParseCommand 解析指令，接受ON/OFF、1/0、true/false，不区分大小写
func ParseCommand(s string) (LoadCommand, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true":
		return CommandOn, nil
	case "off", "0", "false":
		return CommandOff, nil
	default:
		return CommandOff, errors.Errorf("unknown load command %q", s)
	}
}

// LoadState 负载输出的当前认定状态
type LoadState int

const (
	StateUnknown LoadState = iota
	StateOn
	StateOff
)

func (s LoadState) String() string {
	switch s {
	case StateOn:
		return "ON"
	case StateOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

////

// StateModel 分别记录最后下发的指令与设备最后上报的状态。
// 上报状态未过期且不早于最后一次指令时以上报为准，否则取指令状态，都没有则为UNKNOWN。
type StateModel struct {
	Freshness time.Duration

	commanded   LoadState
	commandedAt time.Time
	confirmed   LoadState
	confirmedAt time.Time
}

func (m *StateModel) Command(s LoadState, at time.Time) {
	m.commanded = s
	m.commandedAt = at
}

func (m *StateModel) Confirm(s LoadState, at time.Time) {
	if StateUnknown == s {
		return
	}
	m.confirmed = s
	m.confirmedAt = at
}

// Invalidate 清空两侧状态
func (m *StateModel) Invalidate() {
	m.commanded, m.commandedAt = StateUnknown, time.Time{}
	m.confirmed, m.confirmedAt = StateUnknown, time.Time{}
}

func (m *StateModel) Resolve(now time.Time) LoadState {
	if StateUnknown != m.confirmed && m.fresh(now) && !m.confirmedAt.Before(m.commandedAt) {
		return m.confirmed
	}
	if StateUnknown != m.commanded {
		return m.commanded
	}
	return StateUnknown
}

func (m *StateModel) fresh(now time.Time) bool {
	return m.Freshness <= 0 || now.Sub(m.confirmedAt) <= m.Freshness
}

func (m *StateModel) Halves() (commanded, confirmed LoadState) {
	return m.commanded, m.confirmed
}
